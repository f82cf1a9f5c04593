package artifacts

import (
	"context"
	"fmt"
	"os"
)

// NewStoreFromEnv selects a Store backend from the environment.
//
//	RECEIPT_STORAGE_TYPE: fs (default), s3, gcs
//	RECEIPT_FS_DIR:       base directory for fs (default ./data/receipts)
//	RECEIPT_S3_BUCKET:    bucket for s3 (required)
//	RECEIPT_S3_REGION:    region for s3
//	RECEIPT_S3_ENDPOINT:  custom endpoint for s3 (MinIO, LocalStack)
//	RECEIPT_S3_PREFIX:    key prefix for s3
//	RECEIPT_GCS_BUCKET:   bucket for gcs (required, -tags gcp builds only)
//	RECEIPT_GCS_PREFIX:   object prefix for gcs
func NewStoreFromEnv(ctx context.Context) (Store, error) {
	storageType := os.Getenv("RECEIPT_STORAGE_TYPE")
	if storageType == "" {
		storageType = "fs"
	}

	switch storageType {
	case "fs":
		dir := os.Getenv("RECEIPT_FS_DIR")
		if dir == "" {
			dir = "./data/receipts"
		}
		return NewFileStore(dir)

	case "s3":
		bucket := os.Getenv("RECEIPT_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("RECEIPT_S3_BUCKET is required for s3 storage")
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   bucket,
			Region:   os.Getenv("RECEIPT_S3_REGION"),
			Endpoint: os.Getenv("RECEIPT_S3_ENDPOINT"),
			Prefix:   os.Getenv("RECEIPT_S3_PREFIX"),
		})

	case "gcs":
		return newGCSStoreFromEnv(ctx)

	default:
		return nil, fmt.Errorf("unknown RECEIPT_STORAGE_TYPE %q (want fs, s3, or gcs)", storageType)
	}
}
