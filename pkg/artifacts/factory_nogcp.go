//go:build !gcp

package artifacts

import (
	"context"
	"fmt"
)

func newGCSStoreFromEnv(_ context.Context) (Store, error) {
	return nil, fmt.Errorf("receipt store: GCS backend is not compiled into this binary (build with -tags gcp)")
}
