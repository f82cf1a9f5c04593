// Package artifacts provides content-addressed storage (CAS) for receipt
// artifacts. The retrieval locator is derived from the content's SHA-256,
// so stored documents are immutable and verifiable by re-hashing.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Ref identifies a stored artifact: the prefixed content hash and a
// backend-specific permanent locator.
type Ref struct {
	Hash    string `json:"hash"`    // "sha256:<hex>"
	Locator string `json:"locator"` // e.g. "s3://bucket/key", "cas://local/sha256:<hex>"
}

// Store is the CAS contract the receipt archiver depends on.
type Store interface {
	// Put persists data and returns its content-addressed reference.
	// Idempotent: storing identical bytes twice yields the same Ref.
	Put(ctx context.Context, data []byte, contentType string) (Ref, error)
	// Get retrieves data by its prefixed content hash.
	Get(ctx context.Context, hash string) ([]byte, error)
	// Exists checks presence by prefixed content hash.
	Exists(ctx context.Context, hash string) (bool, error)
}

func hashBytes(data []byte) (prefixed, raw string) {
	sum := sha256.Sum256(data)
	raw = hex.EncodeToString(sum[:])
	return "sha256:" + raw, raw
}

func splitHash(hash string) (string, error) {
	if len(hash) < 8 || hash[:7] != "sha256:" {
		return "", fmt.Errorf("invalid hash format: %s", hash)
	}
	raw := hash[7:]
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("invalid hash hex: %w", err)
	}
	return raw, nil
}

// FileStore is a filesystem-backed Store for single-node deployments and
// tests.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a CAS store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure artifact dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) Put(_ context.Context, data []byte, _ string) (Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefixed, raw := hashBytes(data)
	ref := Ref{Hash: prefixed, Locator: "cas://local/" + prefixed}

	path := filepath.Join(s.baseDir, raw+".blob")
	if _, err := os.Stat(path); err == nil {
		return ref, nil // already stored
	}

	// Write to temp, then rename, so readers never see partial blobs.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return Ref{}, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return Ref{}, fmt.Errorf("failed to commit blob: %w", err)
	}
	return ref, nil
}

func (s *FileStore) Get(_ context.Context, hash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := splitHash(hash)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.baseDir, raw+".blob"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact not found: %s", hash)
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func (s *FileStore) Exists(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := splitHash(hash)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(filepath.Join(s.baseDir, raw+".blob"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
