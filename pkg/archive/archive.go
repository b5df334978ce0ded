// Package archive is the content-addressed blob archive for uploaded
// report artifacts. Blobs are addressed as "sha256:<hex>" and written at
// most once; nothing deletes archived evidence.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store archives immutable blobs by content address.
type Store interface {
	// Put persists data and returns its "sha256:<hex>" address. Storing
	// the same bytes again returns the same address without rewriting.
	Put(ctx context.Context, data []byte) (string, error)
	// Get retrieves a blob by its address.
	Get(ctx context.Context, address string) ([]byte, error)
	// Exists reports whether a blob is archived.
	Exists(ctx context.Context, address string) (bool, error)
}

// Config selects and configures the archive backend.
type Config struct {
	Backend  string // "fs", "s3", or "gcs"
	Dir      string // fs root directory
	Bucket   string // s3/gcs bucket
	Prefix   string // optional object key prefix
	Endpoint string // optional S3 endpoint override, for MinIO-style deployments
	Region   string // S3 region
}

// New builds the configured backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "fs":
		return NewFileStore(cfg.Dir)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("archive bucket is required for the s3 backend")
		}
		return NewS3Store(ctx, cfg)
	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("archive bucket is required for the gcs backend")
		}
		return newGCSStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported archive backend: %q", cfg.Backend)
	}
}

const addressPrefix = "sha256:"

// Address returns the content address for data.
func Address(data []byte) string {
	sum := sha256.Sum256(data)
	return addressPrefix + hex.EncodeToString(sum[:])
}

func parseAddress(address string) (string, error) {
	if !strings.HasPrefix(address, addressPrefix) {
		return "", fmt.Errorf("invalid archive address: %s", address)
	}
	raw := strings.TrimPrefix(address, addressPrefix)
	if len(raw) != sha256.Size*2 {
		return "", fmt.Errorf("invalid archive address: %s", address)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("invalid archive address: %w", err)
	}
	return raw, nil
}

// FileStore is the filesystem backend.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates the archive directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure archive dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Put(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := sha256.Sum256(data)
	raw := hex.EncodeToString(sum[:])
	path := filepath.Join(s.dir, raw+".blob")

	if _, err := os.Stat(path); err == nil {
		return addressPrefix + raw, nil
	}

	// Write to a temp file, then rename, so readers never see a partial blob.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}

	return addressPrefix + raw, nil
}

func (s *FileStore) Get(_ context.Context, address string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := parseAddress(address)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, raw+".blob"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("archive blob not found: %s", address)
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

func (s *FileStore) Exists(_ context.Context, address string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := parseAddress(address)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(filepath.Join(s.dir, raw+".blob"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat blob: %w", err)
}
