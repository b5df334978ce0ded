//go:build gcp

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
)

// GCSStore archives blobs in a Google Cloud Storage bucket using
// application default credentials.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

func newGCSStore(ctx context.Context, cfg Config) (Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) key(raw string) string {
	return path.Join(s.prefix, raw+".blob")
}

func (s *GCSStore) Put(ctx context.Context, data []byte) (string, error) {
	address := Address(data)
	raw, err := parseAddress(address)
	if err != nil {
		return "", err
	}

	obj := s.client.Bucket(s.bucket).Object(s.key(raw))
	if _, err := obj.Attrs(ctx); err == nil {
		return address, nil
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to upload blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}

	return address, nil
}

func (s *GCSStore) Get(ctx context.Context, address string) ([]byte, error) {
	raw, err := parseAddress(address)
	if err != nil {
		return nil, err
	}

	r, err := s.client.Bucket(s.bucket).Object(s.key(raw)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("archive blob not found: %s", address)
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob body: %w", err)
	}
	return data, nil
}

func (s *GCSStore) Exists(ctx context.Context, address string) (bool, error) {
	raw, err := parseAddress(address)
	if err != nil {
		return false, err
	}

	_, err = s.client.Bucket(s.bucket).Object(s.key(raw)).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat blob: %w", err)
}
