// Package gcs provides a content store backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/ycrawler/internal/crawler"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name, e.g. "pages".
	Prefix string
}

// BlobStore writes story blobs to a configured GCS bucket as
// <prefix>/<storyID>/<key>.
type BlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// CreateNamespace is a no-op: object stores have no directories.
func (s *BlobStore) CreateNamespace(context.Context, string) error {
	return nil
}

// Put uploads data and returns a gs:// URI.
func (s *BlobStore) Put(ctx context.Context, storyID, key string, data []byte) (string, error) {
	if strings.TrimSpace(storyID) == "" || strings.TrimSpace(key) == "" {
		return "", &crawler.StoreError{StoryID: storyID, Key: key, Err: fmt.Errorf("story id and key are required")}
	}
	name := s.objectName(storyID, key)
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", &crawler.StoreError{StoryID: storyID, Key: key,
				Err: fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)}
		}
		return "", &crawler.StoreError{StoryID: storyID, Key: key, Err: fmt.Errorf("copy object: %w", err)}
	}
	if err := writer.Close(); err != nil {
		return "", &crawler.StoreError{StoryID: storyID, Key: key, Err: fmt.Errorf("close writer: %w", err)}
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

func (s *BlobStore) objectName(storyID, key string) string {
	if s.prefix == "" {
		return path.Join(storyID, key)
	}
	return path.Join(s.prefix, storyID, key)
}
