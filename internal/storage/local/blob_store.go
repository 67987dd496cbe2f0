// Package local implements the filesystem content store: one directory per
// story under the base directory, one file per fetched URL named by its key.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/ycrawler/internal/crawler"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory where story namespaces are created.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes blobs to the local filesystem.
type BlobStore struct {
	baseDir string
}

// New creates the base directory (with parents) if needed and verifies it is
// writable. A failure here is fatal to the process.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	sentinel, err := os.CreateTemp(cfg.BaseDir, ".writable_test-*")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	name := sentinel.Name()
	if err := sentinel.Close(); err != nil {
		return nil, fmt.Errorf("failed to close sentinel file: %w", err)
	}
	if err := os.Remove(name); err != nil {
		return nil, fmt.Errorf("failed to clean up sentinel file: %w", err)
	}

	return &BlobStore{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// BaseDir returns the root directory of the store.
func (s *BlobStore) BaseDir() string {
	return s.baseDir
}

// CreateNamespace creates the story directory. An existing directory yields
// an error wrapping crawler.ErrNamespaceExists.
func (s *BlobStore) CreateNamespace(ctx context.Context, storyID string) error {
	if err := ctx.Err(); err != nil {
		return &crawler.NamespaceError{StoryID: storyID, Err: err}
	}
	dir, err := s.namespacePath(storyID)
	if err != nil {
		return &crawler.NamespaceError{StoryID: storyID, Err: err}
	}
	if err := os.Mkdir(dir, 0o750); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("namespace %s: %w", storyID, crawler.ErrNamespaceExists)
		}
		return &crawler.NamespaceError{StoryID: storyID, Err: err}
	}
	return nil
}

// Put writes data under <base>/<storyID>/<key> and returns a file:// URI.
// The bytes land in a temp file first and are renamed into place, so an
// interrupted write never appears under the final key.
func (s *BlobStore) Put(ctx context.Context, storyID, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &crawler.StoreError{StoryID: storyID, Key: key, Err: err}
	}
	dir, err := s.namespacePath(storyID)
	if err != nil {
		return "", &crawler.StoreError{StoryID: storyID, Key: key, Err: err}
	}
	if err := validElement(key); err != nil {
		return "", &crawler.StoreError{StoryID: storyID, Key: key, Err: fmt.Errorf("key: %w", err)}
	}
	target := filepath.Join(dir, key)

	if err := writeAtomic(dir, target, data); err != nil {
		return "", &crawler.StoreError{StoryID: storyID, Key: key, Err: err}
	}
	return fmt.Sprintf("file://%s", target), nil
}

func writeAtomic(dir, target string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

func (s *BlobStore) namespacePath(storyID string) (string, error) {
	if err := validElement(storyID); err != nil {
		return "", fmt.Errorf("story id: %w", err)
	}
	full := filepath.Join(s.baseDir, storyID)
	// Clean the path and verify it's within baseDir to prevent path traversal.
	if !strings.HasPrefix(filepath.Clean(full), s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return full, nil
}

func validElement(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("must not be empty")
	case name == "." || name == "..":
		return errors.New("must not be a relative directory")
	case strings.ContainsAny(name, `/\`):
		return errors.New("must not contain path separators")
	}
	return nil
}
