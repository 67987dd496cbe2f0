// Package memory stores blob content in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/ycrawler/internal/crawler"
)

// BlobStore keeps story namespaces and their blobs in maps and returns
// pseudo memory:// URIs.
type BlobStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string][]byte
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{namespaces: make(map[string]map[string][]byte)}
}

// CreateNamespace registers storyID. An existing namespace yields an error
// wrapping crawler.ErrNamespaceExists.
func (s *BlobStore) CreateNamespace(_ context.Context, storyID string) error {
	if strings.TrimSpace(storyID) == "" {
		return &crawler.NamespaceError{StoryID: storyID, Err: fmt.Errorf("story id is required")}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.namespaces[storyID]; ok {
		return fmt.Errorf("namespace %s: %w", storyID, crawler.ErrNamespaceExists)
	}
	s.namespaces[storyID] = make(map[string][]byte)
	return nil
}

// Put stores a copy of data under storyID/key. The namespace must exist.
func (s *BlobStore) Put(ctx context.Context, storyID, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &crawler.StoreError{StoryID: storyID, Key: key, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.namespaces[storyID]
	if !ok {
		return "", &crawler.StoreError{StoryID: storyID, Key: key, Err: fmt.Errorf("namespace not found")}
	}
	ns[key] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s/%s", storyID, key), nil
}

// Get returns a copy of the blob stored under storyID/key.
func (s *BlobStore) Get(storyID, key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.namespaces[storyID][key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Namespaces lists the known story namespaces in sorted order.
func (s *BlobStore) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.namespaces))
	for id := range s.namespaces {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Keys lists the keys stored for a story in sorted order.
func (s *BlobStore) Keys(storyID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns := s.namespaces[storyID]
	out := make([]string, 0, len(ns))
	for k := range ns {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
