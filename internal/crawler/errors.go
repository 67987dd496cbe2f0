package crawler

import (
	"errors"
	"fmt"
)

// ErrNamespaceExists is returned by ContentStore.CreateNamespace when the
// namespace is already present. Callers treat it as success.
var ErrNamespaceExists = errors.New("namespace already exists")

// FetchError reports a network or HTTP failure for one URL.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a page that could not be parsed. It is treated as
// "no data found" by the orchestrator.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StoreError reports a failed blob write.
type StoreError struct {
	StoryID string
	Key     string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s/%s: %v", e.StoryID, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NamespaceError reports a failure creating a story namespace.
type NamespaceError struct {
	StoryID string
	Err     error
}

func (e *NamespaceError) Error() string {
	return fmt.Sprintf("create namespace %s: %v", e.StoryID, e.Err)
}

func (e *NamespaceError) Unwrap() error { return e.Err }

// ListingFetchError aborts a single cycle. It never stops the process.
type ListingFetchError struct {
	URL string
	Err error
}

func (e *ListingFetchError) Error() string {
	return fmt.Sprintf("listing %s: %v", e.URL, e.Err)
}

func (e *ListingFetchError) Unwrap() error { return e.Err }

// IsNamespaceExists reports whether err signals an existing namespace.
func IsNamespaceExists(err error) bool {
	return errors.Is(err, ErrNamespaceExists)
}
