package crawler

import (
	"context"
	"time"
)

// Fetcher performs a single admission-controlled GET and returns the body.
type Fetcher interface {
	Fetch(ctx context.Context, url string, kind TaskKind) ([]byte, error)
}

// ListingParser maps the newest listing page to story id -> article URL.
type ListingParser interface {
	ParseListing(body []byte) (map[string]string, error)
}

// CommentParser extracts external URLs from a discussion thread page.
type CommentParser interface {
	ParseComments(body []byte) ([]string, error)
}

// Site builds the URLs of the crawled aggregator.
type Site interface {
	ListingURL() string
	ThreadURL(storyID string) string
}

// ContentStore persists blobs grouped by story namespace.
type ContentStore interface {
	CreateNamespace(ctx context.Context, storyID string) error
	Put(ctx context.Context, storyID, key string, data []byte) (string, error)
}

// KeyDeriver maps a source URL to its storage key.
type KeyDeriver interface {
	Key(url string) string
}

// RetrievalStore records catalog rows for persisted blobs.
type RetrievalStore interface {
	StoreRetrieval(ctx context.Context, record RetrievalRecord) error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Ledger tracks story ids that must not be dispatched again.
type Ledger interface {
	Contains(id string) bool
	// Filter returns the listing entries whose ids are not yet recorded.
	Filter(listing map[string]string) map[string]string
	Add(ids ...string)
	Len() int
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function such as time.Now to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// IDGenerator produces cycle and record IDs.
type IDGenerator interface {
	NewID() (string, error)
}
