package crawler

import "time"

// TaskKind labels what a fetch task retrieves.
type TaskKind string

// Fetch task kinds used for logging, metrics, and catalog rows.
const (
	KindListing  TaskKind = "listing"
	KindArticle  TaskKind = "article"
	KindThread   TaskKind = "thread"
	KindExternal TaskKind = "external"
)

// LedgerPolicy decides which stories are marked seen at the end of a cycle.
type LedgerPolicy string

// Supported ledger policies.
const (
	// LedgerPolicyAlways marks every dispatched story seen, even when some of
	// its fetches failed.
	LedgerPolicyAlways LedgerPolicy = "always"
	// LedgerPolicyOnSuccess only marks stories whose namespace, article and
	// thread page all succeeded. External link failures do not count.
	LedgerPolicyOnSuccess LedgerPolicy = "on_success"
)

// Story is one entry of the newest listing.
type Story struct {
	ID         string `json:"id"`
	ArticleURL string `json:"article_url"`
}

// FetchTask is a URL to fetch plus where its body lands in the content store.
type FetchTask struct {
	StoryID string
	URL     string
	Kind    TaskKind
	Key     string
}

// TaskResult is the outcome slot written by exactly one fetch task.
type TaskResult struct {
	StoryID  string        `json:"story_id"`
	URL      string        `json:"url"`
	Kind     TaskKind      `json:"kind"`
	Key      string        `json:"key,omitempty"`
	URI      string        `json:"uri,omitempty"`
	Bytes    int           `json:"bytes"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
	ErrText  string        `json:"error,omitempty"`
}

// Failed reports whether the task ended in an error.
func (r TaskResult) Failed() bool {
	return r.Err != nil
}

// StoryOutcome summarises the work done for one story in a cycle.
type StoryOutcome struct {
	Story          Story        `json:"story"`
	NamespaceErr   error        `json:"-"`
	ArticleErr     error        `json:"-"`
	ThreadErr      error        `json:"-"`
	ExternalLinks  int          `json:"external_links"`
	Results        []TaskResult `json:"results"`
	MarkedSeen     bool         `json:"marked_seen"`
	PersistedBytes int          `json:"persisted_bytes"`
}

// Complete reports whether the story met the on_success ledger policy.
func (o StoryOutcome) Complete() bool {
	return o.NamespaceErr == nil && o.ArticleErr == nil && o.ThreadErr == nil
}

// Persisted counts successful blob writes for the story.
func (o StoryOutcome) Persisted() int {
	n := 0
	for _, r := range o.Results {
		if !r.Failed() && r.Key != "" {
			n++
		}
	}
	return n
}

// FailedTasks counts failed tasks for the story.
func (o StoryOutcome) FailedTasks() int {
	n := 0
	for _, r := range o.Results {
		if r.Failed() {
			n++
		}
	}
	return n
}

// CycleReport describes one completed (or aborted) polling cycle.
type CycleReport struct {
	CycleID    string         `json:"cycle_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Listed     int            `json:"listed"`
	New        int            `json:"new"`
	Marked     int            `json:"marked"`
	Fetched    int            `json:"fetched"`
	Failed     int            `json:"failed"`
	Bytes      int            `json:"bytes"`
	Idle       bool           `json:"idle"`
	ErrText    string         `json:"error,omitempty"`
	Stories    []StoryOutcome `json:"stories,omitempty"`
}

// Duration returns the wall time spent in the cycle.
func (r CycleReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RetrievalRecord is the catalog row written for every persisted blob.
type RetrievalRecord struct {
	ID          string
	CycleID     string
	StoryID     string
	Kind        TaskKind
	URL         string
	StorageKey  string
	BlobURI     string
	Bytes       int
	RetrievedAt time.Time
}

// StoryNotification is published once all work for a story has finished.
type StoryNotification struct {
	CycleID    string    `json:"cycle_id"`
	StoryID    string    `json:"story_id"`
	ArticleURL string    `json:"article_url"`
	Persisted  int       `json:"persisted"`
	Failed     int       `json:"failed"`
	Timestamp  time.Time `json:"timestamp"`
}
