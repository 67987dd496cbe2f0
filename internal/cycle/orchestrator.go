// Package cycle runs one polling cycle: fetch the newest listing, filter it
// against the ledger, fan out article and thread work per story, join, and
// mark the stories seen.
package cycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/ycrawler/internal/crawler"
	"github.com/JakeFAU/ycrawler/internal/metrics"
)

// Config controls Orchestrator behavior.
type Config struct {
	Policy crawler.LedgerPolicy
	// Topic receives one notification per finished story. Empty disables it.
	Topic string
}

// Deps groups the collaborators of an Orchestrator. Catalog, Publisher,
// Clock, IDs and Tracer are optional.
type Deps struct {
	Fetcher   crawler.Fetcher
	Listing   crawler.ListingParser
	Comments  crawler.CommentParser
	Site      crawler.Site
	Store     crawler.ContentStore
	Keys      crawler.KeyDeriver
	Catalog   crawler.RetrievalStore
	Publisher crawler.Publisher
	Clock     crawler.Clock
	IDs       crawler.IDGenerator
	Tracer    trace.Tracer
}

// TracerName names the tracer that records cycle and story spans.
const TracerName = "github.com/JakeFAU/ycrawler/internal/cycle"

// Orchestrator executes cycles. It holds no cycle state between runs; the
// ledger is passed in by the caller.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case deps.Listing == nil || deps.Comments == nil:
		return nil, fmt.Errorf("listing and comment parsers are required")
	case deps.Site == nil:
		return nil, fmt.Errorf("site is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("content store is required")
	case deps.Keys == nil:
		return nil, fmt.Errorf("key deriver is required")
	}
	if deps.Clock == nil {
		deps.Clock = crawler.ClockFunc(func() time.Time { return time.Now().UTC() })
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(TracerName)
	}
	if cfg.Policy == "" {
		cfg.Policy = crawler.LedgerPolicyAlways
	}
	if cfg.Policy != crawler.LedgerPolicyAlways && cfg.Policy != crawler.LedgerPolicyOnSuccess {
		return nil, fmt.Errorf("unknown ledger policy %q", cfg.Policy)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger}, nil
}

// Run executes one cycle against seen. A failed listing fetch returns a
// *crawler.ListingFetchError and leaves seen untouched. Per-story failures
// never fail the cycle; they are recorded in the report.
func (o *Orchestrator) Run(ctx context.Context, seen crawler.Ledger) (crawler.CycleReport, error) {
	report := crawler.CycleReport{
		CycleID:   o.newCycleID(),
		StartedAt: o.deps.Clock.Now(),
	}
	logger := o.logger.With(zap.String("cycle_id", report.CycleID))
	ctx, span := o.deps.Tracer.Start(ctx, "cycle.run",
		trace.WithAttributes(attribute.String("cycle_id", report.CycleID)))
	defer span.End()
	finish := func() {
		report.FinishedAt = o.deps.Clock.Now()
	}

	listingURL := o.deps.Site.ListingURL()
	body, err := o.deps.Fetcher.Fetch(ctx, listingURL, crawler.KindListing)
	if err != nil {
		lerr := &crawler.ListingFetchError{URL: listingURL, Err: err}
		report.Failed = 1
		report.ErrText = lerr.Error()
		finish()
		span.RecordError(lerr)
		span.SetStatus(codes.Error, "listing fetch failed")
		logger.Error("listing fetch failed", zap.String("url", listingURL), zap.Error(err))
		return report, lerr
	}
	report.Fetched = 1
	report.Bytes = len(body)

	listing, err := o.deps.Listing.ParseListing(body)
	if err != nil {
		logger.Warn("listing parse failed, treating as empty", zap.Error(err))
		listing = nil
	}
	report.Listed = len(listing)

	stories := newStories(listing, seen)
	report.New = len(stories)
	if len(stories) == 0 {
		report.Idle = true
		finish()
		logger.Debug("no new stories", zap.Int("listed", report.Listed))
		return report, nil
	}
	logger.Info("dispatching stories", zap.Int("listed", report.Listed), zap.Int("new", len(stories)))

	// Namespaces exist before any fetch for their story is dispatched.
	nsErrs := make([]error, len(stories))
	for i, story := range stories {
		nsErrs[i] = o.createNamespace(ctx, logger, story.ID)
	}

	outcomes := make([]crawler.StoryOutcome, len(stories))
	var wg sync.WaitGroup
	for i, story := range stories {
		wg.Add(1)
		go func(i int, story crawler.Story) {
			defer wg.Done()
			outcomes[i] = o.runStory(ctx, report.CycleID, story, nsErrs[i], logger)
		}(i, story)
	}
	wg.Wait()

	report.Marked = o.markSeen(seen, outcomes)
	for _, outcome := range outcomes {
		metrics.ObserveStory(outcome.Complete())
		for _, res := range outcome.Results {
			if res.Failed() {
				report.Failed++
				continue
			}
			report.Fetched++
			report.Bytes += res.Bytes
		}
	}
	report.Stories = outcomes
	finish()
	span.SetAttributes(
		attribute.Int("stories.new", report.New),
		attribute.Int("stories.marked", report.Marked),
		attribute.Int("tasks.failed", report.Failed),
	)

	logger.Info("cycle finished",
		zap.Int("new", report.New),
		zap.Int("marked", report.Marked),
		zap.Int("fetched", report.Fetched),
		zap.Int("failed", report.Failed),
		zap.Int("bytes", report.Bytes),
		zap.Duration("duration", report.Duration()),
	)
	return report, nil
}

// newStories returns the listing entries absent from seen, ordered by id so
// that logs and reports are stable.
func newStories(listing map[string]string, seen crawler.Ledger) []crawler.Story {
	if seen != nil {
		listing = seen.Filter(listing)
	}
	out := make([]crawler.Story, 0, len(listing))
	for id, articleURL := range listing {
		out = append(out, crawler.Story{ID: id, ArticleURL: articleURL})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (o *Orchestrator) createNamespace(ctx context.Context, logger *zap.Logger, storyID string) error {
	err := o.deps.Store.CreateNamespace(ctx, storyID)
	switch {
	case err == nil:
		return nil
	case crawler.IsNamespaceExists(err):
		logger.Debug("namespace already exists", zap.String("story_id", storyID))
		return nil
	default:
		logger.Error("create namespace failed", zap.String("story_id", storyID), zap.Error(err))
		return err
	}
}

func (o *Orchestrator) runStory(
	ctx context.Context,
	cycleID string,
	story crawler.Story,
	nsErr error,
	logger *zap.Logger,
) crawler.StoryOutcome {
	outcome := crawler.StoryOutcome{Story: story, NamespaceErr: nsErr}
	if nsErr != nil {
		return outcome
	}
	ctx, span := o.deps.Tracer.Start(ctx, "cycle.story",
		trace.WithAttributes(attribute.String("story_id", story.ID)))
	defer span.End()
	logger = logger.With(zap.String("story_id", story.ID))

	var (
		wg        sync.WaitGroup
		article   crawler.TaskResult
		thread    []crawler.TaskResult
		threadErr error
		links     int
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		article = o.fetchAndStore(ctx, cycleID, o.task(story.ID, story.ArticleURL, crawler.KindArticle), logger)
	}()
	go func() {
		defer wg.Done()
		thread, links, threadErr = o.crawlThread(ctx, cycleID, story.ID, logger)
	}()
	wg.Wait()

	outcome.ArticleErr = article.Err
	outcome.ThreadErr = threadErr
	outcome.ExternalLinks = links
	outcome.Results = append([]crawler.TaskResult{article}, thread...)
	for _, res := range outcome.Results {
		if !res.Failed() && res.Key != "" {
			outcome.PersistedBytes += res.Bytes
		}
	}

	span.SetAttributes(
		attribute.Int("links.external", links),
		attribute.Int("tasks.failed", outcome.FailedTasks()),
	)
	if !outcome.Complete() {
		span.SetStatus(codes.Error, "story incomplete")
	}

	o.notify(ctx, cycleID, outcome, logger)
	return outcome
}

// crawlThread fetches the discussion page, then fetches and stores every
// external link found in it. The thread page itself is not persisted.
func (o *Orchestrator) crawlThread(
	ctx context.Context,
	cycleID string,
	storyID string,
	logger *zap.Logger,
) ([]crawler.TaskResult, int, error) {
	threadURL := o.deps.Site.ThreadURL(storyID)
	start := time.Now()
	body, err := o.deps.Fetcher.Fetch(ctx, threadURL, crawler.KindThread)
	threadRes := crawler.TaskResult{
		StoryID:  storyID,
		URL:      threadURL,
		Kind:     crawler.KindThread,
		Bytes:    len(body),
		Duration: time.Since(start),
	}
	if err != nil {
		threadRes.Err = err
		threadRes.ErrText = err.Error()
		logger.Warn("thread fetch failed", zap.String("url", threadURL), zap.Error(err))
		return []crawler.TaskResult{threadRes}, 0, err
	}

	links, err := o.deps.Comments.ParseComments(body)
	if err != nil {
		logger.Warn("comment parse failed, treating as empty", zap.String("url", threadURL), zap.Error(err))
		links = nil
	}

	results := make([]crawler.TaskResult, len(links)+1)
	results[0] = threadRes
	var wg sync.WaitGroup
	for i, link := range links {
		wg.Add(1)
		go func(i int, link string) {
			defer wg.Done()
			results[i+1] = o.fetchAndStore(ctx, cycleID, o.task(storyID, link, crawler.KindExternal), logger)
		}(i, link)
	}
	wg.Wait()
	return results, len(links), nil
}

func (o *Orchestrator) task(storyID, url string, kind crawler.TaskKind) crawler.FetchTask {
	return crawler.FetchTask{
		StoryID: storyID,
		URL:     url,
		Kind:    kind,
		Key:     o.deps.Keys.Key(url),
	}
}

func (o *Orchestrator) fetchAndStore(
	ctx context.Context,
	cycleID string,
	task crawler.FetchTask,
	logger *zap.Logger,
) crawler.TaskResult {
	res := crawler.TaskResult{
		StoryID: task.StoryID,
		URL:     task.URL,
		Kind:    task.Kind,
		Key:     task.Key,
	}
	start := time.Now()
	body, err := o.deps.Fetcher.Fetch(ctx, task.URL, task.Kind)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		res.ErrText = err.Error()
		logger.Warn("fetch failed",
			zap.String("url", task.URL),
			zap.String("kind", string(task.Kind)),
			zap.Error(err),
		)
		return res
	}
	res.Bytes = len(body)

	uri, err := o.deps.Store.Put(ctx, task.StoryID, task.Key, body)
	if err != nil {
		res.Err = err
		res.ErrText = err.Error()
		logger.Error("persist failed", zap.String("url", task.URL), zap.String("key", task.Key), zap.Error(err))
		return res
	}
	res.URI = uri
	logger.Debug("persisted",
		zap.String("url", task.URL),
		zap.String("kind", string(task.Kind)),
		zap.String("key", task.Key),
		zap.Int("bytes", res.Bytes),
	)

	o.recordRetrieval(ctx, cycleID, res, logger)
	return res
}

func (o *Orchestrator) recordRetrieval(ctx context.Context, cycleID string, res crawler.TaskResult, logger *zap.Logger) {
	if o.deps.Catalog == nil {
		return
	}
	id, err := o.newID()
	if err != nil {
		metrics.ObserveSideChannelError("catalog")
		logger.Error("retrieval id generation failed", zap.Error(err))
		return
	}
	record := crawler.RetrievalRecord{
		ID:          id,
		CycleID:     cycleID,
		StoryID:     res.StoryID,
		Kind:        res.Kind,
		URL:         res.URL,
		StorageKey:  res.Key,
		BlobURI:     res.URI,
		Bytes:       res.Bytes,
		RetrievedAt: o.deps.Clock.Now(),
	}
	if err := o.deps.Catalog.StoreRetrieval(ctx, record); err != nil {
		metrics.ObserveSideChannelError("catalog")
		logger.Error("store retrieval failed", zap.String("url", res.URL), zap.Error(err))
	}
}

func (o *Orchestrator) notify(ctx context.Context, cycleID string, outcome crawler.StoryOutcome, logger *zap.Logger) {
	if o.cfg.Topic == "" || o.deps.Publisher == nil {
		return
	}
	payload := crawler.StoryNotification{
		CycleID:    cycleID,
		StoryID:    outcome.Story.ID,
		ArticleURL: outcome.Story.ArticleURL,
		Persisted:  outcome.Persisted(),
		Failed:     outcome.FailedTasks(),
		Timestamp:  o.deps.Clock.Now(),
	}
	if _, err := o.deps.Publisher.Publish(ctx, o.cfg.Topic, payload); err != nil {
		metrics.ObserveSideChannelError("publish")
		logger.Error("publish story notification failed", zap.Error(err))
	}
}

// markSeen applies the ledger policy once every story's work has been
// awaited, and returns the number of ids added.
func (o *Orchestrator) markSeen(seen crawler.Ledger, outcomes []crawler.StoryOutcome) int {
	ids := make([]string, 0, len(outcomes))
	for i := range outcomes {
		if o.cfg.Policy == crawler.LedgerPolicyOnSuccess && !outcomes[i].Complete() {
			continue
		}
		outcomes[i].MarkedSeen = true
		ids = append(ids, outcomes[i].Story.ID)
	}
	if seen != nil {
		seen.Add(ids...)
	}
	return len(ids)
}

func (o *Orchestrator) newCycleID() string {
	id, err := o.newID()
	if err != nil {
		o.logger.Warn("cycle id generation failed", zap.Error(err))
		return fmt.Sprintf("cycle-%d", time.Now().UnixNano())
	}
	return id
}

func (o *Orchestrator) newID() (string, error) {
	if o.deps.IDs == nil {
		return fmt.Sprintf("%d", time.Now().UnixNano()), nil
	}
	id, err := o.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("new id: %w", err)
	}
	return id, nil
}
