// Package app builds the long-lived services from configuration and runs the
// poll loop alongside the optional admin server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/ycrawler/internal/admission"
	"github.com/JakeFAU/ycrawler/internal/api"
	"github.com/JakeFAU/ycrawler/internal/config"
	"github.com/JakeFAU/ycrawler/internal/crawler"
	"github.com/JakeFAU/ycrawler/internal/cycle"
	collyfetcher "github.com/JakeFAU/ycrawler/internal/fetcher/colly"
	"github.com/JakeFAU/ycrawler/internal/hash/sha256"
	"github.com/JakeFAU/ycrawler/internal/id/uuid"
	"github.com/JakeFAU/ycrawler/internal/ledger"
	"github.com/JakeFAU/ycrawler/internal/parser/hn"
	"github.com/JakeFAU/ycrawler/internal/poller"
	gcppublisher "github.com/JakeFAU/ycrawler/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/ycrawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/ycrawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/ycrawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/ycrawler/internal/storage/postgres"
	"github.com/JakeFAU/ycrawler/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Option customizes App construction.
type Option func(*options)

type options struct {
	transport   http.RoundTripper
	store       crawler.ContentStore
	publisher   crawler.Publisher
	traceWriter io.Writer
}

// WithTransport overrides the fetcher's HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithContentStore bypasses the configured storage backend.
func WithContentStore(store crawler.ContentStore) Option {
	return func(o *options) { o.store = store }
}

// WithPublisher bypasses the Pub/Sub client. pubsub.topic_name still selects
// the topic name passed to it.
func WithPublisher(pub crawler.Publisher) Option {
	return func(o *options) { o.publisher = pub }
}

// WithTraceWriter redirects the stdout span exporter.
func WithTraceWriter(w io.Writer) Option {
	return func(o *options) { o.traceWriter = w }
}

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	gate      *admission.Gate
	ledger    *ledger.Ledger
	poller    *poller.Poller
	apiServer *api.Server

	gcsClient    *storage.Client
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
	catalog      *pgstore.RetrievalStore

	tracerShutdown func(context.Context) error
}

// New wires every component. Failing to set up the content store root is
// fatal; so are misconfigured optional backends.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		gate:   admission.New(cfg.Crawler.MaxRequests),
		ledger: ledger.New(),
	}

	var tracer trace.Tracer
	if cfg.Telemetry.Enabled {
		exporter, err := telemetry.NewExporter(telemetry.ExporterConfig{
			Kind:      cfg.Telemetry.Exporter,
			ProjectID: cfg.TraceProjectID(),
			Writer:    o.traceWriter,
		})
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			SampleRatio: cfg.Telemetry.SampleRatio,
			Exporter:    exporter,
		})
		if err != nil {
			if exporter != nil {
				_ = exporter.Shutdown(ctx)
			}
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		a.tracerShutdown = tp.Shutdown
		tracer = tp.Tracer(cycle.TracerName)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = a.buildStore(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	deps := cycle.Deps{
		Fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.Timeout(),
			Transport: o.transport,
		}, a.gate, logger.Named("fetcher")),
		Store:  store,
		Keys:   sha256.New(),
		IDs:    uuid.New(),
		Tracer: tracer,
	}
	parser := hn.New(cfg.Crawler.BaseURL)
	deps.Listing, deps.Comments, deps.Site = parser, parser, parser

	if cfg.DB.DSN != "" {
		catalog, err := a.buildCatalog(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Catalog = catalog
	}

	switch {
	case o.publisher != nil:
		deps.Publisher = o.publisher
	case cfg.PubSub.TopicName != "":
		if err := a.buildPublisher(ctx); err != nil {
			a.Close()
			return nil, err
		}
		deps.Publisher = a.publisher
	}

	orchestrator, err := cycle.New(deps, cycle.Config{
		Policy: cfg.Policy(),
		Topic:  cfg.PubSub.TopicName,
	}, logger.Named("cycle"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	a.poller = poller.New(orchestrator, a.ledger, poller.Config{
		Interval: cfg.Crawler.PollInterval,
		Once:     cfg.Crawler.Once,
	}, logger.Named("poller"))
	a.apiServer = api.NewServer(a.ledger, a.poller, logger.Named("api"))

	logger.Info("application initialized",
		zap.String("base_url", cfg.Crawler.BaseURL),
		zap.Int("max_requests", cfg.Crawler.MaxRequests),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("ledger_policy", cfg.Crawler.LedgerPolicy),
		zap.Bool("catalog", deps.Catalog != nil),
		zap.Bool("publisher", deps.Publisher != nil),
		zap.String("span_exporter", cfg.Telemetry.Exporter),
	)
	return a, nil
}

func (a *App) buildStore(ctx context.Context) (crawler.ContentStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.gcsClient = client
		store, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("create gcs store: %w", err)
		}
		return store, nil
	case config.BackendMemory:
		return memorystorage.NewBlobStore(), nil
	default:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.OutputDir})
		if err != nil {
			return nil, fmt.Errorf("create output root: %w", err)
		}
		return store, nil
	}
}

func (a *App) buildCatalog(ctx context.Context) (*pgstore.RetrievalStore, error) {
	catalog, err := pgstore.NewRetrievalStore(ctx, pgstore.RetrievalStoreConfig{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: int32(a.cfg.DB.MaxConns), // #nosec G115 -- small configured value.
	})
	if err != nil {
		return nil, fmt.Errorf("create retrieval store: %w", err)
	}
	a.catalog = catalog
	if err := catalog.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure retrieval schema: %w", err)
	}
	return catalog, nil
}

func (a *App) buildPublisher(ctx context.Context) error {
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("create pubsub client: %w", err)
	}
	a.pubsubClient = client
	a.publisher = gcppublisher.New(client.Topic(a.cfg.PubSub.TopicName))
	return nil
}

// Ledger exposes the dedup ledger.
func (a *App) Ledger() *ledger.Ledger {
	return a.ledger
}

// Poller exposes the poll loop.
func (a *App) Poller() *poller.Poller {
	return a.poller
}

// Handler exposes the admin HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the admin server when configured and blocks in the poll loop
// until ctx is canceled (or after one cycle in once mode).
func (a *App) Run(ctx context.Context) error {
	var srv *http.Server
	if a.cfg.Server.Port > 0 {
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler:           a.apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("admin server started", zap.Int("port", a.cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("admin server error", zap.Error(err))
			}
		}()
	}

	err := a.poller.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			a.logger.Error("admin server shutdown error", zap.Error(serr))
		}
	}
	if err != nil {
		return fmt.Errorf("poll loop: %w", err)
	}
	return nil
}

// Close releases clients and pools. It is safe to call more than once.
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Stop()
		a.publisher = nil
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("close pubsub client", zap.Error(err))
		}
		a.pubsubClient = nil
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("close gcs client", zap.Error(err))
		}
		a.gcsClient = nil
	}
	if a.catalog != nil {
		a.catalog.Close()
		a.catalog = nil
	}
	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracerShutdown = nil
	}
	a.logger.Info("shutdown complete")
}
