// Package collyfetcher implements crawler.Fetcher using gocolly behind the
// shared admission gate.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/ycrawler/internal/admission"
	"github.com/JakeFAU/ycrawler/internal/crawler"
	"github.com/JakeFAU/ycrawler/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	gate          *admission.Gate
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type fetchResult struct {
	status int
	body   []byte
	err    error
}

// New builds a Fetcher. Every Fetch call holds one gate slot for the duration
// of its HTTP exchange.
func New(cfg Config, gate *admission.Gate, logger *zap.Logger) *Fetcher {
	if gate == nil {
		gate = admission.New(admission.DefaultCapacity)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(0),
		colly.ParseHTTPErrorResponse(),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(rawBodyTransport{next: transport})
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		gate:          gate,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch executes a single HTTP GET and returns the body exactly as the server
// sent it. It does not retry. Transport failures and HTTP status >= 400 yield
// *crawler.FetchError. When ctx ends the request is canceled and the call
// returns immediately; the gate slot is held until the exchange unwinds.
func (f *Fetcher) Fetch(ctx context.Context, url string, kind crawler.TaskKind) ([]byte, error) {
	start := time.Now()
	if err := f.gate.Acquire(ctx); err != nil {
		metrics.ObserveFetch(string(kind), err, 0, time.Since(start))
		return nil, &crawler.FetchError{URL: url, Err: err}
	}
	f.logger.Debug("do request",
		zap.String("url", url),
		zap.String("host", metrics.SanitizeSite(url)),
		zap.String("kind", string(kind)),
	)

	done := make(chan fetchResult, 1)
	go func() {
		defer func() {
			f.gate.Release()
			f.logger.Debug("admission slot released", zap.String("url", url))
		}()
		done <- f.visit(ctx, url)
	}()

	var res fetchResult
	select {
	case <-ctx.Done():
		res.err = fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case res = <-done:
	}

	err := classify(url, res)
	metrics.ObserveFetch(string(kind), err, len(res.body), time.Since(start))
	if err != nil {
		return nil, err
	}
	return res.body, nil
}

func (f *Fetcher) visit(ctx context.Context, url string) fetchResult {
	var res fetchResult
	raw := &rawBody{}
	collector := f.baseCollector.Clone()
	collector.Context = withRawBody(ctx, raw)
	f.configureCollectorHooks(collector, &res)
	if err := collector.Visit(url); err != nil && res.err == nil {
		res.err = fmt.Errorf("colly visit failed: %w", err)
	}
	if raw.ok {
		// colly decodes bodies that declare a charset before OnResponse, and
		// may fail on unknown labels. The bytes on the wire are what we keep.
		res.status, res.body, res.err = raw.status, raw.body, nil
	}
	return res
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, res *fetchResult) {
	hooks.OnResponse(func(r *colly.Response) {
		res.status = r.StatusCode
		res.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			res.status = r.StatusCode
		}
		if err == nil {
			err = errors.New("unknown colly error")
		}
		res.err = err
	})
}

func classify(url string, res fetchResult) error {
	switch {
	case res.err != nil:
		return &crawler.FetchError{URL: url, StatusCode: res.status, Err: res.err}
	case res.status >= http.StatusBadRequest:
		return &crawler.FetchError{
			URL:        url,
			StatusCode: res.status,
			Err:        fmt.Errorf("unexpected status %s", http.StatusText(res.status)),
		}
	default:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
