// Package poller drives the cycle orchestrator on a fixed delay.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ycrawler/internal/crawler"
	"github.com/JakeFAU/ycrawler/internal/metrics"
)

// DefaultInterval is the delay between the end of one cycle and the start of
// the next.
const DefaultInterval = 5 * time.Second

// State is the loop state.
type State string

// Loop states.
const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Runner executes one cycle.
type Runner interface {
	Run(ctx context.Context, seen crawler.Ledger) (crawler.CycleReport, error)
}

// Config controls the loop.
type Config struct {
	Interval time.Duration
	// Once runs exactly one cycle and returns its error.
	Once bool
}

// Poller owns the ledger and guarantees cycles never overlap.
type Poller struct {
	runner Runner
	seen   crawler.Ledger
	cfg    Config
	logger *zap.Logger

	state  atomic.Value
	cycles atomic.Int64

	mu   sync.RWMutex
	last *crawler.CycleReport
}

// New constructs a Poller.
func New(runner Runner, seen crawler.Ledger, cfg Config, logger *zap.Logger) *Poller {
	if cfg.Interval < 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Poller{
		runner: runner,
		seen:   seen,
		cfg:    cfg,
		logger: logger,
	}
	p.state.Store(StateIdle)
	return p
}

// Run blocks until ctx is canceled, running one cycle at a time. A failed
// cycle is logged and the loop carries on after the normal delay. In Once
// mode the single cycle's error is returned.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poll loop started",
		zap.Duration("interval", p.cfg.Interval),
		zap.Bool("once", p.cfg.Once),
	)
	for {
		if ctx.Err() != nil {
			p.logger.Info("poll loop stopped")
			return nil
		}
		err := p.runCycle(ctx)
		if p.cfg.Once {
			return err
		}

		timer := time.NewTimer(p.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("poll loop stopped")
			return nil
		case <-timer.C:
		}
	}
}

func (p *Poller) runCycle(ctx context.Context) error {
	p.state.Store(StateRunning)
	defer p.state.Store(StateIdle)

	report, err := p.runner.Run(ctx, p.seen)
	p.cycles.Add(1)

	p.mu.Lock()
	p.last = &report
	p.mu.Unlock()

	result := metrics.ResultOK
	switch {
	case err != nil:
		result = metrics.ResultError
		p.logger.Warn("cycle aborted", zap.String("cycle_id", report.CycleID), zap.Error(err))
	case report.Idle:
		result = metrics.ResultIdle
	}
	metrics.ObserveCycle(result, report.Duration())
	if p.seen != nil {
		metrics.SetLedgerSize(p.seen.Len())
	}
	return err
}

// State reports whether a cycle is in progress.
func (p *Poller) State() State {
	s, _ := p.state.Load().(State)
	return s
}

// Cycles returns the number of cycles run so far.
func (p *Poller) Cycles() int64 {
	return p.cycles.Load()
}

// LastReport returns the report of the most recent cycle, if any.
func (p *Poller) LastReport() (crawler.CycleReport, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return crawler.CycleReport{}, false
	}
	return *p.last, true
}
