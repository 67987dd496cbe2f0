package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ycrawler/internal/crawler"
	"github.com/JakeFAU/ycrawler/internal/ledger"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	active  atomic.Int32
	overlap atomic.Bool
	block   chan struct{}
	started chan struct{}
	results []error
}

func (r *fakeRunner) Run(ctx context.Context, seen crawler.Ledger) (crawler.CycleReport, error) {
	if r.active.Add(1) > 1 {
		r.overlap.Store(true)
	}
	defer r.active.Add(-1)

	r.mu.Lock()
	idx := r.calls
	r.calls++
	r.mu.Unlock()

	if r.started != nil {
		select {
		case r.started <- struct{}{}:
		default:
		}
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
		}
	}

	report := crawler.CycleReport{CycleID: "c", StartedAt: time.Now(), FinishedAt: time.Now()}
	var err error
	if idx < len(r.results) {
		err = r.results[idx]
	}
	if err != nil {
		return report, err
	}
	seen.Add("1001")
	report.New = 1
	return report, nil
}

func (r *fakeRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestRunOnceRunsExactlyOneCycle(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	seen := ledger.New()
	p := New(runner, seen, Config{Interval: time.Hour, Once: true}, zap.NewNop())

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 1, runner.Calls())
	assert.Equal(t, StateIdle, p.State())
	assert.EqualValues(t, 1, p.Cycles())
	assert.True(t, seen.Contains("1001"))

	report, ok := p.LastReport()
	require.True(t, ok)
	assert.Equal(t, 1, report.New)
}

func TestRunOnceReturnsCycleError(t *testing.T) {
	t.Parallel()

	listingErr := &crawler.ListingFetchError{URL: "u", Err: errors.New("down")}
	runner := &fakeRunner{results: []error{listingErr}}
	p := New(runner, ledger.New(), Config{Once: true}, nil)

	err := p.Run(context.Background())
	require.ErrorIs(t, err, listingErr)
}

func TestRunContinuesAfterFailedCycle(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{results: []error{errors.New("listing down"), errors.New("listing down")}}
	seen := ledger.New()
	p := New(runner, seen, Config{Interval: time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return runner.Calls() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after context cancel")
	}
	assert.False(t, runner.overlap.Load(), "cycles must never overlap")
	assert.True(t, seen.Contains("1001"))
}

func TestStateRunningDuringCycle(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	p := New(runner, ledger.New(), Config{Interval: time.Hour}, nil)
	_, ok := p.LastReport()
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("cycle did not start")
	}
	assert.Equal(t, StateRunning, p.State())

	close(runner.block)
	require.Eventually(t, func() bool { return p.State() == StateIdle }, time.Second, time.Millisecond)
	assert.Equal(t, 1, runner.Calls(), "next cycle waits for the interval")

	cancel()
	require.NoError(t, <-done)
}

func TestRunStopsImmediatelyOnCanceledContext(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	p := New(runner, ledger.New(), Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, 0, runner.Calls())
}

func TestNewDefaultsNegativeInterval(t *testing.T) {
	t.Parallel()

	p := New(&fakeRunner{}, ledger.New(), Config{Interval: -1}, nil)
	assert.Equal(t, DefaultInterval, p.cfg.Interval)
}
