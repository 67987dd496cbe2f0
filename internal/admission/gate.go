// Package admission implements the process-wide bound on in-flight fetches.
package admission

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/ycrawler/internal/metrics"
)

// DefaultCapacity is the number of concurrent fetches allowed when unset.
const DefaultCapacity = 5

// Gate is a counting semaphore shared by every fetch in the process.
// Capacity is fixed at construction.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
	inFlight atomic.Int64
}

// New builds a Gate. Non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Gate {
	c := int64(capacity)
	if c <= 0 {
		c = DefaultCapacity
	}
	return &Gate{
		sem:      semaphore.NewWeighted(c),
		capacity: c,
	}
}

// Acquire blocks until a slot is free or ctx ends. On error no slot is held.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("admission acquire: %w", err)
	}
	g.inFlight.Add(1)
	metrics.IncInFlight()
	return nil
}

// Release returns a slot taken by Acquire.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	metrics.DecInFlight()
	g.sem.Release(1)
}

// Do runs fn while holding a slot. The slot is released on every exit path,
// including a panic inside fn.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn()
}

// InFlight reports the number of slots currently held.
func (g *Gate) InFlight() int64 {
	return g.inFlight.Load()
}

// Capacity reports the fixed number of slots.
func (g *Gate) Capacity() int64 {
	return g.capacity
}
