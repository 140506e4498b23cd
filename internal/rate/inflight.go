package rate

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Inflight bounds the number of concurrent outbound calls for one route.
// A nil *Inflight is unbounded.
type Inflight struct {
	limit int64
	sem   *semaphore.Weighted
	inUse atomic.Int64
}

// NewInflight returns a bound of limit concurrent calls, or nil when limit <= 0.
func NewInflight(limit int) *Inflight {
	if limit <= 0 {
		return nil
	}
	return &Inflight{
		limit: int64(limit),
		sem:   semaphore.NewWeighted(int64(limit)),
	}
}

// Acquire blocks until a slot is free or ctx ends.
func (f *Inflight) Acquire(ctx context.Context) error {
	if f == nil {
		return nil
	}
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	f.inUse.Add(1)
	return nil
}

// Release frees a slot taken by Acquire.
func (f *Inflight) Release() {
	if f == nil {
		return
	}
	f.inUse.Add(-1)
	f.sem.Release(1)
}

// InUse returns the number of calls currently holding a slot.
func (f *Inflight) InUse() int {
	if f == nil {
		return 0
	}
	return int(f.inUse.Load())
}

// Limit returns the configured bound (0 when unbounded).
func (f *Inflight) Limit() int {
	if f == nil {
		return 0
	}
	return int(f.limit)
}
