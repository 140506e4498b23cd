// Package rate provides the per-route admission controls used by the gateway.
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Window implements a fixed-window request counter for a single route.
//
// Each window admits at most max requests. When the budget is exhausted the
// caller either waits for the next window (Wait) or is rejected (Allow).
// Every route owns its own Window, so contention on the mutex is limited to
// callers of the same route.
//
// # Thread Safety
//
// Window is safe for concurrent use from multiple goroutines. A nil *Window
// admits everything.
//
// # Example
//
//	w := NewWindow(100, time.Second) // 100 requests per second
//
//	if err := w.Wait(ctx); err != nil {
//	    return err
//	}
//	// Execute request
type Window struct {
	max    int64
	window time.Duration

	mu          sync.Mutex
	windowStart time.Time
	count       int64

	now func() time.Time

	// Metrics
	admitted  atomic.Int64
	rejected  atomic.Int64
	totalWait atomic.Int64 // nanoseconds
}

// NewWindow creates a fixed-window limiter admitting max requests per window.
//
// A max <= 0 or window <= 0 returns nil, which admits every request.
func NewWindow(max int, window time.Duration) *Window {
	if max <= 0 || window <= 0 {
		return nil
	}
	return &Window{
		max:         int64(max),
		window:      window,
		windowStart: time.Now(),
		now:         time.Now,
	}
}

// Reserve tries to take one slot in the current window.
//
// It returns true when the slot was taken. Otherwise it returns false and
// the time remaining until the next window opens.
func (w *Window) Reserve() (bool, time.Duration) {
	if w == nil {
		return true, 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	elapsed := now.Sub(w.windowStart)
	if elapsed >= w.window {
		// Align to the window grid so boundaries stay stable
		w.windowStart = w.windowStart.Add(elapsed - elapsed%w.window)
		w.count = 0
		elapsed = now.Sub(w.windowStart)
	}

	if w.count < w.max {
		w.count++
		w.admitted.Add(1)
		return true, 0
	}

	return false, w.window - elapsed
}

// Allow reports whether a request may proceed now, counting it if so.
func (w *Window) Allow() bool {
	ok, _ := w.Reserve()
	if !ok {
		w.rejected.Add(1)
	}
	return ok
}

// Wait blocks until a slot is available in the current or a later window.
//
// Returns:
//   - nil once a slot was taken
//   - ctx.Err() if the context ended first
func (w *Window) Wait(ctx context.Context) error {
	if w == nil {
		return nil
	}

	start := w.now()
	for {
		ok, retryAfter := w.Reserve()
		if ok {
			w.totalWait.Add(int64(w.now().Sub(start)))
			return nil
		}

		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.rejected.Add(1)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Max returns the request budget per window.
func (w *Window) Max() int {
	if w == nil {
		return 0
	}
	return int(w.max)
}

// Length returns the window length.
func (w *Window) Length() time.Duration {
	if w == nil {
		return 0
	}
	return w.window
}

// Stats returns statistics about the window's operation.
func (w *Window) Stats() WindowStats {
	if w == nil {
		return WindowStats{}
	}

	w.mu.Lock()
	inWindow := w.count
	w.mu.Unlock()

	return WindowStats{
		Max:       int(w.max),
		Window:    w.window,
		InWindow:  inWindow,
		Admitted:  w.admitted.Load(),
		Rejected:  w.rejected.Load(),
		TotalWait: time.Duration(w.totalWait.Load()),
	}
}

// WindowStats contains statistics about a Window.
type WindowStats struct {
	Max       int           `json:"max"`       // Budget per window
	Window    time.Duration `json:"window"`    // Window length
	InWindow  int64         `json:"inWindow"`  // Requests counted in the current window
	Admitted  int64         `json:"admitted"`  // Total admitted requests
	Rejected  int64         `json:"rejected"`  // Total rejected or abandoned requests
	TotalWait time.Duration `json:"totalWait"` // Time admitted callers spent waiting
}
