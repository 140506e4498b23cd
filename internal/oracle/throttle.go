package oracle

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttled limits how fast completions are requested across every session
// sharing it.
type Throttled struct {
	next    Completer
	limiter *rate.Limiter
}

// NewThrottled wraps next with a token bucket of rps requests per second and
// the given burst. A non-positive rps returns next unchanged.
func NewThrottled(next Completer, rps float64, burst int) Completer {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Complete waits for a token, honouring ctx, then calls the wrapped completer.
func (t *Throttled) Complete(ctx context.Context, system, prompt string) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for oracle rate limit: %w", err)
	}
	return t.next.Complete(ctx, system, prompt)
}
