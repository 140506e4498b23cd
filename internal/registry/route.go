package registry

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/wesleyorama2/horde/internal/config"
	"github.com/wesleyorama2/horde/internal/rate"
)

// Route is a named target with its connection, retry, rate-limit and auth
// policy. Exported fields must not be modified after the registry is built.
type Route struct {
	Name        string
	BaseURL     *url.URL
	Timeout     time.Duration
	Retry       RetryPolicy
	RateLimit   RateLimit
	MaxInFlight int
	Auth        Auth
	Endpoints   []*Endpoint

	window   *rate.Window
	inflight *rate.Inflight
}

// RetryPolicy controls how a failing request is retried.
type RetryPolicy struct {
	MaxRetries    int
	BackoffFactor float64
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	RetryOn       map[int]bool
}

// RateLimit is the fixed-window budget of a route. Max == 0 means unlimited.
type RateLimit struct {
	Max    int
	Window time.Duration
	Reject bool
}

func newRoute(name string, rc *config.RouteConfig) (*Route, error) {
	base, err := url.Parse(rc.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid baseUrl: %w", err)
	}

	r := &Route{
		Name:        name,
		BaseURL:     base,
		Timeout:     rc.Timeout.GetDuration(config.DefaultRouteTimeout),
		MaxInFlight: rc.MaxInFlight,
		Auth:        newAuth(rc.Auth),
		Retry:       RetryPolicy{RetryOn: map[int]bool{}},
	}

	if rp := rc.RetryPolicy; rp != nil {
		r.Retry.MaxRetries = rp.MaxRetries
		r.Retry.BackoffFactor = rp.BackoffFactor
		r.Retry.BaseDelay = time.Duration(rp.BaseDelay)
		r.Retry.MaxDelay = time.Duration(rp.MaxDelay)
		for _, code := range rp.RetryOn {
			r.Retry.RetryOn[code] = true
		}
	}

	if rl := rc.RateLimit; rl != nil {
		r.RateLimit = RateLimit{
			Max:    rl.Max,
			Window: time.Duration(rl.Window),
			Reject: rl.OnLimit == config.OnLimitReject,
		}
	}

	for _, pattern := range rc.Endpoints {
		r.Endpoints = append(r.Endpoints, ParseEndpoint(pattern))
	}

	r.window = rate.NewWindow(r.RateLimit.Max, r.RateLimit.Window)
	r.inflight = rate.NewInflight(r.MaxInFlight)

	return r, nil
}

// Window returns the route's rate window (nil when unlimited).
func (r *Route) Window() *rate.Window {
	return r.window
}

// Inflight returns the route's in-flight bound (nil when unbounded).
func (r *Route) Inflight() *rate.Inflight {
	return r.inflight
}

// Allows reports whether path is permitted by the route's endpoint list.
// A route without endpoints allows every path.
func (r *Route) Allows(path string) bool {
	if len(r.Endpoints) == 0 {
		return true
	}
	for _, ep := range r.Endpoints {
		if ep.Match(path) {
			return true
		}
	}
	return false
}

// URL joins the route's base URL with an origin-form path. A query string in
// path is kept and merged with query; query wins on conflicts.
func (r *Route) URL(path string, query map[string]string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	u := *r.BaseURL
	u.Path = strings.TrimSuffix(r.BaseURL.Path, "/") + ref.Path
	u.RawPath = ""
	if ref.RawPath != "" {
		u.RawPath = strings.TrimSuffix(r.BaseURL.EscapedPath(), "/") + ref.RawPath
	}

	q := r.BaseURL.Query()
	for k, vs := range ref.Query() {
		q[k] = vs
	}
	for k, v := range query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""

	return u.String(), nil
}

// Retryable reports whether a response status should be retried.
func (p RetryPolicy) Retryable(status int) bool {
	return p.RetryOn[status]
}

// Backoff returns the delay to sleep after failed attempt k (1-based):
// min(MaxDelay, BaseDelay * BackoffFactor^(k-1)).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}

	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}

	delay := float64(p.BaseDelay) * math.Pow(factor, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// RetryCodes returns the retryable status codes in ascending order.
func (p RetryPolicy) RetryCodes() []int {
	codes := make([]int, 0, len(p.RetryOn))
	for code := range p.RetryOn {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}
