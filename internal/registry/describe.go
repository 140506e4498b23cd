package registry

import "github.com/wesleyorama2/horde/internal/config"

// RouteInfo is the public, credential-free description of a route served by
// GET /routes and shown to decision oracles.
type RouteInfo struct {
	Name        string        `json:"name"`
	BaseURL     string        `json:"baseUrl"`
	Timeout     string        `json:"timeout"`
	Retry       RetryInfo     `json:"retryPolicy"`
	RateLimit   *RateInfo     `json:"rateLimit,omitempty"`
	MaxInFlight int           `json:"maxInFlight,omitempty"`
	Auth        AuthInfo      `json:"auth"`
	Endpoints   []string      `json:"endpoints,omitempty"`
	Stats       *RuntimeStats `json:"stats,omitempty"`
}

// RetryInfo describes a retry policy.
type RetryInfo struct {
	MaxRetries    int     `json:"maxRetries"`
	BackoffFactor float64 `json:"backoffFactor"`
	BaseDelay     string  `json:"baseDelay"`
	MaxDelay      string  `json:"maxDelay"`
	RetryOn       []int   `json:"retryOn"`
}

// RateInfo describes a rate limit.
type RateInfo struct {
	Max     int    `json:"max"`
	Window  string `json:"window"`
	OnLimit string `json:"onLimit"`
}

// AuthInfo describes auth with secrets masked.
type AuthInfo struct {
	Type     string            `json:"type"`
	Token    string            `json:"token,omitempty"`
	Username string            `json:"username,omitempty"`
	Password string            `json:"password,omitempty"`
	Header   string            `json:"header,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// RuntimeStats is a point-in-time view of a route's admission state.
type RuntimeStats struct {
	Admitted    int64 `json:"admitted"`
	RateLimited int64 `json:"rateLimited"`
	InWindow    int64 `json:"inWindow"`
	InFlight    int   `json:"inFlight"`
}

// Describe returns the route's public description, optionally with live
// admission stats.
func (r *Route) Describe(withStats bool) RouteInfo {
	auth := r.Auth.Redacted()

	info := RouteInfo{
		Name:    r.Name,
		BaseURL: r.BaseURL.String(),
		Timeout: r.Timeout.String(),
		Retry: RetryInfo{
			MaxRetries:    r.Retry.MaxRetries,
			BackoffFactor: r.Retry.BackoffFactor,
			BaseDelay:     r.Retry.BaseDelay.String(),
			MaxDelay:      r.Retry.MaxDelay.String(),
			RetryOn:       r.Retry.RetryCodes(),
		},
		MaxInFlight: r.MaxInFlight,
		Auth: AuthInfo{
			Type:     auth.Type,
			Token:    auth.Token,
			Username: auth.Username,
			Password: auth.Password,
			Header:   auth.Header,
			Headers:  auth.Headers,
		},
	}

	if r.RateLimit.Max > 0 {
		onLimit := config.OnLimitWait
		if r.RateLimit.Reject {
			onLimit = config.OnLimitReject
		}
		info.RateLimit = &RateInfo{
			Max:     r.RateLimit.Max,
			Window:  r.RateLimit.Window.String(),
			OnLimit: onLimit,
		}
	}

	for _, ep := range r.Endpoints {
		info.Endpoints = append(info.Endpoints, ep.Pattern)
	}

	if withStats {
		ws := r.window.Stats()
		info.Stats = &RuntimeStats{
			Admitted:    ws.Admitted,
			RateLimited: ws.Rejected,
			InWindow:    ws.InWindow,
			InFlight:    r.inflight.InUse(),
		}
	}

	return info
}
