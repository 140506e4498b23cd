// Package config provides parsing and validation for horde's route and run
// files.
package config

import (
	"time"
)

// RoutesFile is the root of a route configuration file.
//
// Example YAML:
//
//	routes:
//	  shop:
//	    baseUrl: http://localhost:8080
//	    timeout: 5s
//	    retryPolicy:
//	      maxRetries: 3
//	      backoffFactor: 1.5
//	      baseDelay: 100ms
//	      retryOn: [502, 503, 504]
//	    rateLimit: {max: 100, window: 1s, onLimit: wait}
//	    auth: {type: bearer, token: "${SHOP_TOKEN}"}
//	    endpoints: ["/products", "/products/{id}", "/cart/*"]
type RoutesFile struct {
	Routes map[string]*RouteConfig `json:"routes" yaml:"routes"`
}

// RouteConfig describes one logical target.
type RouteConfig struct {
	// BaseURL is the scheme and host (optionally a path prefix) of the target
	BaseURL string `json:"baseUrl" yaml:"baseUrl"`

	// Timeout bounds a single attempt
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	RetryPolicy *RetryPolicyConfig `json:"retryPolicy,omitempty" yaml:"retryPolicy,omitempty"`
	RateLimit   *RateLimitConfig   `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`

	// MaxInFlight bounds concurrent outbound calls to this route (0 = unbounded)
	MaxInFlight int `json:"maxInFlight,omitempty" yaml:"maxInFlight,omitempty"`

	Auth *AuthConfig `json:"auth,omitempty" yaml:"auth,omitempty"`

	// Endpoints restricts the paths callers may hit. Segments may be
	// {param} placeholders and a trailing * matches any remainder.
	Endpoints []string `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
}

// RetryPolicyConfig controls retries of one logical request.
type RetryPolicyConfig struct {
	MaxRetries    int      `json:"maxRetries" yaml:"maxRetries"`
	BackoffFactor float64  `json:"backoffFactor,omitempty" yaml:"backoffFactor,omitempty"`
	BaseDelay     Duration `json:"baseDelay,omitempty" yaml:"baseDelay,omitempty"`
	MaxDelay      Duration `json:"maxDelay,omitempty" yaml:"maxDelay,omitempty"`
	RetryOn       []int    `json:"retryOn,omitempty" yaml:"retryOn,omitempty"`
}

// Rate-limit policies applied when a window is exhausted.
const (
	OnLimitWait   = "wait"
	OnLimitReject = "reject"
)

// RateLimitConfig caps requests per fixed window.
type RateLimitConfig struct {
	Max     int      `json:"max" yaml:"max"`
	Window  Duration `json:"window" yaml:"window"`
	OnLimit string   `json:"onLimit,omitempty" yaml:"onLimit,omitempty"`
}

// Auth types.
const (
	AuthNone    = "none"
	AuthBearer  = "bearer"
	AuthBasic   = "basic"
	AuthAPIKey  = "apikey"
	AuthHeaders = "headers"
)

// AuthConfig holds the credentials injected into every outbound call.
type AuthConfig struct {
	Type     string            `json:"type" yaml:"type"`
	Token    string            `json:"token,omitempty" yaml:"token,omitempty"`
	Username string            `json:"username,omitempty" yaml:"username,omitempty"`
	Password string            `json:"password,omitempty" yaml:"password,omitempty"`
	Header   string            `json:"header,omitempty" yaml:"header,omitempty"`
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Route defaults.
const (
	DefaultRouteTimeout  = 30 * time.Second
	DefaultBackoffFactor = 2.0
	DefaultBaseDelay     = 100 * time.Millisecond
	DefaultMaxDelay      = 10 * time.Second
	DefaultAPIKeyHeader  = "X-API-Key"
)

// DefaultRetryOn is used when a retry policy allows retries but names no codes.
var DefaultRetryOn = []int{502, 503, 504}

// ApplyDefaults fills unset route fields. It is called after Validate.
func (f *RoutesFile) ApplyDefaults() {
	for _, rc := range f.Routes {
		rc.applyDefaults()
	}
}

func (rc *RouteConfig) applyDefaults() {
	if rc.Timeout == 0 {
		rc.Timeout = Duration(DefaultRouteTimeout)
	}

	if rc.RetryPolicy == nil {
		rc.RetryPolicy = &RetryPolicyConfig{}
	}
	rp := rc.RetryPolicy
	if rp.BackoffFactor == 0 {
		rp.BackoffFactor = DefaultBackoffFactor
	}
	if rp.BaseDelay == 0 {
		rp.BaseDelay = Duration(DefaultBaseDelay)
	}
	if rp.MaxDelay == 0 {
		rp.MaxDelay = Duration(DefaultMaxDelay)
	}
	if rp.MaxRetries > 0 && len(rp.RetryOn) == 0 {
		rp.RetryOn = append([]int(nil), DefaultRetryOn...)
	}

	if rc.RateLimit != nil && rc.RateLimit.OnLimit == "" {
		rc.RateLimit.OnLimit = OnLimitWait
	}

	if rc.Auth == nil {
		rc.Auth = &AuthConfig{Type: AuthNone}
	}
	if rc.Auth.Type == "" {
		rc.Auth.Type = AuthNone
	}
	if rc.Auth.Type == AuthAPIKey && rc.Auth.Header == "" {
		rc.Auth.Header = DefaultAPIKeyHeader
	}
}
