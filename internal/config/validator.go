package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidMethods is the set of HTTP methods a decision or script step may use.
var ValidMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// Validate validates the whole route file.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
func (f *RoutesFile) Validate() error {
	errs := &ValidationErrors{}

	if len(f.Routes) == 0 {
		errs.Add("routes", "at least one route is required")
	}

	// Sorted so error output is stable
	names := make([]string, 0, len(f.Routes))
	for name := range f.Routes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		validateRoute(name, f.Routes[name], errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateRoute(name string, rc *RouteConfig, errs *ValidationErrors) {
	prefix := "routes." + name

	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " /") {
		errs.Add(prefix, "route name must be non-empty and contain no spaces or slashes")
	}
	if rc == nil {
		errs.Add(prefix, "route definition is empty")
		return
	}

	if rc.BaseURL == "" {
		errs.Add(prefix+".baseUrl", "baseUrl is required")
	} else if u, err := url.Parse(rc.BaseURL); err != nil {
		errs.Add(prefix+".baseUrl", fmt.Sprintf("invalid URL: %v", err))
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.Add(prefix+".baseUrl", "baseUrl must be an absolute http or https URL")
	}

	if rc.Timeout < 0 {
		errs.Add(prefix+".timeout", "timeout cannot be negative")
	}
	if rc.MaxInFlight < 0 {
		errs.Add(prefix+".maxInFlight", "maxInFlight cannot be negative")
	}

	if rc.RetryPolicy != nil {
		validateRetryPolicy(prefix+".retryPolicy", rc.RetryPolicy, errs)
	}
	if rc.RateLimit != nil {
		validateRateLimit(prefix+".rateLimit", rc.RateLimit, errs)
	}
	if rc.Auth != nil {
		validateAuth(prefix+".auth", rc.Auth, errs)
	}

	for i, ep := range rc.Endpoints {
		validateEndpoint(fmt.Sprintf("%s.endpoints[%d]", prefix, i), ep, errs)
	}
}

func validateRetryPolicy(prefix string, rp *RetryPolicyConfig, errs *ValidationErrors) {
	if rp.MaxRetries < 0 {
		errs.Add(prefix+".maxRetries", "maxRetries cannot be negative")
	}
	if rp.BackoffFactor != 0 && rp.BackoffFactor < 1 {
		errs.Add(prefix+".backoffFactor", "backoffFactor must be at least 1")
	}
	if rp.BaseDelay < 0 {
		errs.Add(prefix+".baseDelay", "baseDelay cannot be negative")
	}
	if rp.MaxDelay < 0 {
		errs.Add(prefix+".maxDelay", "maxDelay cannot be negative")
	}
	if rp.BaseDelay > 0 && rp.MaxDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		errs.Add(prefix+".maxDelay", "maxDelay must not be smaller than baseDelay")
	}
	for i, code := range rp.RetryOn {
		if code < 100 || code > 599 {
			errs.Add(fmt.Sprintf("%s.retryOn[%d]", prefix, i), fmt.Sprintf("invalid HTTP status code: %d", code))
		}
	}
}

func validateRateLimit(prefix string, rl *RateLimitConfig, errs *ValidationErrors) {
	if rl.Max <= 0 {
		errs.Add(prefix+".max", "max must be greater than 0")
	}
	if rl.Window <= 0 {
		errs.Add(prefix+".window", "window must be greater than 0")
	}
	switch rl.OnLimit {
	case "", OnLimitWait, OnLimitReject:
	default:
		errs.Add(prefix+".onLimit", fmt.Sprintf("invalid onLimit: %s (must be wait or reject)", rl.OnLimit))
	}
}

func validateAuth(prefix string, a *AuthConfig, errs *ValidationErrors) {
	switch a.Type {
	case "", AuthNone:
	case AuthBearer:
		if a.Token == "" {
			errs.Add(prefix+".token", "token is required for bearer auth")
		}
	case AuthBasic:
		if a.Username == "" {
			errs.Add(prefix+".username", "username is required for basic auth")
		}
	case AuthAPIKey:
		if a.Token == "" {
			errs.Add(prefix+".token", "token is required for apikey auth")
		}
	case AuthHeaders:
		if len(a.Headers) == 0 {
			errs.Add(prefix+".headers", "headers are required for headers auth")
		}
	default:
		errs.Add(prefix+".type", fmt.Sprintf("invalid auth type: %s", a.Type))
	}
}

func validateEndpoint(prefix, ep string, errs *ValidationErrors) {
	if !strings.HasPrefix(ep, "/") {
		errs.Add(prefix, fmt.Sprintf("endpoint must start with '/': %s", ep))
		return
	}
	if i := strings.Index(ep, "*"); i >= 0 && i != len(ep)-1 {
		errs.Add(prefix, fmt.Sprintf("'*' is only allowed at the end of an endpoint: %s", ep))
	}
	for _, seg := range strings.Split(ep, "/") {
		open, closed := strings.HasPrefix(seg, "{"), strings.HasSuffix(seg, "}")
		if open != closed || (open && len(seg) < 3) {
			errs.Add(prefix, fmt.Sprintf("malformed parameter segment %q in %s", seg, ep))
		}
	}
}

// Validate validates the run configuration.
func (c *RunConfig) Validate() error {
	errs := &ValidationErrors{}

	if c.Sessions < 0 {
		errs.Add("sessions", "sessions cannot be negative")
	}
	if c.Concurrency < 0 {
		errs.Add("concurrency", "concurrency cannot be negative")
	}
	if c.Duration < 0 {
		errs.Add("duration", "duration cannot be negative")
	}
	if c.Sessions == 0 && c.Duration == 0 {
		errs.Add("sessions", "either sessions or duration must be set")
	}

	if len(c.Goals) == 0 {
		errs.Add("goals", "at least one goal is required")
	}
	for i, g := range c.Goals {
		if strings.TrimSpace(g) == "" {
			errs.Add(fmt.Sprintf("goals[%d]", i), "goal cannot be empty")
		}
	}

	if c.Gateway.URL != "" {
		if u, err := url.Parse(c.Gateway.URL); err != nil || u.Host == "" {
			errs.Add("gateway.url", fmt.Sprintf("invalid gateway URL: %s", c.Gateway.URL))
		}
	}

	validateSession(&c.Session, errs)
	validateOracle(&c.Oracle, errs)

	for i := range c.Extract {
		validateExtract(fmt.Sprintf("extract[%d]", i), &c.Extract[i], errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateSession(s *SessionConfig, errs *ValidationErrors) {
	if s.MaxSteps < 0 {
		errs.Add("session.maxSteps", "maxSteps cannot be negative")
	}
	if s.MaxConsecutiveFailures < 0 {
		errs.Add("session.maxConsecutiveFailures", "maxConsecutiveFailures cannot be negative")
	}
	if s.Deadline < 0 {
		errs.Add("session.deadline", "deadline cannot be negative")
	}
	if s.ThinkTime < 0 {
		errs.Add("session.thinkTime", "thinkTime cannot be negative")
	}
}

func validateOracle(o *OracleConfig, errs *ValidationErrors) {
	switch o.Provider {
	case "", ProviderScript:
		if len(o.Script) == 0 {
			errs.Add("oracle.script", "script provider requires at least one step")
		}
	case ProviderOpenAI, ProviderAnthropic:
	default:
		errs.Add("oracle.provider", fmt.Sprintf("invalid provider: %s (must be script, openai or anthropic)", o.Provider))
	}

	if o.MaxTokens < 0 {
		errs.Add("oracle.maxTokens", "maxTokens cannot be negative")
	}
	if o.RequestsPerSecond < 0 {
		errs.Add("oracle.requestsPerSecond", "requestsPerSecond cannot be negative")
	}
	if o.Burst < 0 {
		errs.Add("oracle.burst", "burst cannot be negative")
	}
	if o.Temperature != nil && (*o.Temperature < 0 || *o.Temperature > 2) {
		errs.Add("oracle.temperature", "temperature must be between 0 and 2")
	}

	for i, step := range o.Script {
		prefix := fmt.Sprintf("oracle.script[%d]", i)
		if step.APIName == "" {
			errs.Add(prefix+".api_name", "api_name is required")
		}
		if !ValidMethods[strings.ToUpper(step.Method)] {
			errs.Add(prefix+".method", fmt.Sprintf("invalid HTTP method: %s", step.Method))
		}
		if !strings.HasPrefix(step.Path, "/") {
			errs.Add(prefix+".path", "path must start with '/'")
		}
	}
}

func validateExtract(prefix string, extract *ExtractConfig, errs *ValidationErrors) {
	if extract.Name == "" {
		errs.Add(prefix+".name", "name is required")
	}

	switch extract.Source {
	case SourceBody, SourceHeader:
		if extract.Path == "" {
			errs.Add(prefix+".path", "path is required for body and header sources")
		}
	case SourceStatus:
	case "":
		errs.Add(prefix+".source", "source is required")
	default:
		errs.Add(prefix+".source", fmt.Sprintf("invalid source: %s (must be body, header, or status)", extract.Source))
	}
}
