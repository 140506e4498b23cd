package config

import (
	"time"
)

// RunConfig is the root configuration for a load run.
//
// Example YAML:
//
//	name: checkout-journeys
//	sessions: 50
//	concurrency: 10
//	session:
//	  maxSteps: 15
//	  maxConsecutiveFailures: 3
//	  deadline: 2m
//	goals:
//	  - "Buy one product and check out"
//	oracle:
//	  provider: openai
//	  model: gpt-4o-mini
//	  apiKey: "${OPENAI_API_KEY}"
type RunConfig struct {
	// Name of the run (for reporting)
	Name string `json:"name" yaml:"name"`

	// Gateway points sessions at a remote gateway. When URL is empty the
	// gateway runs in-process from the route file.
	Gateway GatewayConfig `json:"gateway,omitempty" yaml:"gateway,omitempty"`

	// Sessions is the total number of sessions to start. Zero means keep
	// starting sessions until Duration elapses.
	Sessions int `json:"sessions" yaml:"sessions"`

	// Concurrency is the number of sessions running at once
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	// Duration bounds the whole run (0 = until all sessions finish)
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	Session SessionConfig `json:"session,omitempty" yaml:"session,omitempty"`

	// Goals are assigned to sessions round-robin
	Goals []string `json:"goals" yaml:"goals"`

	Oracle OracleConfig `json:"oracle" yaml:"oracle"`

	// Extract adds variable extraction rules on top of the built-in ones
	Extract []ExtractConfig `json:"extract,omitempty" yaml:"extract,omitempty"`
}

// GatewayConfig selects a remote gateway.
type GatewayConfig struct {
	URL     string   `json:"url,omitempty" yaml:"url,omitempty"`
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// SessionConfig bounds each session.
type SessionConfig struct {
	MaxSteps               int      `json:"maxSteps,omitempty" yaml:"maxSteps,omitempty"`
	MaxConsecutiveFailures int      `json:"maxConsecutiveFailures,omitempty" yaml:"maxConsecutiveFailures,omitempty"`
	Deadline               Duration `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	ThinkTime              Duration `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`
}

// Oracle providers.
const (
	ProviderScript    = "script"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// OracleConfig selects and configures the decision oracle.
type OracleConfig struct {
	Provider    string   `json:"provider" yaml:"provider"`
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey      string   `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	BaseURL     string   `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`

	// RequestsPerSecond throttles calls to the LLM provider across all
	// sessions (0 = unthrottled). Burst defaults to 1.
	RequestsPerSecond float64 `json:"requestsPerSecond,omitempty" yaml:"requestsPerSecond,omitempty"`
	Burst             int     `json:"burst,omitempty" yaml:"burst,omitempty"`

	// Script is the fixed decision sequence used by the script provider
	Script []ScriptStep `json:"script,omitempty" yaml:"script,omitempty"`
}

// ScriptStep is one scripted decision.
type ScriptStep struct {
	APIName string                 `json:"api_name" yaml:"api_name"`
	Method  string                 `json:"method" yaml:"method"`
	Path    string                 `json:"path" yaml:"path"`
	Headers map[string]string      `json:"headers,omitempty" yaml:"headers,omitempty"`
	Query   map[string]string      `json:"query,omitempty" yaml:"query,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty" yaml:"data,omitempty"`
}

// Extraction sources.
const (
	SourceBody   = "body"
	SourceHeader = "header"
	SourceStatus = "status"
)

// ExtractConfig defines how to extract a session variable from a response.
type ExtractConfig struct {
	// Name of the variable to store
	Name string `json:"name" yaml:"name"`

	// Source is where to extract from: "body", "header", "status"
	Source string `json:"source" yaml:"source"`

	// Path is the header name, or a JSONPath for body
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Run defaults.
const (
	DefaultMaxSteps               = 20
	DefaultMaxConsecutiveFailures = 3
	DefaultSessionDeadline        = 5 * time.Minute
	DefaultMaxTokens              = 1024
	DefaultGatewayTimeout         = 2 * time.Minute
	DefaultOpenAIModel            = "gpt-4o-mini"
	DefaultAnthropicModel         = "claude-3-5-haiku-latest"
)

// ApplyDefaults fills unset run fields. It is called after Validate.
func (c *RunConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "horde-run"
	}
	if c.Concurrency == 0 {
		c.Concurrency = c.Sessions
		if c.Concurrency == 0 {
			c.Concurrency = 1
		}
	}
	if c.Gateway.URL != "" && c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = Duration(DefaultGatewayTimeout)
	}

	if c.Session.MaxSteps == 0 {
		c.Session.MaxSteps = DefaultMaxSteps
	}
	if c.Session.MaxConsecutiveFailures == 0 {
		c.Session.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if c.Session.Deadline == 0 {
		c.Session.Deadline = Duration(DefaultSessionDeadline)
	}

	if c.Oracle.Provider == "" {
		c.Oracle.Provider = ProviderScript
	}
	if c.Oracle.RequestsPerSecond > 0 && c.Oracle.Burst == 0 {
		c.Oracle.Burst = 1
	}
	if c.Oracle.MaxTokens == 0 {
		c.Oracle.MaxTokens = DefaultMaxTokens
	}
	if c.Oracle.Model == "" {
		switch c.Oracle.Provider {
		case ProviderOpenAI:
			c.Oracle.Model = DefaultOpenAIModel
		case ProviderAnthropic:
			c.Oracle.Model = DefaultAnthropicModel
		}
	}
}
