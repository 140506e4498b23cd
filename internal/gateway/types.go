// Package gateway mediates agent actions to target systems.
//
// A Gateway validates an ActionRequest, resolves its route, applies the
// route's rate limit and credentials, executes the call with bounded
// retries and returns a normalized Result. Failures never surface as Go
// errors or panics: they are reported in Result.Error so callers can decide
// what to do next.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Mediator executes action requests. Both the in-process Gateway and the
// RemoteClient implement it.
type Mediator interface {
	Execute(ctx context.Context, req *ActionRequest) *Result
}

// ActionRequest is the mediation schema: one HTTP call against a named route.
type ActionRequest struct {
	APIName string            `json:"api_name"`
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
	Data    interface{}       `json:"data,omitempty"`
	TraceID string            `json:"trace_id,omitempty"`
}

// Clone returns a copy whose header and query maps can be modified freely.
func (r *ActionRequest) Clone() *ActionRequest {
	c := *r
	if r.Headers != nil {
		c.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			c.Headers[k] = v
		}
	}
	if r.Query != nil {
		c.Query = make(map[string]string, len(r.Query))
		for k, v := range r.Query {
			c.Query[k] = v
		}
	}
	return &c
}

// ErrorKind tags why a request failed.
type ErrorKind string

// Error kinds.
const (
	KindValidation    ErrorKind = "Validation"
	KindRouteNotFound ErrorKind = "RouteNotFound"
	KindRateLimited   ErrorKind = "RateLimited"
	KindTimeout       ErrorKind = "Timeout"
	KindUpstream      ErrorKind = "Upstream"
)

// Error is a tagged gateway failure.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Result is the normalized outcome of one logical request.
//
// StatusCode is the last status observed from the target, or 0 when no
// response was received. Body holds decoded JSON when the target answered
// with JSON, otherwise a string.
type Result struct {
	StatusCode    int               `json:"status_code"`
	Headers       map[string]string `json:"headers"`
	Body          interface{}       `json:"body"`
	ExecutionTime time.Duration     `json:"-"`
	TraceID       string            `json:"trace_id"`
	Attempts      int               `json:"attempts"`
	Error         *Error            `json:"error,omitempty"`

	// BodySize is the number of body bytes received on the final attempt.
	BodySize int64 `json:"-"`
}

// OK reports whether the call reached the target and got a non-error status.
func (r *Result) OK() bool {
	return r.Error == nil && r.StatusCode > 0 && r.StatusCode < 400
}

// Kind returns the error kind, or "" on success.
func (r *Result) Kind() ErrorKind {
	if r.Error == nil {
		return ""
	}
	return r.Error.Kind
}

type resultJSON Result

type resultWire struct {
	*resultJSON
	ExecutionTime float64 `json:"execution_time"`
}

// MarshalJSON renders execution_time as fractional seconds.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Headers == nil {
		r.Headers = map[string]string{}
	}
	return json.Marshal(resultWire{
		resultJSON:    (*resultJSON)(&r),
		ExecutionTime: r.ExecutionTime.Seconds(),
	})
}

// UnmarshalJSON reads execution_time as fractional seconds.
func (r *Result) UnmarshalJSON(data []byte) error {
	w := resultWire{resultJSON: (*resultJSON)(r)}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.ExecutionTime = time.Duration(w.ExecutionTime * float64(time.Second))
	return nil
}
