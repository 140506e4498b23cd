package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// Request is one outbound call against an absolute URL.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   interface{}
}

// NewRequest creates a new request with an empty header set.
func NewRequest(method, url string) *Request {
	return &Request{
		Method: method,
		URL:    url,
		Header: make(http.Header),
	}
}

// WithHeader sets a header on the request
func (r *Request) WithHeader(key, value string) *Request {
	r.Header.Set(key, value)
	return r
}

// WithBody sets the body of the request
func (r *Request) WithBody(body interface{}) *Request {
	r.Body = body
	return r
}

// Build constructs an http.Request bound to ctx.
//
// Strings, byte slices and readers are sent as-is. Any other non-nil body is
// encoded as JSON and Content-Type defaults to application/json.
func (r *Request) Build(ctx context.Context) (*http.Request, error) {
	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}

	var bodyReader io.Reader
	if r.Body != nil {
		switch body := r.Body.(type) {
		case string:
			bodyReader = strings.NewReader(body)
		case []byte:
			bodyReader = bytes.NewReader(body)
		case io.Reader:
			bodyReader = body
		default:
			jsonBody, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			bodyReader = bytes.NewReader(jsonBody)
			if header.Get("Content-Type") == "" {
				header.Set("Content-Type", "application/json")
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(r.Method), r.URL, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header = header

	// Host is not a regular header in net/http.
	if host := header.Get("Host"); host != "" {
		req.Host = host
		req.Header.Del("Host")
	}

	return req, nil
}
