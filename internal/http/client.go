// Package http performs single outbound HTTP attempts with phase timing.
// Retries, rate limiting and auth live in the gateway; this package only
// executes one call and reads the whole response.
package http

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// DefaultMaxBodyBytes caps how much of a response body is kept.
const DefaultMaxBodyBytes = 4 << 20

// Client represents an HTTP client with customizable options
type Client struct {
	httpClient   *http.Client
	headers      map[string]string
	maxBodyBytes int64
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// NewClient creates a new HTTP client with the given options.
//
// The client has no overall timeout of its own: every attempt is bounded by
// its context. Redirects are not followed so callers observe 3xx responses.
func NewClient(options ...ClientOption) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 100

	client := &Client{
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		headers:      make(map[string]string),
		maxBodyBytes: DefaultMaxBodyBytes,
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// WithHeader adds a header sent on every call unless the request sets it
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithMaxBodyBytes caps how much of each response body is read
func WithMaxBodyBytes(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// Do executes one request and returns the fully read response with detailed
// timing information. A response with any status code is not an error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := req.Build(ctx)
	if err != nil {
		return nil, err
	}

	for key, value := range c.headers {
		if httpReq.Header.Get(key) == "" {
			httpReq.Header.Set(key, value)
		}
	}

	timing := TimingInfo{
		StartTime: time.Now(),
	}

	var dnsStart, connectStart, tlsHandshakeStart time.Time
	lastPhaseEnd := timing.StartTime

	trace := &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			dnsStart = time.Now()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			now := time.Now()
			timing.DNSLookupTime = now.Sub(dnsStart)
			lastPhaseEnd = now
		},
		ConnectStart: func(string, string) {
			connectStart = time.Now()
		},
		ConnectDone: func(_, _ string, err error) {
			if err == nil && !connectStart.IsZero() {
				now := time.Now()
				timing.TCPConnectTime = now.Sub(connectStart)
				lastPhaseEnd = now
			}
		},
		TLSHandshakeStart: func() {
			tlsHandshakeStart = time.Now()
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			if err == nil && !tlsHandshakeStart.IsZero() {
				now := time.Now()
				timing.TLSHandshakeTime = now.Sub(tlsHandshakeStart)
				lastPhaseEnd = now
			}
		},
		GotFirstResponseByte: func() {
			timing.TimeToFirstByte = time.Since(lastPhaseEnd)
		},
	}

	httpReq = httpReq.WithContext(httptrace.WithClientTrace(httpReq.Context(), trace))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	contentTransferStart := time.Now()
	bodyBytes, err := io.ReadAll(io.LimitReader(httpResp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	timing.ContentTransferTime = time.Since(contentTransferStart)
	timing.TotalTime = time.Since(timing.StartTime)

	truncated := int64(len(bodyBytes)) > c.maxBodyBytes
	if truncated {
		bodyBytes = bodyBytes[:c.maxBodyBytes]
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, httpResp.Body)
	}

	return &Response{
		StatusCode:   httpResp.StatusCode,
		Status:       httpResp.Status,
		Headers:      httpResp.Header,
		Body:         bodyBytes,
		Truncated:    truncated,
		ResponseTime: timing.TotalTime,
		Timing:       timing,
	}, nil
}
