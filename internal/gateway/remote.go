package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	hordehttp "github.com/wesleyorama2/horde/internal/http"
	"github.com/wesleyorama2/horde/internal/registry"
	"github.com/wesleyorama2/horde/internal/tracing"
)

// Paths served by the gateway service.
const (
	RequestPath = "/mcp/request"
	RoutesPath  = "/routes"
)

// RemoteClient sends action requests to a gateway running as a separate
// service. It implements Mediator.
type RemoteClient struct {
	base     string
	endpoint string
	timeout  time.Duration
	client   *hordehttp.Client
}

// NewRemoteClient creates a client for the gateway at baseURL. timeout
// bounds each mediation call; zero leaves it to the caller's context.
func NewRemoteClient(baseURL string, timeout time.Duration) *RemoteClient {
	base := strings.TrimRight(baseURL, "/")
	return &RemoteClient{
		base:     base,
		endpoint: base + RequestPath,
		timeout:  timeout,
		client:   hordehttp.NewClient(hordehttp.WithHeader("Content-Type", "application/json")),
	}
}

// bound applies the client timeout to ctx.
func (c *RemoteClient) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Execute posts req to the remote gateway and decodes its Result. Transport
// failures are reported as Upstream, or Timeout when the caller's context or
// the client timeout ended the call.
func (c *RemoteClient) Execute(ctx context.Context, req *ActionRequest) *Result {
	start := time.Now()
	if req == nil {
		return &Result{Attempts: 1, Headers: map[string]string{}, Error: newError(KindValidation, "request is empty")}
	}

	traceID := tracing.EnsureTraceID(ctx, req.TraceID)
	wire := req.Clone()
	wire.TraceID = traceID

	call := hordehttp.NewRequest(http.MethodPost, c.endpoint).
		WithHeader(tracing.Header, traceID).
		WithBody(wire)

	fail := func(kind ErrorKind, format string, args ...interface{}) *Result {
		return &Result{
			Headers:       map[string]string{},
			TraceID:       traceID,
			Attempts:      1,
			ExecutionTime: time.Since(start),
			Error:         newError(kind, format, args...),
		}
	}

	callCtx, cancel := c.bound(ctx)
	defer cancel()

	resp, err := c.client.Do(callCtx, call)
	if err != nil {
		if ctx.Err() != nil {
			return fail(KindTimeout, "gateway call ended: %v", ctx.Err())
		}
		if callCtx.Err() != nil {
			return fail(KindTimeout, "no gateway answer within %s", c.timeout)
		}
		return fail(KindUpstream, "gateway unreachable: %v", err)
	}

	var res Result
	if err := json.Unmarshal(resp.Body, &res); err != nil || (res.Attempts == 0 && res.Error == nil) {
		return fail(KindUpstream, "gateway answered %d with an unreadable result", resp.StatusCode)
	}
	if res.TraceID == "" {
		res.TraceID = traceID
	}
	if res.Headers == nil {
		res.Headers = map[string]string{}
	}
	return &res
}

// Routes fetches the remote gateway's route catalogue.
func (c *RemoteClient) Routes(ctx context.Context) ([]registry.RouteInfo, error) {
	callCtx, cancel := c.bound(ctx)
	defer cancel()

	resp, err := c.client.Do(callCtx, hordehttp.NewRequest(http.MethodGet, c.base+RoutesPath))
	if err != nil {
		return nil, fmt.Errorf("fetching routes: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("fetching routes: gateway answered %d", resp.StatusCode)
	}

	var routes []registry.RouteInfo
	if err := json.Unmarshal(resp.Body, &routes); err != nil {
		return nil, fmt.Errorf("decoding routes: %w", err)
	}
	return routes, nil
}
