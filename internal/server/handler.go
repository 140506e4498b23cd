// Package server exposes the gateway as an HTTP service.
package server

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/wesleyorama2/horde/internal/gateway"
	"github.com/wesleyorama2/horde/internal/registry"
	"github.com/wesleyorama2/horde/internal/tracing"
)

// MaxRequestBytes caps the size of a mediation request body.
const MaxRequestBytes = 1 << 20

// Handler handles HTTP requests.
type Handler struct {
	gateway   *gateway.Gateway
	startedAt time.Time
}

// NewHandler creates a new handler.
func NewHandler(gw *gateway.Gateway) *Handler {
	return &Handler{
		gateway:   gw,
		startedAt: time.Now(),
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST(gateway.RequestPath, h.Mediate)
	e.GET(gateway.RoutesPath, h.Routes)
	e.GET("/health", h.Health)

	if c := h.gateway.Collector(); c != nil {
		e.GET("/metrics", echo.WrapHandler(c.Handler()))
	}
}

// Mediate executes one action request through the gateway.
//
// The response always carries X-Trace-ID. A body that is not a valid request
// is answered 400 with a Validation result; everything the gateway itself
// reports, including upstream failures, is answered 200.
func (h *Handler) Mediate(c echo.Context) error {
	r := c.Request()
	traceID := tracing.EnsureTraceID(r.Context(), r.Header.Get(tracing.Header))

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBytes+1))
	if err != nil {
		return h.invalid(c, traceID, "reading request body: "+err.Error())
	}
	if len(body) > MaxRequestBytes {
		return h.invalid(c, traceID, "request body exceeds "+strconv.Itoa(MaxRequestBytes)+" bytes")
	}

	req, verr := gateway.DecodeRequest(body)
	if verr != nil {
		return h.respond(c, http.StatusBadRequest, &gateway.Result{
			Headers:  map[string]string{},
			TraceID:  traceID,
			Attempts: 1,
			Error:    verr,
		})
	}
	if req.TraceID == "" {
		req.TraceID = traceID
	}

	res := h.gateway.Execute(tracing.WithTraceID(r.Context(), req.TraceID), req)
	return h.respond(c, http.StatusOK, res)
}

func (h *Handler) invalid(c echo.Context, traceID, msg string) error {
	return h.respond(c, http.StatusBadRequest, &gateway.Result{
		Headers:  map[string]string{},
		TraceID:  traceID,
		Attempts: 1,
		Error:    &gateway.Error{Kind: gateway.KindValidation, Message: msg},
	})
}

func (h *Handler) respond(c echo.Context, code int, res *gateway.Result) error {
	c.Response().Header().Set(tracing.Header, res.TraceID)
	return c.JSON(code, res)
}

// Routes lists the route registry with credentials redacted. ?stats=true
// adds live admission counters.
func (h *Handler) Routes(c echo.Context) error {
	withStats, _ := strconv.ParseBool(c.QueryParam("stats"))

	routes := h.gateway.Registry().Routes()
	infos := make([]registry.RouteInfo, 0, len(routes))
	for _, r := range routes {
		infos = append(infos, r.Describe(withStats))
	}
	return c.JSON(http.StatusOK, infos)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Routes int    `json:"routes"`
	Uptime string `json:"uptime"`
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: "healthy",
		Routes: h.gateway.Registry().Len(),
		Uptime: time.Since(h.startedAt).Round(time.Second).String(),
	})
}
