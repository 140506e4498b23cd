package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/horde/internal/tracing"
)

func TestRemoteClient_Execute(t *testing.T) {
	var got ActionRequest
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, RequestPath, r.URL.Path)
		header = r.Header.Get(tracing.Header)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Result{
			StatusCode:    201,
			Headers:       map[string]string{"Location": "/cart/1"},
			Body:          map[string]interface{}{"id": "c-1"},
			ExecutionTime: 20 * time.Millisecond,
			TraceID:       got.TraceID,
			Attempts:      2,
		})
	}))
	defer srv.Close()

	c := NewRemoteClient(srv.URL+"/", time.Second)
	req := &ActionRequest{APIName: "shop", Method: "POST", Path: "/cart", Data: map[string]interface{}{"sku": "a"}, TraceID: "t-remote"}
	res := c.Execute(context.Background(), req)

	require.Nil(t, res.Error)
	assert.Equal(t, 201, res.StatusCode)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "t-remote", res.TraceID)
	assert.Equal(t, "/cart/1", res.Headers["Location"])
	assert.Equal(t, 20*time.Millisecond, res.ExecutionTime)

	assert.Equal(t, "t-remote", header)
	assert.Equal(t, "shop", got.APIName)
	assert.Equal(t, map[string]interface{}{"sku": "a"}, got.Data)
}

func TestRemoteClient_GeneratesTraceID(t *testing.T) {
	var posted ActionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&posted)
		_ = json.NewEncoder(w).Encode(Result{StatusCode: 200, Attempts: 1})
	}))
	defer srv.Close()

	req := &ActionRequest{APIName: "shop", Method: "GET", Path: "/"}
	res := NewRemoteClient(srv.URL, 0).Execute(context.Background(), req)

	require.Nil(t, res.Error)
	assert.NotEmpty(t, posted.TraceID)
	assert.Equal(t, posted.TraceID, res.TraceID, "the trace id sent is echoed back")
	assert.Empty(t, req.TraceID)
}

func TestRemoteClient_Failures(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		res := NewRemoteClient(url, time.Second).Execute(context.Background(), &ActionRequest{APIName: "a", Method: "GET", Path: "/"})
		assert.Equal(t, KindUpstream, res.Kind())
		assert.Equal(t, 1, res.Attempts)
	})

	t.Run("unreadable result", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}))
		defer srv.Close()

		res := NewRemoteClient(srv.URL, time.Second).Execute(context.Background(), &ActionRequest{APIName: "a", Method: "GET", Path: "/"})
		assert.Equal(t, KindUpstream, res.Kind())
	})

	// stalled answers only once the test releases it.
	stalled := func(t *testing.T) string {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		t.Cleanup(srv.Close)
		t.Cleanup(func() { close(release) })
		return srv.URL
	}

	t.Run("caller deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		res := NewRemoteClient(stalled(t), 0).Execute(ctx, &ActionRequest{APIName: "a", Method: "GET", Path: "/"})
		assert.Equal(t, KindTimeout, res.Kind())
	})

	t.Run("client timeout", func(t *testing.T) {
		start := time.Now()
		res := NewRemoteClient(stalled(t), 50*time.Millisecond).Execute(context.Background(), &ActionRequest{APIName: "a", Method: "GET", Path: "/"})
		assert.Equal(t, KindTimeout, res.Kind(), "a client timeout is not an unreachable gateway")
		assert.Equal(t, 1, res.Attempts)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("nil request", func(t *testing.T) {
		res := NewRemoteClient("http://localhost:1", 0).Execute(context.Background(), nil)
		assert.Equal(t, KindValidation, res.Kind())
	})
}

func TestRemoteClient_Routes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != RoutesPath {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[{"name":"shop","baseUrl":"http://sut","endpoints":["/products"]}]`))
	}))
	defer srv.Close()

	routes, err := NewRemoteClient(srv.URL, time.Second).Routes(context.Background())
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "shop", routes[0].Name)
	assert.Equal(t, []string{"/products"}, routes[0].Endpoints)

	_, err = NewRemoteClient(srv.URL+"/nested", time.Second).Routes(context.Background())
	assert.Error(t, err)
}
