package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClient_Do(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Path != "/cart" {
			t.Errorf("Expected path /cart, got %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %s", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("User-Agent") != "horde-test" {
			t.Errorf("Expected client default header, got %s", r.Header.Get("User-Agent"))
		}

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["sku"] != "A1" {
			t.Errorf("Unexpected body %v (%v)", body, err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"cart_1"}`))
	}))
	defer server.Close()

	client := NewClient(WithHeader("User-Agent", "horde-test"))
	req := NewRequest("post", server.URL+"/cart").WithBody(map[string]string{"sku": "A1"})

	resp, err := client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", resp.StatusCode)
	}
	if !resp.IsSuccess() {
		t.Error("201 should be a success")
	}
	if string(resp.Body) != `{"id":"cart_1"}` {
		t.Errorf("Unexpected body %s", resp.Body)
	}
	if resp.Timing.TotalTime <= 0 || resp.ResponseTime != resp.Timing.TotalTime {
		t.Errorf("Expected positive total time, got %v", resp.Timing.TotalTime)
	}
	if resp.Timing.TCPConnectTime <= 0 {
		t.Errorf("Expected a connect phase on a fresh connection, got %v", resp.Timing.TCPConnectTime)
	}
	if resp.Timing.TimeToFirstByte <= 0 || resp.Timing.TimeToFirstByte > resp.Timing.TotalTime {
		t.Errorf("Expected time to first byte within total, got %v of %v", resp.Timing.TimeToFirstByte, resp.Timing.TotalTime)
	}

	decoded, ok := resp.DecodeBody().(map[string]interface{})
	if !ok || decoded["id"] != "cart_1" {
		t.Errorf("DecodeBody() = %#v", resp.DecodeBody())
	}
}

func TestClient_DoesNotFollowRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer server.Close()

	resp, err := NewClient().Do(context.Background(), NewRequest("GET", server.URL+"/start"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Errorf("Expected 302 to be returned as-is, got %d", resp.StatusCode)
	}
}

func TestClient_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient().Do(ctx, NewRequest("GET", server.URL))
	if err == nil {
		t.Fatal("Expected a timeout error")
	}
	if ctx.Err() != context.DeadlineExceeded {
		t.Errorf("Expected the context to be expired, got %v", ctx.Err())
	}
}

func TestClient_MaxBodyBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strings.Repeat("x", 100))
	}))
	defer server.Close()

	resp, err := NewClient(WithMaxBodyBytes(10)).Do(context.Background(), NewRequest("GET", server.URL))
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Body) != 10 || !resp.Truncated {
		t.Errorf("Expected a truncated 10 byte body, got %d (truncated=%v)", len(resp.Body), resp.Truncated)
	}
	if resp.DecodeBody() != strings.Repeat("x", 10) {
		t.Errorf("Truncated body should decode as a string")
	}
}

func TestRequest_Build(t *testing.T) {
	tests := []struct {
		name        string
		body        interface{}
		contentType string
		wantBody    string
	}{
		{"no body", nil, "", ""},
		{"string body", "plain", "", "plain"},
		{"bytes body", []byte("raw"), "", "raw"},
		{"json body", map[string]int{"n": 1}, "application/json", `{"n":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewRequest("PUT", "http://example.com/x").WithBody(tt.body)
			httpReq, err := req.Build(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if got := httpReq.Header.Get("Content-Type"); got != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", got, tt.contentType)
			}
			var got string
			if httpReq.Body != nil {
				b, _ := io.ReadAll(httpReq.Body)
				got = string(b)
			}
			if got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestRequest_BuildKeepsCallerHeaders(t *testing.T) {
	req := NewRequest("POST", "http://example.com").
		WithHeader("Content-Type", "application/vnd.api+json").
		WithHeader("Host", "virtual.example").
		WithBody(map[string]string{})

	httpReq, err := req.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if httpReq.Header.Get("Content-Type") != "application/vnd.api+json" {
		t.Error("explicit Content-Type must not be overwritten")
	}
	if httpReq.Host != "virtual.example" || httpReq.Header.Get("Host") != "" {
		t.Errorf("Host header should move to req.Host, got %q", httpReq.Host)
	}
	if req.Header.Get("Host") != "virtual.example" {
		t.Error("Build must not mutate the request's headers")
	}
}

func TestResponse_DecodeBody(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        interface{}
	}{
		{"empty", "application/json", "", nil},
		{"json", "application/json; charset=utf-8", `[1]`, []interface{}{float64(1)}},
		{"problem json", "application/problem+json", `{"a":true}`, map[string]interface{}{"a": true}},
		{"sniffed json", "", `{"a":1}`, map[string]interface{}{"a": float64(1)}},
		{"text", "text/plain", `{"a":1}`, `{"a":1}`},
		{"invalid json", "application/json", `{`, `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.contentType != "" {
				h.Set("Content-Type", tt.contentType)
			}
			r := &Response{Headers: h, Body: []byte(tt.body)}
			got, _ := json.Marshal(r.DecodeBody())
			want, _ := json.Marshal(tt.want)
			if string(got) != string(want) {
				t.Errorf("DecodeBody() = %s, want %s", got, want)
			}
		})
	}
}
