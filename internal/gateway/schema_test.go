package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte(`{
		"api_name": "shop",
		"method": "POST",
		"path": "/cart",
		"headers": {"X-Client": "agent"},
		"query": {"page": "2"},
		"data": {"qty": 12345678901234567},
		"trace_id": "t-1"
	}`))
	require.Nil(t, err)
	assert.Equal(t, "shop", req.APIName)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/cart", req.Path)
	assert.Equal(t, "agent", req.Headers["X-Client"])
	assert.Equal(t, "2", req.Query["page"])
	assert.Equal(t, "t-1", req.TraceID)

	// Numbers survive the round trip exactly.
	data := req.Data.(map[string]interface{})
	assert.Equal(t, json.Number("12345678901234567"), data["qty"])
}

func TestDecodeRequest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `nope`},
		{"empty", ``},
		{"missing api_name", `{"method":"GET","path":"/"}`},
		{"missing path", `{"api_name":"a","method":"GET"}`},
		{"bad method", `{"api_name":"a","method":"TRACE","path":"/"}`},
		{"relative path", `{"api_name":"a","method":"GET","path":"x"}`},
		{"non-string header", `{"api_name":"a","method":"GET","path":"/","headers":{"X":1}}`},
		{"unknown field", `{"api_name":"a","method":"GET","path":"/","timeout":5}`},
		{"array", `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest([]byte(tt.body))
			assert.Nil(t, req)
			require.NotNil(t, err)
			assert.Equal(t, KindValidation, err.Kind)
		})
	}
}
