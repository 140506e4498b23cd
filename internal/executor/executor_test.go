package executor

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/horde/internal/config"
	"github.com/wesleyorama2/horde/internal/gateway"
)

func TestToAction(t *testing.T) {
	e := New(nil)
	vars := map[string]string{"token": "abc", "id": "42"}

	req, err := e.ToAction(json.RawMessage(`{
		"api_name": "shop",
		"method": "post",
		"path": "/carts/{{id}}/items",
		"headers": {"Authorization": "Bearer {{token}}"},
		"query": {"qty": 2, "gift": true, "note": "{{missing}}"},
		"data": {"owner": "{{id}}", "tags": ["{{token}}", 1]}
	}`), vars, "trace-1")

	require.NoError(t, err)
	assert.Equal(t, "shop", req.APIName)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/carts/42/items", req.Path)
	assert.Equal(t, "Bearer abc", req.Headers["Authorization"])
	assert.Equal(t, map[string]string{"qty": "2", "gift": "true", "note": "{{missing}}"}, req.Query)
	assert.Equal(t, "trace-1", req.TraceID)

	data := req.Data.(map[string]interface{})
	assert.Equal(t, "42", data["owner"])
	assert.Equal(t, []interface{}{"abc", json.Number("1")}, data["tags"])
}

func TestToAction_RejectsMalformedDecisions(t *testing.T) {
	e := New(nil)

	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"empty", ``, "no action"},
		{"null", `null`, "no action"},
		{"not json", `go buy something`, "schema"},
		{"array", `[{"api_name":"shop"}]`, "schema"},
		{"missing method", `{"api_name":"shop","path":"/"}`, "schema"},
		{"unknown method", `{"api_name":"shop","method":"BREW","path":"/"}`, "schema"},
		{"relative path", `{"api_name":"shop","method":"GET","path":"products"}`, "schema"},
		{"extra field", `{"api_name":"shop","method":"GET","path":"/","why":"because"}`, "schema"},
		{"header not string", `{"api_name":"shop","method":"GET","path":"/","headers":{"X":1}}`, "schema"},
		{"escapes host", `{"api_name":"shop","method":"GET","path":"//evil.example/"}`, "valid request"},
		{"dot-dot", `{"api_name":"shop","method":"GET","path":"/a/../b"}`, "valid request"},
		{"duplicate headers", `{"api_name":"shop","method":"GET","path":"/","headers":{"Accept":"a","ACCEPT":"b"}}`, "valid request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := e.ToAction(json.RawMessage(tt.raw), nil, "t")
			assert.Nil(t, req)
			require.Error(t, err)

			var de *DecisionError
			require.True(t, errors.As(err, &de), "want *DecisionError, got %T", err)
			assert.Contains(t, de.Reason, tt.reason)
		})
	}
}

func TestToAction_SubstitutedPathIsRevalidated(t *testing.T) {
	e := New(nil)
	_, err := e.ToAction(json.RawMessage(`{"api_name":"shop","method":"GET","path":"/{{p}}"}`),
		map[string]string{"p": "../admin"}, "t")

	var de *DecisionError
	require.ErrorAs(t, err, &de)
	var gerr *gateway.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, gateway.KindValidation, gerr.Kind)
}

func TestFromResult(t *testing.T) {
	e := New(nil)

	res := &gateway.Result{
		StatusCode:    201,
		Headers:       map[string]string{"Location": "/orders/9"},
		Body:          map[string]interface{}{"id": float64(9), "token": "tok", "access_token": nil},
		ExecutionTime: 12 * time.Millisecond,
		TraceID:       "t-1",
		Attempts:      2,
	}
	obs := e.FromResult(res)

	assert.True(t, obs.OK)
	assert.Equal(t, 201, obs.Status)
	assert.Equal(t, 2, obs.Attempts)
	assert.Equal(t, "t-1", obs.TraceID)
	assert.Equal(t, 12*time.Millisecond, obs.Latency)
	assert.Empty(t, obs.Kind)
	assert.JSONEq(t, `{"id":9,"token":"tok","access_token":null}`, obs.Body)
	assert.Equal(t, map[string]string{"id": "9", "token": "tok"}, obs.Extracted)
}

func TestFromResult_Failure(t *testing.T) {
	e := New(nil)

	obs := e.FromResult(&gateway.Result{
		StatusCode: 503,
		Body:       map[string]interface{}{"id": "err-1"},
		Attempts:   4,
		Error:      &gateway.Error{Kind: gateway.KindUpstream, Message: "giving up"},
	})
	assert.False(t, obs.OK)
	assert.Equal(t, "Upstream", obs.Kind)
	assert.Equal(t, "giving up", obs.Message)
	assert.Nil(t, obs.Extracted, "nothing is extracted from failed calls")

	obs = e.FromResult(&gateway.Result{StatusCode: 404, Body: "not found"})
	assert.False(t, obs.OK)
	assert.Empty(t, obs.Kind)
	assert.Equal(t, "not found", obs.Body)
}

func TestFromResult_ConfiguredRules(t *testing.T) {
	e := New([]config.ExtractConfig{
		{Name: "id", Source: config.SourceBody, Path: "$.order.id"},
		{Name: "session", Source: config.SourceHeader, Path: "x-session"},
		{Name: "code", Source: config.SourceStatus},
	})

	obs := e.FromResult(&gateway.Result{
		StatusCode: 200,
		Headers:    map[string]string{"X-Session": "s-1"},
		Body:       map[string]interface{}{"id": "outer", "order": map[string]interface{}{"id": "inner"}},
	})

	assert.Equal(t, map[string]string{"id": "inner", "session": "s-1", "code": "200"}, obs.Extracted)
	assert.Len(t, e.Rules(), 6)
}

func TestFromResult_TruncatesBody(t *testing.T) {
	e := New(nil)
	obs := e.FromResult(&gateway.Result{StatusCode: 200, Body: strings.Repeat("x", MaxBodyPreview+10)})
	assert.True(t, strings.HasSuffix(obs.Body, "...(truncated)"))
	assert.Len(t, obs.Body, MaxBodyPreview+len("...(truncated)"))
}

func TestDecisionObservation(t *testing.T) {
	obs := DecisionObservation(&DecisionError{Reason: "bad"})
	assert.Equal(t, KindDecision, obs.Kind)
	assert.False(t, obs.OK)
	assert.True(t, Entry{Observation: obs}.Failed())
	assert.Equal(t, "decision error: bad", obs.Message)
}

func TestSubstitute(t *testing.T) {
	vars := map[string]string{"a": "1", "b": "2"}
	assert.Equal(t, "/x/1/2", Substitute("/x/{{a}}/{{b}}", vars))
	assert.Equal(t, "/x/{{c}}", Substitute("/x/{{c}}", vars))
	assert.Equal(t, "plain", Substitute("plain", nil))

	// A value that looks like a placeholder is kept verbatim whatever the
	// map iteration order.
	chained := map[string]string{"a": "{{b}}", "b": "{{a}}", "c": "3"}
	for i := 0; i < 50; i++ {
		assert.Equal(t, "/{{b}}/{{a}}/3/{{d}}", Substitute("/{{a}}/{{b}}/{{c}}/{{d}}", chained))
	}
}
