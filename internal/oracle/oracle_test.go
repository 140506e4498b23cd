package oracle

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/horde/internal/config"
	"github.com/wesleyorama2/horde/internal/executor"
	"github.com/wesleyorama2/horde/internal/gateway"
)

func history(n int) []executor.Entry {
	return make([]executor.Entry, n)
}

func TestScript_Decide(t *testing.T) {
	boom := errors.New("provider down")
	s := NewScript(
		Act("shop", "GET", "/products", nil),
		Raw(`{"api_name":`),
		Fail(boom),
		Finish(),
		Act("shop", "GET", "/never", nil),
	)
	ctx := context.Background()

	d, err := s.Decide(ctx, &Input{History: history(0)})
	require.NoError(t, err)
	assert.False(t, d.Done)
	assert.JSONEq(t, `{"api_name":"shop","method":"GET","path":"/products"}`, string(d.Action))

	d, err = s.Decide(ctx, &Input{History: history(1)})
	require.NoError(t, err)
	assert.Equal(t, `{"api_name":`, string(d.Action))

	_, err = s.Decide(ctx, &Input{History: history(2)})
	assert.ErrorIs(t, err, boom)

	d, err = s.Decide(ctx, &Input{History: history(3)})
	require.NoError(t, err)
	assert.True(t, d.Done)

	d, err = s.Decide(ctx, &Input{History: history(10)})
	require.NoError(t, err)
	assert.True(t, d.Done, "an exhausted script is done")
}

func TestScript_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScript(Act("a", "GET", "/", nil)).Decide(ctx, &Input{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScriptFromConfig(t *testing.T) {
	s, err := ScriptFromConfig([]config.ScriptStep{
		{APIName: "shop", Method: "post", Path: "/cart", Data: map[string]interface{}{"sku": "a"}, Query: map[string]string{"x": "1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	d, err := s.Decide(context.Background(), &Input{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"api_name":"shop","method":"POST","path":"/cart","data":{"sku":"a"},"query":{"x":"1"}}`, string(d.Action))
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		wantDone   bool
		wantAction string
		wantErr    bool
	}{
		{"bare object", `{"done":false,"action":{"api_name":"shop","method":"GET","path":"/"}}`, false, `{"api_name":"shop","method":"GET","path":"/"}`, false},
		{"fenced", "```json\n{\"done\": true, \"reason\": \"bought\"}\n```", true, "", false},
		{"plain fence", "```\n{\"done\": true}\n```", true, "", false},
		{"prose around", `Sure! Here you go: {"action":{"api_name":"a","method":"GET","path":"/x"}} hope it helps`, false, `{"api_name":"a","method":"GET","path":"/x"}`, false},
		{"done drops action", `{"done":true,"action":{"api_name":"a"}}`, true, "", false},
		{"no json", `I think we are finished`, false, "", true},
		{"neither", `{"reason":"thinking"}`, false, "", true},
		{"null action", `{"done":false,"action":null}`, false, "", true},
		{"wrong shape", `{"done":"yes"}`, false, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDecision(tt.reply)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDone, d.Done)
			if tt.wantAction == "" {
				assert.Empty(t, d.Action)
			} else {
				assert.JSONEq(t, tt.wantAction, string(d.Action))
			}
		})
	}
}

func TestLLM_Decide(t *testing.T) {
	var gotSystem, gotPrompt string
	c := CompleterFunc(func(ctx context.Context, system, prompt string) (string, error) {
		gotSystem, gotPrompt = system, prompt
		return `{"done":false,"action":{"api_name":"shop","method":"POST","path":"/cart"},"reason":"add to cart"}`, nil
	})

	in := &Input{
		Goal:      "buy a lamp",
		Routes:    []Route{{Name: "shop", Endpoints: []string{"/products", "/cart"}}, {Name: "auth"}},
		Variables: map[string]string{"token": "abc", "id": "7"},
		History: []executor.Entry{
			{
				Step:        1,
				Action:      &gateway.ActionRequest{APIName: "shop", Method: "GET", Path: "/products"},
				Observation: executor.Observation{Status: 200, OK: true, Body: `[{"id":7}]`},
			},
			{
				Step:        2,
				Observation: executor.Observation{Kind: executor.KindDecision, Message: "decision error: bad"},
			},
		},
	}

	d, err := NewLLM(c, WithLLMLogger(zerolog.Nop())).Decide(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "add to cart", d.Reason)
	assert.JSONEq(t, `{"api_name":"shop","method":"POST","path":"/cart"}`, string(d.Action))

	assert.Equal(t, SystemPrompt, gotSystem)
	for _, want := range []string{
		"Goal: buy a lamp",
		"- shop: /products, /cart",
		"- auth: any path",
		"id = 7\n  token = abc",
		"1. shop GET /products -> status 200 body=[{\"id\":7}]",
		"2. (invalid decision) -> DecisionError: decision error: bad",
	} {
		assert.Contains(t, gotPrompt, want)
	}
}

func TestLLM_DecideErrors(t *testing.T) {
	failing := NewLLM(CompleterFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("429 too many requests")
	}))
	_, err := failing.Decide(context.Background(), &Input{Goal: "g"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	chatty := NewLLM(CompleterFunc(func(context.Context, string, string) (string, error) {
		return "let me think about it", nil
	}))
	_, err = chatty.Decide(context.Background(), &Input{Goal: "g"})
	assert.Error(t, err)
}

func TestBuildPrompt_TrimsHistory(t *testing.T) {
	entries := make([]executor.Entry, MaxHistoryInPrompt+5)
	for i := range entries {
		entries[i].Step = i + 1
	}
	prompt := BuildPrompt(&Input{Goal: "g", History: entries})
	assert.Contains(t, prompt, "(5 earlier steps omitted)")
	assert.NotContains(t, prompt, "  5. ")
	assert.Contains(t, prompt, "  6. ")
	assert.True(t, strings.HasSuffix(prompt, "Decide the next step."))
}

func TestBuildPrompt_CutsBodyOnRuneBoundary(t *testing.T) {
	// 499 ASCII bytes then a 3-byte rune that straddles the cut.
	body := strings.Repeat("a", 499) + strings.Repeat("€", 10)
	prompt := BuildPrompt(&Input{Goal: "g", History: []executor.Entry{
		{Step: 1, Observation: executor.Observation{Status: 200, OK: true, Body: body}},
	}})
	assert.True(t, utf8.ValidString(prompt))
	assert.Contains(t, prompt, " body="+strings.Repeat("a", 499)+"...\n")
}

func TestThrottled(t *testing.T) {
	var calls atomic.Int32
	inner := CompleterFunc(func(context.Context, string, string) (string, error) {
		calls.Add(1)
		return "ok", nil
	})

	_, throttled := NewThrottled(inner, 0, 0).(*Throttled)
	assert.False(t, throttled, "zero rate disables throttling")

	c := NewThrottled(inner, 20, 1)
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Complete(context.Background(), "", "")
		require.NoError(t, err)
	}
	// One token up front, then 50ms per token.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	slow := NewThrottled(inner, 0.1, 1)
	_, _ = slow.Complete(ctx, "", "")
	_, err := slow.Complete(ctx, "", "")
	assert.Error(t, err, "waiting beyond the deadline fails fast")
}

func TestFromConfig(t *testing.T) {
	o, err := FromConfig(&config.OracleConfig{
		Provider: config.ProviderScript,
		Script:   []config.ScriptStep{{APIName: "a", Method: "GET", Path: "/"}},
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &Script{}, o)

	t.Setenv("OPENAI_API_KEY", "")
	_, err = FromConfig(&config.OracleConfig{Provider: config.ProviderOpenAI, Model: "m"}, zerolog.Nop())
	assert.Error(t, err)

	o, err = FromConfig(&config.OracleConfig{Provider: config.ProviderAnthropic, APIKey: "k", Model: "m", MaxTokens: 100, RequestsPerSecond: 2, Burst: 1}, zerolog.Nop())
	require.NoError(t, err)
	llm, ok := o.(*LLM)
	require.True(t, ok)
	assert.IsType(t, &Throttled{}, llm.completer)

	_, err = FromConfig(&config.OracleConfig{Provider: "oracle-of-delphi"}, zerolog.Nop())
	assert.Error(t, err)
}
