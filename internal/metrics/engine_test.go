package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestEngine_RecordLatency(t *testing.T) {
	e := NewEngine()

	e.RecordLatency(10*time.Millisecond, "shop", true, 100)
	e.RecordLatency(20*time.Millisecond, "shop", false, 50)
	e.RecordLatency(30*time.Millisecond, "billing", true, 0)

	snap := e.GetSnapshot()
	if snap.TotalRequests != 3 || snap.SuccessRequests != 2 || snap.FailedRequests != 1 {
		t.Errorf("unexpected counters: %+v", snap)
	}
	if snap.TotalBytes != 150 {
		t.Errorf("TotalBytes = %d, want 150", snap.TotalBytes)
	}
	if snap.Latency.Count != 3 {
		t.Errorf("Latency.Count = %d, want 3", snap.Latency.Count)
	}
	if snap.ErrorRate < 0.33 || snap.ErrorRate > 0.34 {
		t.Errorf("ErrorRate = %v, want ~0.333", snap.ErrorRate)
	}

	if len(snap.Routes) != 2 || snap.Routes[0].Route != "billing" || snap.Routes[1].Route != "shop" {
		t.Fatalf("Routes should be sorted by name, got %+v", snap.Routes)
	}
	if snap.Routes[1].Latency.Count != 2 {
		t.Errorf("shop count = %d, want 2", snap.Routes[1].Latency.Count)
	}

	// HDR keeps 3 significant figures.
	p50 := snap.Latency.P50
	if p50 < 19*time.Millisecond || p50 > 21*time.Millisecond {
		t.Errorf("P50 = %v, want ~20ms", p50)
	}
}

func TestEngine_ClampsOutOfRange(t *testing.T) {
	e := NewEngine()
	e.RecordLatency(0, "", true, 0)
	e.RecordLatency(2*time.Hour, "", true, 0)

	snap := e.GetSnapshot()
	if snap.Latency.Count != 2 {
		t.Errorf("out-of-range values must still be counted, got %d", snap.Latency.Count)
	}
	if len(snap.Routes) != 0 {
		t.Error("unnamed records must not create a route breakdown")
	}
}

func TestEngine_Concurrent(t *testing.T) {
	e := NewEngine()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.SessionStarted()
			for j := 0; j < 100; j++ {
				e.RecordLatency(time.Millisecond, "shop", true, 1)
			}
			e.SessionFinished()
		}()
	}
	wg.Wait()

	snap := e.GetSnapshot()
	if snap.TotalRequests != 2000 || snap.Latency.Count != 2000 {
		t.Errorf("lost updates: requests=%d hist=%d", snap.TotalRequests, snap.Latency.Count)
	}
	if e.ActiveSessions() != 0 {
		t.Errorf("ActiveSessions = %d, want 0", e.ActiveSessions())
	}
}

func TestEngine_Reset(t *testing.T) {
	e := NewEngine()
	e.RecordLatency(time.Millisecond, "shop", true, 10)
	e.Reset()

	snap := e.GetSnapshot()
	if snap.TotalRequests != 0 || snap.Latency.Count != 0 || len(snap.Routes) != 0 {
		t.Errorf("Reset left data behind: %+v", snap)
	}
}

func TestCollector_Exposition(t *testing.T) {
	c := NewCollector()

	c.ObserveAttempt("shop", 1, 503, 10*time.Millisecond)
	c.ObserveAttempt("shop", 2, 200, 5*time.Millisecond)
	c.ObserveRequest("shop", "", 20*time.Millisecond)
	c.ObserveRequest("shop", "Timeout", time.Second)
	c.ObserveRateLimited("shop")
	c.InflightAdd("shop", 1)
	c.ObservePhases("shop", Phases{Connect: time.Millisecond, TTFB: 4 * time.Millisecond, Transfer: time.Millisecond})
	c.SessionStarted()
	c.SessionFinished("Completed", "goal_satisfied", 3)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`horde_gateway_attempts_total{route="shop",status="503"} 1`,
		`horde_gateway_retries_total{route="shop"} 1`,
		`horde_gateway_requests_total{outcome="success",route="shop"} 1`,
		`horde_gateway_errors_total{kind="Timeout",route="shop"} 1`,
		`horde_gateway_rate_limited_total{route="shop"} 1`,
		`horde_gateway_inflight{route="shop"} 1`,
		`horde_sessions_active 0`,
		`horde_sessions_total{reason="goal_satisfied",state="Completed"} 1`,
		`horde_gateway_attempt_duration_seconds_count{route="shop"} 2`,
		`horde_gateway_attempt_phase_seconds_count{phase="ttfb",route="shop"} 1`,
		`horde_gateway_attempt_phase_seconds_count{phase="connect",route="shop"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
	if strings.Contains(out, `phase="dns"`) {
		t.Error("skipped phases must not be observed")
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.ObserveAttempt("r", 1, 200, time.Millisecond)
	c.ObserveRequest("r", "", time.Millisecond)
	c.ObserveRateLimited("r")
	c.InflightAdd("r", 1)
	c.ObservePhases("r", Phases{TTFB: time.Millisecond})
	c.SessionStarted()
	c.SessionFinished("Failed", "consecutive_failures", 1)

	if c.Registry() != nil {
		t.Error("nil collector should have no registry")
	}
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil collector handler status = %d, want 404", rec.Code)
	}
}
