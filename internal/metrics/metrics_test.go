package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInMemoryRecorder_Snapshot(t *testing.T) {
	m := NewInMemory()

	m.ObserveUpstreamCall("pools", "get_pool", OutcomeSuccess, 10*time.Millisecond)
	m.ObserveUpstreamCall("pools", "get_pool", OutcomeSuccess, 5*time.Millisecond)
	m.ObserveUpstreamCall("matches", "create_match", OutcomeRejected, time.Millisecond)
	m.IncPoolCreated()
	m.IncPoolJoined()
	m.IncPoolJoined()
	m.IncMatchCreated()
	m.IncMatchSkipped()
	m.ObserveGenerationFanout(3)
	m.IncDecisionFetchSkipped()

	snap := m.Snapshot()

	if got := snap.UpstreamCalls["pools.get_pool.success"]; got != 2 {
		t.Errorf("expected 2 pools.get_pool successes, got %d", got)
	}
	if got := snap.UpstreamCalls["matches.create_match.rejected"]; got != 1 {
		t.Errorf("expected 1 rejected create_match, got %d", got)
	}
	if snap.UpstreamDurationTotal != 16*time.Millisecond {
		t.Errorf("unexpected duration total: %s", snap.UpstreamDurationTotal)
	}
	if snap.PoolsCreated != 1 || snap.PoolsJoined != 2 {
		t.Errorf("unexpected pool counters: created=%d joined=%d", snap.PoolsCreated, snap.PoolsJoined)
	}
	if snap.MatchesCreated != 1 || snap.MatchesSkipped != 1 {
		t.Errorf("unexpected match counters: created=%d skipped=%d", snap.MatchesCreated, snap.MatchesSkipped)
	}
	if snap.GenerationRuns != 1 || snap.GenerationPeers != 3 {
		t.Errorf("unexpected generation counters: runs=%d peers=%d", snap.GenerationRuns, snap.GenerationPeers)
	}
	if snap.DecisionFetchSkipped != 1 {
		t.Errorf("expected 1 skipped decision fetch, got %d", snap.DecisionFetchSkipped)
	}

	// Snapshot must be a copy.
	snap.UpstreamCalls["pools.get_pool.success"] = 99
	if m.Snapshot().UpstreamCalls["pools.get_pool.success"] != 2 {
		t.Error("snapshot map aliases recorder state")
	}
}

func TestPrometheusRecorder_Counters(t *testing.T) {
	p := NewPrometheus()

	p.ObserveUpstreamCall("matches", "create_match", OutcomeSuccess, 20*time.Millisecond)
	p.IncMatchCreated()
	p.IncMatchCreated()
	p.IncMatchSkipped()
	p.IncPoolCreated()

	if got := promtestutil.ToFloat64(p.upstreamCalls.WithLabelValues("matches", "create_match", OutcomeSuccess)); got != 1 {
		t.Errorf("expected 1 upstream call, got %v", got)
	}
	if got := promtestutil.ToFloat64(p.matches.WithLabelValues("created")); got != 2 {
		t.Errorf("expected 2 created matches, got %v", got)
	}
	if got := promtestutil.ToFloat64(p.matches.WithLabelValues("skipped")); got != 1 {
		t.Errorf("expected 1 skipped match, got %v", got)
	}
	if got := promtestutil.ToFloat64(p.pools.WithLabelValues("created")); got != 1 {
		t.Errorf("expected 1 created pool, got %v", got)
	}
}

func TestPrometheusRecorder_InstrumentHandlerUsesRoutePattern(t *testing.T) {
	p := NewPrometheus()

	r := chi.NewRouter()
	r.Use(p.InstrumentHandler)
	r.Get("/users/{user_id}/pool", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", p.Handler())

	req := httptest.NewRequest(http.MethodGet, "/users/3f0e7c1a-0000-4000-8000-000000000001/pool", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if got := promtestutil.ToFloat64(p.httpRequests.WithLabelValues("GET", "/users/{user_id}/pool", "404")); got != 1 {
		t.Fatalf("expected request counted under route pattern, got %v", got)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "usermatch_http_requests_total") {
		t.Error("exposition is missing usermatch_http_requests_total")
	}
}
