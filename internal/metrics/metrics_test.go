package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New returned nil")
	}
	if m.registry == nil {
		t.Fatal("registry not initialized")
	}
	if m.RequestsTotal == nil || m.CacheHits == nil || m.AwardGrants == nil {
		t.Error("collectors not initialized")
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()

	// Record some metrics so the output is non-trivial
	m.RecordCacheAccess(true)
	m.RecordDiscovery()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "chemezy_reaction_cache_hits_total") {
		t.Error("expected metrics output to contain chemezy_reaction_cache_hits_total")
	}
	if !strings.Contains(string(body), "chemezy_discoveries_total") {
		t.Error("expected metrics output to contain chemezy_discoveries_total")
	}
}

func TestMetrics_Middleware(t *testing.T) {
	m := New()

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest("POST", "/reactions", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", w.Code)
	}

	// The metrics endpoint itself is not counted
	req = httptest.NewRequest("GET", "/metrics", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("expected pass-through for /metrics, got %d", w.Code)
	}
}

func TestMetrics_RecordCacheAccess(t *testing.T) {
	m := New()

	m.RecordCacheAccess(true)
	m.RecordCacheAccess(false)
	m.RecordCacheAccess(false)
	// No panic means the counters are wired; values are scraped, not read back.
}

func TestMetrics_RecordSynthesis(t *testing.T) {
	m := New()

	m.RecordSynthesis(2*time.Second, nil)
	m.RecordSynthesis(time.Second, errors.New("upstream timeout"))
}

func TestMetrics_RecordEvaluation(t *testing.T) {
	m := New()

	m.RecordEvaluation(false)
	m.RecordEvaluation(true)
}

func TestMetrics_RecordAwardChange(t *testing.T) {
	m := New()

	m.RecordAwardChange("granted")
	m.RecordAwardChange("upgraded")
}

func TestMetrics_QueueMetrics(t *testing.T) {
	m := New()

	m.EventQueueDepth.Set(12)
	m.RecordQueueDrop()
}

func TestMetrics_LeaderboardMetrics(t *testing.T) {
	m := New()

	m.RecordLeaderboardRebuild("discovery")
	m.RecordLeaderboardInvalidation("overall")
}

func TestMetrics_RecordStorageOperation(t *testing.T) {
	m := New()

	m.RecordStorageOperation("postgres", "put_outcome", 5*time.Millisecond, nil)
	m.RecordStorageOperation("postgres", "put_outcome", 5*time.Millisecond, errors.New("connection reset"))
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/reactions", "/reactions"},
		{"/discoveries", "/discoveries"},
		{"/awards", "/awards"},
		{"/leaderboard/discovery", "/leaderboard/{category}"},
		{"/leaderboard/overall", "/leaderboard/{category}"},
		{"/leaderboard/discovery/rank/42", "/leaderboard/{category}/rank/{user_id}"},
		{"/users/42/awards", "/users/{user_id}/awards"},
		{"/admin/templates", "/admin/templates"},
		{"/admin/templates/7", "/admin/templates/{id}"},
		{"/health/live", "/health/live"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.expected)
		}
	}
}

func TestStartsWith(t *testing.T) {
	if !startsWith("/leaderboard/overall", "/leaderboard/") {
		t.Error("expected prefix match")
	}
	if startsWith("/x", "/leaderboard/") {
		t.Error("expected no match for short string")
	}
}

func TestEndsWith(t *testing.T) {
	if !endsWith("/users/42/awards", "/awards") {
		t.Error("expected suffix match")
	}
	if endsWith("/a", "/awards") {
		t.Error("expected no match for short string")
	}
}

func TestContains(t *testing.T) {
	if !contains("/leaderboard/discovery/rank/42", "/rank/") {
		t.Error("expected substring match")
	}
	if contains("/leaderboard/discovery", "/rank/") {
		t.Error("expected no match")
	}
}
