package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAuthAttemptCountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthAttempt("accepted")
	c.RecordAuthAttempt("accepted")
	c.RecordAuthAttempt("expired")

	if got := testutil.ToFloat64(c.authAttempts.WithLabelValues("accepted")); got != 2 {
		t.Fatalf("accepted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.authAttempts.WithLabelValues("expired")); got != 1 {
		t.Fatalf("expired = %v, want 1", got)
	}
}

func TestRecordTouchFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTouchFailure()

	if got := testutil.ToFloat64(c.touchFailures); got != 1 {
		t.Fatalf("touch failures = %v, want 1", got)
	}
}

func TestRecordHTTPStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(http.StatusOK)
	c.RecordHTTPStatus(http.StatusServiceUnavailable)
	c.RecordHTTPStatus(http.StatusServiceUnavailable)

	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("503")); got != 2 {
		t.Fatalf("503 responses = %v, want 2", got)
	}
}

func TestRecordWhitelistLookup(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWhitelistLookup(20 * time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != "aitrade_whitelist_lookup_seconds" {
			continue
		}
		if count := mf.GetMetric()[0].GetHistogram().GetSampleCount(); count != 1 {
			t.Fatalf("sample count = %d, want 1", count)
		}
		return
	}
	t.Fatalf("aitrade_whitelist_lookup_seconds metric not found")
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordAuthAttempt("accepted")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if !strings.Contains(string(body), `aitrade_auth_attempts_total{outcome="accepted"} 1`) {
		t.Fatalf("expected auth counter in exposition, got:\n%s", body)
	}
}

func TestNopSatisfiesRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordAuthAttempt("accepted")
	r.RecordTouchFailure()
	r.RecordHTTPStatus(200)
	r.RecordWhitelistLookup(time.Second)
}
