package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type stubMongoChecker struct {
	err         error
	hasDeadline bool
}

func (s *stubMongoChecker) Ping(ctx context.Context) error {
	_, s.hasDeadline = ctx.Deadline()
	return s.err
}

func serve(t *testing.T, handler http.Handler) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}

	return rr
}

func TestHealthHandlerOK(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	checker := &stubMongoChecker{}

	rr := serve(t, NewHandler(checker, logrus.NewEntry(logger)))

	body := strings.TrimSpace(rr.Body.String())
	if body != `{"status":"ok"}` {
		t.Fatalf("unexpected body: %s", body)
	}
	if !checker.hasDeadline {
		t.Fatalf("expected ping to be bounded by a deadline")
	}
}

func TestHealthHandlerMongoError(t *testing.T) {
	logger, hook := logtest.NewNullLogger()

	rr := serve(t, NewHandler(&stubMongoChecker{err: errors.New("mongo down")}, logrus.NewEntry(logger)))

	body := strings.TrimSpace(rr.Body.String())
	if body != `{"status":"degraded","mongo":"error"}` {
		t.Fatalf("unexpected body: %s", body)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "health_mongo_error" {
		t.Fatalf("expected health_mongo_error log entry, got %v", entry)
	}
}

func TestHealthHandlerMissingMongoChecker(t *testing.T) {
	logger, _ := logtest.NewNullLogger()

	rr := serve(t, NewHandler(nil, logrus.NewEntry(logger)))

	body := strings.TrimSpace(rr.Body.String())
	if body != `{"status":"degraded","mongo":"error"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestHealthHandlerUsesPingTimeout(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	handler := NewHandler(&stubMongoChecker{}, logrus.NewEntry(logger))

	if handler.pingTimeout != 2*time.Second {
		t.Fatalf("expected default ping timeout 2s, got %s", handler.pingTimeout)
	}
}
