package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandlerHealthy(t *testing.T) {
	handler := NewHandler("v1.2.3")
	handler.Register("storage", func() error { return nil })

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var report Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Status != StatusOK {
		t.Errorf("report status = %s, want ok", report.Status)
	}
	if report.Version != "v1.2.3" {
		t.Errorf("version = %s, want v1.2.3", report.Version)
	}
	if len(report.Checks) != 1 {
		t.Errorf("got %d checks, want 1", len(report.Checks))
	}
	if report.Checks["storage"].Status != StatusOK {
		t.Errorf("storage check = %s, want ok", report.Checks["storage"].Status)
	}
}

func TestHandlerDown(t *testing.T) {
	handler := NewHandler("v1.2.3")
	handler.Register("storage", func() error { return nil })
	handler.Register("broker", func() error { return errors.New("broker unavailable") })

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}

	var report Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Status != StatusDown {
		t.Errorf("report status = %s, want down", report.Status)
	}
	if report.Checks["broker"].Message != "broker unavailable" {
		t.Errorf("broker message = %q", report.Checks["broker"].Message)
	}
}

func TestReadinessHandler(t *testing.T) {
	handler := NewHandler("")
	handler.Register("storage", func() error { return nil })

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ready" {
		t.Fatalf("got %d %q, want 200 ready", w.Code, w.Body.String())
	}

	handler.Register("broker", func() error { return errors.New("down") })
	w = httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable || w.Body.String() != "not ready" {
		t.Fatalf("got %d %q, want 503 not ready", w.Code, w.Body.String())
	}
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("got %d %q, want 200 ok", w.Code, w.Body.String())
	}
}
