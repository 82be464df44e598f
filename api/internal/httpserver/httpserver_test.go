package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthz(t *testing.T) {
	tests := []struct {
		name   string
		health HealthFunc
		code   int
		body   string
	}{
		{"nil", nil, http.StatusOK, "ok"},
		{"reference degraded is still ok", func(context.Context) map[string]string {
			return map[string]string{"reference": "unavailable", "db": "ok"}
		}, http.StatusOK, "ok"},
		{"redis down", func(context.Context) map[string]string {
			return map[string]string{"redis": "dial tcp: refused"}
		}, http.StatusServiceUnavailable, "redis: dial tcp: refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Healthz(tt.health)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tt.code || !strings.Contains(rec.Body.String(), tt.body) {
				t.Errorf("got %d %q", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestNewTwiceKeepsLatestHealth(t *testing.T) {
	New(":0", func(context.Context) map[string]string { return map[string]string{"db": "ok"} })
	srv := New(":0", func(context.Context) map[string]string { return map[string]string{"db": "connection reset"} })
	if srv.Addr != ":0" {
		t.Errorf("addr %q", srv.Addr)
	}

	rec := httptest.NewRecorder()
	http.DefaultServeMux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "db: connection reset") {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	http.DefaultServeMux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Body.String() != "eye report bot" {
		t.Errorf("root %q", rec.Body.String())
	}
}
