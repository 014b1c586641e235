package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthLive(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	resp, body := serve(t, HealthLive(cfg), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK || !body.Success {
		t.Fatalf("expected 200 success, got %d", resp.Code)
	}
	if resp.Header().Get("X-Bazaar-Env") != "test" {
		t.Fatalf("missing env header")
	}
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}

	resp, _ := serve(t, HealthReady(cfg, nil, stubPinger{}, stubPinger{}), httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	resp, body := serve(t, HealthReady(cfg, nil, stubPinger{}, stubPinger{err: errors.New("connection refused")}), httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if body.Error.Code != "DEPENDENCY_ERROR" {
		t.Fatalf("unexpected code %q", body.Error.Code)
	}
}
