package app

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr, payload := doJSON(t, server.Handler(), http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if payload["ok"] != true {
		t.Fatalf("expected ok=true, got %v", payload["ok"])
	}
}

func TestReadyEndpoint(t *testing.T) {
	fs := newFakeStore()
	server := NewHTTPServer(newTestService(fs), "*")

	rr, payload := doJSON(t, server.Handler(), http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusOK || payload["status"] != "ready" {
		t.Fatalf("expected ready, got %d %v", rr.Code, payload)
	}

	fs.pingFn = func(context.Context) error { return errors.New("connection refused") }
	rr, payload = doJSON(t, server.Handler(), http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusServiceUnavailable || payload["status"] != "not_ready" {
		t.Fatalf("expected not_ready, got %d %v", rr.Code, payload)
	}

	checks := payload["checks"].(map[string]any)
	database := checks["database"].(map[string]any)
	if database["status"] != "error" {
		t.Fatalf("expected database error status, got %v", database)
	}
}
