package app

import (
	"errors"
	"net/http"
	"testing"

	"folio/api/internal/refstore"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/health", nil)
	expectStatus(t, rr, http.StatusOK)

	response := decodeJSON[map[string]any](t, rr)
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID header")
	}
}

func TestPreflightRequest(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodOptions, "/api/drafts", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected CORS origin *, got %q", got)
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantCheck  string
	}{
		{name: "healthy", wantStatus: http.StatusOK, wantCheck: "ok"},
		{name: "database down", pingErr: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable, wantCheck: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := refstore.NewMemoryStore()
			env := newTestEnvWithStore(t, &pingStore{MemoryStore: mem, err: tt.pingErr}, mem)

			rr := env.do(t, http.MethodGet, "/api/ready", nil)
			expectStatus(t, rr, tt.wantStatus)

			response := decodeJSON[map[string]any](t, rr)
			checks, ok := response["checks"].(map[string]any)
			if !ok {
				t.Fatalf("expected checks object, got %v", response["checks"])
			}
			if checks["database"] != tt.wantCheck {
				t.Errorf("expected database check %q, got %v", tt.wantCheck, checks["database"])
			}
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	expectErrorCode(t, env.do(t, http.MethodGet, "/api/nothing", nil), http.StatusNotFound, "NOT_FOUND")
	expectErrorCode(t, env.do(t, http.MethodGet, "/elsewhere", nil), http.StatusNotFound, "NOT_FOUND")
}

func TestStylesEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/styles", nil)
	expectStatus(t, rr, http.StatusOK)
	response := decodeJSON[map[string]any](t, rr)
	if response["default"] != "vancouver" {
		t.Errorf("expected default vancouver, got %v", response["default"])
	}
	styles, _ := response["styles"].([]any)
	if len(styles) != 7 {
		t.Errorf("expected 7 styles, got %v", styles)
	}
}
