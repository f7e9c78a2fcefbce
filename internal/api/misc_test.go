package api

import (
	"net/http"
	"testing"

	"github.com/ashureev/ollama-manager/internal/domain"
)

func TestResources(t *testing.T) {
	res := fakeResources{usage: domain.ResourceUsage{CPU: 12.5, Memory: 48, GPU: 0}}
	got := decode(t, do(t, newTestRouter(testDeps{resources: res}), http.MethodGet, "/api/resources", ""))
	if got["cpu"] != 12.5 || got["memory"] != 48.0 || got["gpu"] != 0.0 {
		t.Fatalf("unexpected resources %v", got)
	}
}

func TestDebugEcho(t *testing.T) {
	router := newTestRouter(testDeps{})

	got := decode(t, do(t, router, http.MethodPost, "/api/debug/chat/completion", `{"model":"m"}`))
	if got["status"] != "success" || got["endpoint"] != "/chat/completion" {
		t.Fatalf("unexpected echo %v", got)
	}
	if got["response"] != simulatedResponse {
		t.Errorf("unexpected response %v", got["response"])
	}
	if got["data"].(map[string]interface{})["model"] != "m" {
		t.Errorf("expected posted body echoed, got %v", got["data"])
	}

	got = decode(t, do(t, router, http.MethodPost, "/api/debug/ping", ""))
	if got["data"] != nil {
		t.Errorf("empty body should echo null, got %v", got["data"])
	}

	if rec := do(t, router, http.MethodPost, "/api/debug/x", "{oops"); rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for invalid JSON, got %d", rec.Code)
	}
}
