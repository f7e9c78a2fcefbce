package api

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/ollama-manager/internal/domain"
	"github.com/ashureev/ollama-manager/internal/middleware"
)

func TestCompletionSuccess(t *testing.T) {
	chat := &fakeChat{result: domain.Success("我很好")}
	rec := do(t, newTestRouter(testDeps{chat: chat}), http.MethodPost, "/api/chat/completion",
		`{"model":"llama3:8b","messages":[{"role":"user","content":"你好"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	got := decode(t, rec)
	if got["response"] != "我很好" {
		t.Errorf("unexpected response %v", got)
	}
	if _, ok := got["error"]; ok {
		t.Errorf("success must not carry an error, got %v", got["error"])
	}
	if chat.gotModel != "llama3:8b" || len(chat.gotMessages) != 1 || chat.gotMessages[0].Role != domain.RoleUser {
		t.Errorf("request not forwarded: model=%q messages=%+v", chat.gotModel, chat.gotMessages)
	}
}

func TestCompletionFailureIsStill200(t *testing.T) {
	chat := &fakeChat{result: domain.Failure(domain.CategoryServiceNotRunning, "错误：Ollama服务未运行，请先启动Ollama服务", "connection refused")}
	rec := do(t, newTestRouter(testDeps{chat: chat}), http.MethodPost, "/api/chat/completion",
		`{"model":"llama3:8b","messages":[{"role":"user","content":"hi"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	got := decode(t, rec)
	if !strings.HasPrefix(got["response"].(string), "错误：") {
		t.Errorf("expected error text as response, got %v", got["response"])
	}
	e := got["error"].(map[string]interface{})
	if e["category"] != string(domain.CategoryServiceNotRunning) || e["detail"] != "connection refused" {
		t.Errorf("unexpected error object %v", e)
	}
}

func TestCompletionMalformedBody(t *testing.T) {
	chat := &fakeChat{}
	rec := do(t, newTestRouter(testDeps{chat: chat}), http.MethodPost, "/api/chat/completion", `{"model":`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	got := decode(t, rec)
	if got["error"].(map[string]interface{})["category"] != string(domain.CategoryInvalidRequest) {
		t.Errorf("expected invalid_request, got %v", got)
	}
}

func TestCompletionRateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(1, time.Minute)
	defer limiter.Stop()
	router := newTestRouter(testDeps{chat: &fakeChat{result: domain.Success("ok")}, limiter: limiter})

	body := `{"model":"m","messages":[{"role":"user","content":"hi"}]}`
	if rec := do(t, router, http.MethodPost, "/api/chat/completion", body); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodPost, "/api/chat/completion", body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodGet, "/api/chat/history", ""); rec.Code != http.StatusOK {
		t.Fatalf("history must not be rate limited, got %d", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	chat := &fakeChat{history: []domain.Message{
		{Role: domain.RoleUser, Content: "q"},
		{Role: domain.RoleAssistant, Content: "a"},
	}}
	got := decode(t, do(t, newTestRouter(testDeps{chat: chat}), http.MethodGet, "/api/chat/history", ""))
	history := got["history"].([]interface{})
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %v", history)
	}
}

func TestHistoryEmptyAndFailing(t *testing.T) {
	for _, chat := range []*fakeChat{{}, {historyErr: errors.New("disk gone")}} {
		rec := do(t, newTestRouter(testDeps{chat: chat}), http.MethodGet, "/api/chat/history", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if body := strings.TrimSpace(rec.Body.String()); body != `{"history":[]}` {
			t.Fatalf("expected empty history array, got %s", body)
		}
	}
}

func TestExport(t *testing.T) {
	router := newTestRouter(testDeps{})
	msgs := `[{"role":"user","content":"你好"},{"role":"assistant","content":"嗨"}]`

	got := decode(t, do(t, router, http.MethodPost, "/api/chat/export", `{"format":"md","messages":`+msgs+`}`))
	if got["content"] != "# 对话导出\n\n## 用户\n你好\n\n## 助手\n嗨\n\n" {
		t.Errorf("unexpected markdown %q", got["content"])
	}

	got = decode(t, do(t, router, http.MethodPost, "/api/chat/export", `{"format":"json","messages":`+msgs+`}`))
	if !strings.Contains(got["content"].(string), "\"content\": \"你好\"") {
		t.Errorf("unexpected json export %q", got["content"])
	}

	rec := do(t, router, http.MethodPost, "/api/chat/export", `{"format":"pdf","messages":`+msgs+`}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for unknown format, got %d", rec.Code)
	}
	if decode(t, rec)["error"] != "Invalid format" {
		t.Errorf("unexpected error body %s", rec.Body.String())
	}
}

func TestExportWithoutFormatIsMarkdown(t *testing.T) {
	rec := do(t, newTestRouter(testDeps{}), http.MethodPost, "/api/chat/export",
		`{"messages":[{"role":"user","content":"你好"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["content"]; got != "# 对话导出\n\n## 用户\n你好\n\n" {
		t.Errorf("unexpected export %q", got)
	}
}
