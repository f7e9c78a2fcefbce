package chat

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/ollama-manager/internal/domain"
	"github.com/ashureev/ollama-manager/internal/metrics"
	"github.com/ashureev/ollama-manager/internal/output"
	"github.com/ashureev/ollama-manager/internal/prompt"
	"github.com/ashureev/ollama-manager/internal/runner"
	"github.com/ashureev/ollama-manager/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeInvoker struct {
	mu     sync.Mutex
	calls  int
	args   [][]string
	inputs [][]byte
	result *runner.Result
	err    error
	block  chan struct{}
}

func (f *fakeInvoker) Invoke(ctx context.Context, args []string, input []byte) (*runner.Result, error) {
	f.mu.Lock()
	f.calls++
	f.args = append(f.args, args)
	f.inputs = append(f.inputs, input)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, runner.ErrTimeout
		}
	}
	return f.result, f.err
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type failingStore struct {
	store.HistoryStore
	appends int
}

func (f *failingStore) Append(context.Context, string, []domain.Message) (int64, error) {
	f.appends++
	return 0, errors.New("disk full")
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "chat-history.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func countRecords(t *testing.T, s store.HistoryStore) int64 {
	t.Helper()
	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	return n
}

var history = []domain.Message{{Role: domain.RoleUser, Content: "Hello, how are you?"}}

func TestCompleteSuccessPersistsConversation(t *testing.T) {
	inv := &fakeInvoker{result: &runner.Result{Stdout: []byte("  我很好，谢谢！\n")}}
	hs := newTestStore(t)
	svc := NewService(inv, hs, Options{})

	result := svc.Complete(context.Background(), "llama3:8b", history)
	if !result.OK() {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Response != "我很好，谢谢！" {
		t.Errorf("expected trimmed response, got %q", result.Response)
	}

	if !reflect.DeepEqual(inv.args, [][]string{{"run", "llama3:8b"}}) {
		t.Errorf("unexpected runner args %v", inv.args)
	}
	if string(inv.inputs[0]) != prompt.Build(history) {
		t.Errorf("unexpected prompt %q", inv.inputs[0])
	}

	got, err := svc.MostRecentHistory(context.Background())
	if err != nil {
		t.Fatalf("MostRecentHistory failed: %v", err)
	}
	want := append(append([]domain.Message{}, history...), domain.Message{Role: domain.RoleAssistant, Content: "我很好，谢谢！"})
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("stored history mismatch:\nwant %+v\ngot  %+v", want, got)
	}
}

func TestCompleteEmptyOutputUsesFallback(t *testing.T) {
	inv := &fakeInvoker{result: &runner.Result{Stdout: nil}}
	hs := newTestStore(t)
	svc := NewService(inv, hs, Options{})

	result := svc.Complete(context.Background(), "llama3:8b", history)
	if result.Response != output.FallbackResponse {
		t.Fatalf("expected fallback response, got %q", result.Response)
	}

	stored, err := hs.MostRecent(context.Background())
	if err != nil {
		t.Fatalf("MostRecent failed: %v", err)
	}
	last := stored[len(stored)-1]
	if last.Role != domain.RoleAssistant || last.Content != output.FallbackResponse {
		t.Fatalf("expected fallback assistant message last, got %+v", last)
	}
}

func TestCompletePortInUseIsNotPersisted(t *testing.T) {
	inv := &fakeInvoker{result: &runner.Result{
		ExitCode: 1,
		Stderr:   []byte("Error: listen tcp 127.0.0.1:11434: bind: Only one usage of each socket address (protocol/network address/port) is normally permitted."),
	}}
	hs := newTestStore(t)
	svc := NewService(inv, hs, Options{})

	before := countRecords(t, hs)
	result := svc.Complete(context.Background(), "llama3:8b", history)
	if result.Category != domain.CategoryPortInUse {
		t.Fatalf("expected port_in_use, got %+v", result)
	}
	if after := countRecords(t, hs); after != before {
		t.Fatalf("expected no new records, had %d now %d", before, after)
	}
}

func TestCompleteInvalidRequestSkipsRunner(t *testing.T) {
	tests := []struct {
		name     string
		model    string
		messages []domain.Message
	}{
		{"empty model", "", history},
		{"blank model", "   ", history},
		{"nil messages", "llama3:8b", nil},
		{"empty messages", "llama3:8b", []domain.Message{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &fakeInvoker{result: &runner.Result{Stdout: []byte("unused")}}
			hs := newTestStore(t)
			svc := NewService(inv, hs, Options{})

			result := svc.Complete(context.Background(), tt.model, tt.messages)
			if result.Category != domain.CategoryInvalidRequest {
				t.Fatalf("expected invalid_request, got %+v", result)
			}
			if inv.callCount() != 0 {
				t.Fatalf("runner must not be invoked, got %d calls", inv.callCount())
			}
			if n := countRecords(t, hs); n != 0 {
				t.Fatalf("expected empty store, got %d records", n)
			}
		})
	}
}

func TestCompleteRunnerUnavailable(t *testing.T) {
	inv := &fakeInvoker{err: errors.Join(runner.ErrUnavailable, errors.New("exec: \"ollama\": executable file not found in $PATH"))}
	hs := newTestStore(t)
	svc := NewService(inv, hs, Options{})

	result := svc.Complete(context.Background(), "llama3:8b", history)
	if result.Category != domain.CategoryRunnerUnavailable {
		t.Fatalf("expected runner_unavailable, got %+v", result)
	}
	if !strings.Contains(result.Detail, "executable file not found") {
		t.Errorf("expected spawn error in detail, got %q", result.Detail)
	}
	if n := countRecords(t, hs); n != 0 {
		t.Fatalf("expected empty store, got %d records", n)
	}
}

func TestCompleteClassifiesServiceNotRunning(t *testing.T) {
	inv := &fakeInvoker{result: &runner.Result{ExitCode: 1, Stderr: []byte("dial tcp 127.0.0.1:11434: connect: connection refused")}}
	svc := NewService(inv, newTestStore(t), Options{})

	result := svc.Complete(context.Background(), "llama3:8b", history)
	if result.Category != domain.CategoryServiceNotRunning {
		t.Fatalf("expected service_not_running, got %+v", result)
	}
}

func TestCompleteTimeout(t *testing.T) {
	inv := &fakeInvoker{block: make(chan struct{})}
	hs := newTestStore(t)
	svc := NewService(inv, hs, Options{Timeout: 20 * time.Millisecond})

	result := svc.Complete(context.Background(), "llama3:8b", history)
	if result.Category != domain.CategoryTimeout {
		t.Fatalf("expected timeout, got %+v", result)
	}
	if n := countRecords(t, hs); n != 0 {
		t.Fatalf("expected empty store, got %d records", n)
	}
}

func TestCompleteSerializesRunnerCalls(t *testing.T) {
	release := make(chan struct{})
	inv := &fakeInvoker{block: release, result: &runner.Result{Stdout: []byte("ok")}}
	svc := NewService(inv, newTestStore(t), Options{MaxConcurrent: 1})

	var finished atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r := svc.Complete(context.Background(), "llama3:8b", history); r.OK() {
				finished.Add(1)
			}
		}()
	}

	// Only one call may reach the runner while the first is blocked.
	deadline := time.Now().Add(time.Second)
	for inv.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := inv.callCount(); got != 1 {
		t.Fatalf("expected 1 concurrent runner call, got %d", got)
	}

	close(release)
	wg.Wait()
	if finished.Load() != 2 {
		t.Fatalf("expected both completions to succeed, got %d", finished.Load())
	}
}

func TestCompleteQueueWaitHonoursContext(t *testing.T) {
	inv := &fakeInvoker{block: make(chan struct{})}
	svc := NewService(inv, newTestStore(t), Options{MaxConcurrent: 1})

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()
	go svc.Complete(bgCtx, "llama3:8b", history)

	deadline := time.Now().Add(time.Second)
	for inv.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	result := svc.Complete(ctx, "llama3:8b", history)
	if result.Category != domain.CategoryTimeout {
		t.Fatalf("expected timeout while queued, got %+v", result)
	}
	if inv.callCount() != 1 {
		t.Fatalf("queued call must not reach the runner, got %d calls", inv.callCount())
	}
}

func TestCompleteStoreFailureStillReturnsResponse(t *testing.T) {
	inv := &fakeInvoker{result: &runner.Result{Stdout: []byte("answer")}}
	fs := &failingStore{}
	m := metrics.New()
	svc := NewService(inv, fs, Options{Metrics: m})

	result := svc.Complete(context.Background(), "llama3:8b", history)
	if !result.OK() || result.Response != "answer" {
		t.Fatalf("expected success despite store failure, got %+v", result)
	}
	if fs.appends != 1 {
		t.Fatalf("expected one append attempt, got %d", fs.appends)
	}
	if got := testutil.ToFloat64(m.HistoryWritesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("expected failed write to be counted, got %v", got)
	}
	if got := testutil.ToFloat64(m.CompletionsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("expected ok completion to be counted, got %v", got)
	}
}

func TestMostRecentHistoryEmpty(t *testing.T) {
	svc := NewService(&fakeInvoker{}, newTestStore(t), Options{})
	got, err := svc.MostRecentHistory(context.Background())
	if err != nil {
		t.Fatalf("MostRecentHistory failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}
