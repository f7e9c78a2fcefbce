// Package chat implements the chat completion flow: prompt construction, a
// single runner invocation, failure classification and history persistence.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/ollama-manager/internal/domain"
	"github.com/ashureev/ollama-manager/internal/metrics"
	"github.com/ashureev/ollama-manager/internal/output"
	"github.com/ashureev/ollama-manager/internal/prompt"
	"github.com/ashureev/ollama-manager/internal/runner"
	"github.com/ashureev/ollama-manager/internal/store"
	"golang.org/x/sync/semaphore"
)

// Options tunes a Service. Zero values select defaults.
type Options struct {
	// Prompt renders histories; defaults to the Chinese-answer directive.
	Prompt *prompt.Builder
	// MaxConcurrent bounds simultaneous runner calls (default 1).
	MaxConcurrent int64
	// Timeout bounds a single runner call; zero disables it.
	Timeout time.Duration
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Service runs chat completions against the runner.
type Service struct {
	invoker runner.Invoker
	history store.HistoryStore
	prompts *prompt.Builder
	gate    *semaphore.Weighted
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewService wires a completion service.
func NewService(invoker runner.Invoker, history store.HistoryStore, opts Options) *Service {
	if opts.Prompt == nil {
		opts.Prompt = prompt.NewBuilder(prompt.DefaultLanguage)
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	return &Service{
		invoker: invoker,
		history: history,
		prompts: opts.Prompt,
		gate:    semaphore.NewWeighted(opts.MaxConcurrent),
		timeout: opts.Timeout,
		metrics: opts.Metrics,
	}
}

// Complete produces one assistant reply for the conversation and records the
// extended conversation on success. It never returns an error: every failure
// is encoded in the result and nothing is persisted for failed calls.
func (s *Service) Complete(ctx context.Context, model string, messages []domain.Message) domain.CompletionResult {
	start := time.Now()
	result := s.complete(ctx, model, messages)

	if s.metrics != nil {
		s.metrics.RecordCompletion(string(result.Category), time.Since(start))
	}
	if result.OK() {
		slog.Info("Chat completion finished",
			"model", model,
			"messages", len(messages),
			"response_length", len(result.Response),
			"duration", time.Since(start))
	} else {
		slog.Warn("Chat completion failed",
			"model", model,
			"category", result.Category,
			"detail", result.Detail,
			"duration", time.Since(start))
	}
	return result
}

func (s *Service) complete(ctx context.Context, model string, messages []domain.Message) domain.CompletionResult {
	model = strings.TrimSpace(model)
	if model == "" || len(messages) == 0 {
		return failure(domain.CategoryInvalidRequest, "model and messages are required")
	}

	text := s.prompts.Build(messages)

	if err := s.acquire(ctx); err != nil {
		return failure(domain.CategoryTimeout, "waiting for runner: "+err.Error())
	}
	defer s.gate.Release(1)

	res, err := s.invoke(ctx, model, text)
	if err != nil {
		if errors.Is(err, runner.ErrTimeout) {
			return failure(domain.CategoryTimeout, err.Error())
		}
		return failure(domain.CategoryRunnerUnavailable, err.Error())
	}

	if res.ExitCode != 0 {
		return output.Classify(res.ExitCode, output.Decode(res.Stderr))
	}

	response := strings.TrimSpace(output.Decode(res.Stdout))
	if response == "" {
		response = output.FallbackResponse
	}

	// The reply exists once the runner has answered; keep it even if the
	// caller has gone away.
	id, err := s.history.Append(context.WithoutCancel(ctx), model, domain.WithReply(messages, response))
	if s.metrics != nil {
		s.metrics.RecordHistoryWrite(err)
	}
	if err != nil {
		slog.Error("Failed to persist conversation", "model", model, "error", err)
	} else {
		slog.Debug("Conversation persisted", "model", model, "record_id", id)
	}

	return domain.Success(response)
}

func (s *Service) acquire(ctx context.Context) error {
	if s.metrics != nil {
		s.metrics.CompletionQueueWaiting.Inc()
		defer s.metrics.CompletionQueueWaiting.Dec()
	}
	return s.gate.Acquire(ctx, 1)
}

func (s *Service) invoke(ctx context.Context, model, text string) (*runner.Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if s.metrics != nil {
		s.metrics.CompletionsInFlight.Inc()
		defer s.metrics.CompletionsInFlight.Dec()
	}

	res, err := s.invoker.Invoke(ctx, []string{"run", model}, []byte(text))
	if s.metrics != nil {
		s.metrics.RecordRunner("run", runner.Status(res, err))
	}
	return res, err
}

// MostRecentHistory returns the newest stored conversation, or an empty slice.
func (s *Service) MostRecentHistory(ctx context.Context) ([]domain.Message, error) {
	messages, err := s.history.MostRecent(ctx)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		return []domain.Message{}, nil
	}
	return messages, nil
}

func failure(category domain.ErrorCategory, detail string) domain.CompletionResult {
	return domain.Failure(category, output.Message(category, detail), detail)
}
