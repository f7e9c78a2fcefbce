package domain

// ErrorCategory classifies a failed completion.
type ErrorCategory string

const (
	// CategoryInvalidRequest indicates a missing model or empty history.
	CategoryInvalidRequest ErrorCategory = "invalid_request"
	// CategoryRunnerUnavailable indicates the runner could not be started.
	CategoryRunnerUnavailable ErrorCategory = "runner_unavailable"
	// CategoryPortInUse indicates the runner could not bind its listening port.
	CategoryPortInUse ErrorCategory = "port_in_use"
	// CategoryServiceNotRunning indicates the runner's background service is down.
	CategoryServiceNotRunning ErrorCategory = "service_not_running"
	// CategoryUnknown covers any other non-zero runner exit.
	CategoryUnknown ErrorCategory = "unknown"
	// CategoryTimeout indicates the runner did not finish in time.
	CategoryTimeout ErrorCategory = "timeout"
)

// CompletionResult is the outcome of one chat completion. A result is either a
// success (Category empty) or a failure (Category set); Response always holds
// text that can be shown to the user.
type CompletionResult struct {
	Response string
	Category ErrorCategory
	Detail   string
}

// OK reports whether the completion succeeded.
func (r CompletionResult) OK() bool {
	return r.Category == ""
}

// Success builds a successful result.
func Success(response string) CompletionResult {
	return CompletionResult{Response: response}
}

// Failure builds a failed result with a user-facing message and a raw detail.
func Failure(category ErrorCategory, message, detail string) CompletionResult {
	return CompletionResult{Response: message, Category: category, Detail: detail}
}
