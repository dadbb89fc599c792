package intention

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error type tags surfaced to callers. Every classified failure carries
// exactly one of these.
const (
	ErrorTypeTemplate            = "Template"
	ErrorTypeProviderTransient   = "ProviderTransient"
	ErrorTypeProviderRateLimited = "ProviderRateLimited"
	ErrorTypeProviderFatal       = "ProviderFatal"
	ErrorTypeBudgetExceeded      = "BudgetExceeded"
	ErrorTypeRateLimitTimeout    = "RateLimitTimeout"
	ErrorTypeRepairFailed        = "RepairFailed"
	ErrorTypeCircuitOpen         = "CircuitOpen"
	ErrorTypeValidation          = "Validation"
)

// Sentinel errors for common failure scenarios
var (
	// ErrBudgetExceeded is returned when a budget pre-check refuses dispatch.
	ErrBudgetExceeded = errors.New("intention: budget exceeded")

	// ErrRateLimitTimeout is returned when rate-limit admission wait exceeds the deadline.
	ErrRateLimitTimeout = errors.New("intention: rate limit admission timed out")

	// ErrCircuitOpen is returned when the provider's circuit breaker is open.
	ErrCircuitOpen = errors.New("intention: circuit open")

	// ErrTemplateNotFound is returned when an action names an unregistered template.
	ErrTemplateNotFound = errors.New("intention: template not found")

	// ErrProviderNotFound is returned when an action names an unregistered provider.
	ErrProviderNotFound = errors.New("intention: provider not found")
)

// ErrorKind classifies a provider failure for the retry orchestrator.
type ErrorKind int

const (
	// KindTransient covers network failures, timeouts and 5xx-equivalent errors.
	KindTransient ErrorKind = iota
	// KindRateLimited is a provider-signaled throttle, distinct from the local limiter.
	KindRateLimited
	// KindMalformed marks a response that failed schema validation.
	KindMalformed
	// KindFatal covers auth failures and invalid requests; never retried.
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindMalformed:
		return "malformed"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ProviderError is the failure shape adapters return from Send. RetryAfter,
// when positive, is the provider-supplied backoff hint.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("provider %s: %s (%s)", e.Provider, e.Message, e.Kind)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [status %d]", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Classify maps an arbitrary dispatch error onto an ErrorKind. Unknown errors
// are treated as transient, matching the conservative default of retrying on
// any non-nil error unless the adapter says otherwise.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindTransient
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindFatal
	}
	return KindTransient
}

// Error represents a classified failure from the coordinator.
type Error struct {
	Type        string
	Message     string
	Cause       error
	Fingerprint Fingerprint
	Provider    string
	Scope       string
	Attempt     int
	MaxRetries  int
	Timestamp   time.Time
	Duration    time.Duration
	RawResponse []byte
}

// Error implements error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.Provider != "" {
		msg = fmt.Sprintf("[%s] %s", e.Provider, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*Error); ok {
		return e.Type == targetErr.Type
	}
	switch target {
	case ErrBudgetExceeded:
		return e.Type == ErrorTypeBudgetExceeded
	case ErrRateLimitTimeout:
		return e.Type == ErrorTypeRateLimitTimeout
	case ErrCircuitOpen:
		return e.Type == ErrorTypeCircuitOpen
	}
	return false
}

// IsRetryable reports whether the error type may succeed on a later attempt.
// Local admission failures (rate-limit timeout, open circuit) count: the caller
// may retry later even though the coordinator will not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimitTimeout) || errors.Is(err, ErrCircuitOpen) {
		return true
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Type {
		case ErrorTypeProviderTransient, ErrorTypeProviderRateLimited,
			ErrorTypeRateLimitTimeout, ErrorTypeCircuitOpen:
			return true
		default:
			return false
		}
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == KindTransient || pe.Kind == KindRateLimited
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *Error) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.Fingerprint != "" {
		info += fmt.Sprintf("Fingerprint: %s\n", e.Fingerprint)
	}
	if e.Provider != "" {
		info += fmt.Sprintf("Provider: %s\n", e.Provider)
	}
	if e.Scope != "" {
		info += fmt.Sprintf("Scope: %s\n", e.Scope)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if len(e.RawResponse) > 0 {
		info += fmt.Sprintf("Raw Response: %s\n", string(e.RawResponse))
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}
