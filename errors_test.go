package intention

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestErrorFormat(t *testing.T) {
	err := &Error{
		Type:       ErrorTypeProviderTransient,
		Message:    "provider call failed",
		Cause:      errors.New("connection refused"),
		Provider:   "perplexity",
		Attempt:    2,
		MaxRetries: 3,
	}

	msg := err.Error()
	for _, want := range []string{"ProviderTransient", "provider call failed", "connection refused", "[perplexity]", "attempt 2/3"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{Type: ErrorTypeValidation, Message: "bad", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach the cause")
	}
}

func TestErrorIsSentinels(t *testing.T) {
	tests := []struct {
		errType  string
		sentinel error
	}{
		{ErrorTypeBudgetExceeded, ErrBudgetExceeded},
		{ErrorTypeRateLimitTimeout, ErrRateLimitTimeout},
		{ErrorTypeCircuitOpen, ErrCircuitOpen},
	}

	for _, tt := range tests {
		t.Run(tt.errType, func(t *testing.T) {
			err := &Error{Type: tt.errType, Message: "x"}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%s error, sentinel) = false", tt.errType)
			}
		})
	}

	err := &Error{Type: ErrorTypeValidation, Message: "x"}
	if errors.Is(err, ErrBudgetExceeded) {
		t.Error("Validation error matched ErrBudgetExceeded")
	}
}

func TestErrorIsByType(t *testing.T) {
	a := &Error{Type: ErrorTypeRepairFailed, Message: "one"}
	b := &Error{Type: ErrorTypeRepairFailed, Message: "two"}
	c := &Error{Type: ErrorTypeTemplate, Message: "three"}

	if !errors.Is(a, b) {
		t.Error("same-type errors did not match")
	}
	if errors.Is(a, c) {
		t.Error("different-type errors matched")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"provider transient", &ProviderError{Kind: KindTransient}, KindTransient},
		{"provider rate limited", &ProviderError{Kind: KindRateLimited}, KindRateLimited},
		{"provider malformed", &ProviderError{Kind: KindMalformed}, KindMalformed},
		{"provider fatal", &ProviderError{Kind: KindFatal}, KindFatal},
		{"wrapped provider error", fmt.Errorf("dispatch: %w", &ProviderError{Kind: KindFatal}), KindFatal},
		{"context canceled", context.Canceled, KindFatal},
		{"deadline exceeded", context.DeadlineExceeded, KindFatal},
		{"plain error", errors.New("?"), KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", &Error{Type: ErrorTypeProviderTransient}, true},
		{"rate limited", &Error{Type: ErrorTypeProviderRateLimited}, true},
		{"rate limit timeout", &Error{Type: ErrorTypeRateLimitTimeout}, true},
		{"circuit open", &Error{Type: ErrorTypeCircuitOpen}, true},
		{"fatal", &Error{Type: ErrorTypeProviderFatal}, false},
		{"budget", &Error{Type: ErrorTypeBudgetExceeded}, false},
		{"repair failed", &Error{Type: ErrorTypeRepairFailed}, false},
		{"template", &Error{Type: ErrorTypeTemplate}, false},
		{"provider transient raw", &ProviderError{Kind: KindTransient}, true},
		{"provider fatal raw", &ProviderError{Kind: KindFatal}, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProviderErrorFormat(t *testing.T) {
	err := &ProviderError{
		Provider:   "perplexity",
		Kind:       KindRateLimited,
		StatusCode: 429,
		Message:    "rate limit exceeded",
		Cause:      errors.New("upstream"),
	}

	msg := err.Error()
	for _, want := range []string{"perplexity", "rate limit exceeded", "rate_limited", "429", "upstream"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestErrorDebugInfo(t *testing.T) {
	err := &Error{
		Type:        ErrorTypeRepairFailed,
		Message:     "unrepairable",
		Fingerprint: Fingerprint("p:t@1:abc"),
		Provider:    "perplexity",
		Scope:       "team-a",
		Attempt:     1,
		MaxRetries:  3,
		Timestamp:   time.Now(),
		RawResponse: []byte("not json at all"),
		Cause:       errors.New("schema"),
	}

	info := err.DebugInfo()
	for _, want := range []string{"RepairFailed", "p:t@1:abc", "perplexity", "team-a", "1/3", "not json at all", "schema"} {
		if !strings.Contains(info, want) {
			t.Errorf("DebugInfo() missing %q:\n%s", want, info)
		}
	}
}
