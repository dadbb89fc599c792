package intention

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyByKind(t *testing.T) {
	policy := NewRetryPolicy(10*time.Millisecond, time.Second, 2.0, 0)

	tests := []struct {
		name      string
		err       error
		wantRetry bool
	}{
		{"transient", &ProviderError{Kind: KindTransient, Message: "server error"}, true},
		{"rate limited", &ProviderError{Kind: KindRateLimited, Message: "throttled"}, true},
		{"malformed", &ProviderError{Kind: KindMalformed, Message: "bad json"}, false},
		{"fatal", &ProviderError{Kind: KindFatal, Message: "bad key"}, false},
		{"unclassified", errors.New("connection reset"), true},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RetryState{}
			_, retry := policy.Next(state, tt.err, 3)
			if retry != tt.wantRetry {
				t.Errorf("Next() retry = %v, want %v", retry, tt.wantRetry)
			}
		})
	}
}

func TestRetryPolicyAttemptBound(t *testing.T) {
	policy := NewRetryPolicy(time.Millisecond, time.Second, 2.0, 0)
	err := &ProviderError{Kind: KindTransient}

	state := &RetryState{}
	retries := 0
	for {
		_, retry := policy.Next(state, err, 3)
		if !retry {
			break
		}
		retries++
		if retries > 10 {
			t.Fatal("retry loop did not terminate")
		}
	}

	if retries != 3 {
		t.Errorf("allowed %d retries, want 3", retries)
	}
}

func TestRetryPolicyZeroRetries(t *testing.T) {
	policy := NewRetryPolicy(time.Millisecond, time.Second, 2.0, 0)

	state := &RetryState{}
	if _, retry := policy.Next(state, &ProviderError{Kind: KindTransient}, 0); retry {
		t.Error("retry allowed with maxRetries 0")
	}
}

func TestRetryPolicyBackoffGrowth(t *testing.T) {
	// Zero jitter makes the schedule deterministic.
	policy := NewRetryPolicy(10*time.Millisecond, time.Second, 2.0, 0)
	err := &ProviderError{Kind: KindTransient}
	state := &RetryState{}

	want := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		80 * time.Millisecond,
	}
	for i, expected := range want {
		delay, retry := policy.Next(state, err, 10)
		if !retry {
			t.Fatalf("attempt %d: retry refused", i)
		}
		if delay != expected {
			t.Errorf("attempt %d: delay = %v, want %v", i, delay, expected)
		}
	}
}

func TestRetryPolicyBackoffCap(t *testing.T) {
	policy := NewRetryPolicy(100*time.Millisecond, 500*time.Millisecond, 2.0, 0)
	err := &ProviderError{Kind: KindTransient}
	state := &RetryState{}

	var last time.Duration
	for i := 0; i < 8; i++ {
		delay, retry := policy.Next(state, err, 10)
		if !retry {
			t.Fatalf("attempt %d: retry refused", i)
		}
		last = delay
	}
	if last != 500*time.Millisecond {
		t.Errorf("delay = %v after many attempts, want cap 500ms", last)
	}
}

func TestRetryPolicyHonorsRetryAfter(t *testing.T) {
	policy := NewRetryPolicy(10*time.Millisecond, time.Second, 2.0, 0)
	err := &ProviderError{Kind: KindRateLimited, RetryAfter: 250 * time.Millisecond}

	state := &RetryState{}
	delay, retry := policy.Next(state, err, 3)
	if !retry {
		t.Fatal("rate-limited error refused retry")
	}
	if delay != 250*time.Millisecond {
		t.Errorf("delay = %v, want provider hint 250ms", delay)
	}
}

func TestRetryPolicyCapsRetryAfter(t *testing.T) {
	policy := NewRetryPolicy(10*time.Millisecond, time.Second, 2.0, 0)
	err := &ProviderError{Kind: KindRateLimited, RetryAfter: 6 * time.Hour}

	state := &RetryState{}
	delay, retry := policy.Next(state, err, 3)
	if !retry {
		t.Fatal("rate-limited error refused retry")
	}
	if delay != time.Hour {
		t.Errorf("delay = %v, want 1h cap", delay)
	}
}

func TestRetryPolicyRecordsLastKind(t *testing.T) {
	policy := NewRetryPolicy(time.Millisecond, time.Second, 2.0, 0)

	state := &RetryState{}
	policy.Next(state, &ProviderError{Kind: KindRateLimited}, 3)
	if state.LastKind != KindRateLimited {
		t.Errorf("LastKind = %v, want KindRateLimited", state.LastKind)
	}
	if state.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", state.Attempt)
	}
}
