package intention

import (
	"errors"
	"strings"
	"testing"
)

func TestFingerprintDeterminism(t *testing.T) {
	params := ModelParams{Model: "sonar", Temperature: 0.7}

	fp1, err := NewFingerprint("perplexity", "summary", "1.0.0", Payload(`{"prompt":"hello"}`), params)
	if err != nil {
		t.Fatalf("NewFingerprint() error = %v", err)
	}
	fp2, err := NewFingerprint("perplexity", "summary", "1.0.0", Payload(`{"prompt":"hello"}`), params)
	if err != nil {
		t.Fatalf("NewFingerprint() error = %v", err)
	}

	if fp1 != fp2 {
		t.Errorf("equal logical requests produced different fingerprints: %s vs %s", fp1, fp2)
	}
}

func TestFingerprintNormalization(t *testing.T) {
	params := ModelParams{Model: "sonar"}

	// Key order and whitespace must not affect identity.
	fp1, err := NewFingerprint("p", "t", "1", Payload(`{"a":1,"b":"x"}`), params)
	if err != nil {
		t.Fatalf("NewFingerprint() error = %v", err)
	}
	fp2, err := NewFingerprint("p", "t", "1", Payload(`{ "b" : "x" , "a" : 1 }`), params)
	if err != nil {
		t.Fatalf("NewFingerprint() error = %v", err)
	}

	if fp1 != fp2 {
		t.Errorf("semantically identical payloads produced different fingerprints")
	}
}

func TestFingerprintDistinctInputs(t *testing.T) {
	base := ModelParams{Model: "sonar"}
	fp := func(provider, template, version, payload string, params ModelParams) Fingerprint {
		t.Helper()
		f, err := NewFingerprint(provider, template, version, Payload(payload), params)
		if err != nil {
			t.Fatalf("NewFingerprint() error = %v", err)
		}
		return f
	}

	ref := fp("p", "t", "1", `{"prompt":"a"}`, base)

	tests := []struct {
		name  string
		other Fingerprint
	}{
		{"different payload", fp("p", "t", "1", `{"prompt":"b"}`, base)},
		{"different provider", fp("q", "t", "1", `{"prompt":"a"}`, base)},
		{"different model", fp("p", "t", "1", `{"prompt":"a"}`, ModelParams{Model: "other"})},
		{"different temperature", fp("p", "t", "1", `{"prompt":"a"}`, ModelParams{Model: "sonar", Temperature: 0.9})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.other == ref {
				t.Errorf("distinct inputs collided: %s", ref)
			}
		})
	}
}

func TestFingerprintRejectsMalformedPayload(t *testing.T) {
	_, err := NewFingerprint("p", "t", "1", Payload(`not json`), ModelParams{})
	if err == nil {
		t.Fatal("expected error for non-normalizable payload")
	}
	var e *Error
	if !errors.As(err, &e) || e.Type != ErrorTypeTemplate {
		t.Errorf("expected Template error, got %v", err)
	}
}

func TestFingerprintPrefixes(t *testing.T) {
	fp, err := NewFingerprint("perplexity", "summary", "1.0.0", Payload(`{"prompt":"x"}`), ModelParams{})
	if err != nil {
		t.Fatalf("NewFingerprint() error = %v", err)
	}

	if !strings.HasPrefix(string(fp), ProviderPrefix("perplexity")) {
		t.Errorf("fingerprint %s missing provider prefix", fp)
	}
	if !strings.HasPrefix(string(fp), TemplatePrefix("perplexity", "summary", "1.0.0")) {
		t.Errorf("fingerprint %s missing template prefix", fp)
	}
}
