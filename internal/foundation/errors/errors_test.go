package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "exporter.yaml").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		if err.Message() != "invalid configuration" {
			t.Errorf("expected message 'invalid configuration', got %s", err.Message())
		}
		file, exists := err.Context().GetString("file")
		if !exists || file != "exporter.yaml" {
			t.Errorf("expected context file=exporter.yaml, got %v", file)
		}
	})

	t.Run("Convenience constructors", func(t *testing.T) {
		if !RegistryError("x").Build().IsFatal() {
			t.Error("expected registry errors to be fatal")
		}
		if DecodeError("x").Build().IsFatal() {
			t.Error("expected decode errors to be non-fatal")
		}
		if !TransportError("x").Build().CanRetry() {
			t.Error("expected transport errors to be retryable")
		}
		if ConfigError("x").Build().CanRetry() {
			t.Error("expected config errors to not be retryable")
		}
	})
}

func TestSentinelMatching(t *testing.T) {
	sentinel := RegistryError("unknown metric family").Build()

	derived := sentinel.WithContext("name", "buildbot_nope")
	if !errors.Is(derived, sentinel) {
		t.Fatal("expected derived error to match sentinel")
	}
	if _, ok := sentinel.Context().Get("name"); ok {
		t.Fatal("WithContext must not mutate the sentinel")
	}

	wrapped := fmt.Errorf("declare catalogue: %w", derived)
	if !errors.Is(wrapped, sentinel) {
		t.Fatal("expected wrapped error to match sentinel")
	}
	if !HasCategory(wrapped, CategoryRegistry) {
		t.Fatal("expected category lookup through wrapping")
	}
	if GetCategory(errors.New("plain")) != CategoryInternal {
		t.Fatal("expected unclassified errors to report internal category")
	}
}

func TestErrorBuilder(t *testing.T) {
	originalErr := errors.New("connection refused")
	err := WrapError(originalErr, CategoryTransport, "nats connect failed").
		Warning().
		Retryable().
		WithContext("url", "nats://localhost:4222").
		Build()

	if err.Severity() != SeverityWarning {
		t.Errorf("expected severity %s, got %s", SeverityWarning, err.Severity())
	}
	if err.RetryStrategy() != RetryBackoff {
		t.Errorf("expected retry strategy %s, got %s", RetryBackoff, err.RetryStrategy())
	}
	if !errors.Is(err, originalErr) {
		t.Error("expected error to wrap original error")
	}
	want := "[transport:warning] nats connect failed: connection refused"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestErrorContextMerge(t *testing.T) {
	a := ErrorContext{"a": 1, "shared": "a"}
	b := ErrorContext{"b": 2, "shared": "b"}
	merged := a.Merge(b)
	if merged["shared"] != "b" || merged["a"] != 1 || merged["b"] != 2 {
		t.Fatalf("unexpected merge result: %v", merged)
	}
	var nilCtx ErrorContext
	if got := nilCtx.Merge(b); got["b"] != 2 {
		t.Fatalf("expected nil merge to return other, got %v", got)
	}
}
