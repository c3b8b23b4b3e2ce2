package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeErrorMatchesCodeAndKind(t *testing.T) {
	errMissing := NewCode("THING_NOT_FOUND", ErrNotFound)
	wrapped := fmt.Errorf("get thing x: %w", errMissing)

	if !errors.Is(wrapped, errMissing) {
		t.Fatal("expected wrapped error to match its code")
	}
	if !errors.Is(wrapped, ErrNotFound) {
		t.Fatal("expected wrapped error to match its kind")
	}
	if errors.Is(wrapped, ErrConflict) {
		t.Fatal("did not expect a match on an unrelated kind")
	}
	if got := Code(wrapped); got != "THING_NOT_FOUND" {
		t.Fatalf("Code() = %q, want THING_NOT_FOUND", got)
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := Code(errors.New("boom")); got != "" {
		t.Fatalf("Code() = %q, want empty", got)
	}
	if got := Code(nil); got != "" {
		t.Fatalf("Code(nil) = %q, want empty", got)
	}
}

func TestCodesWithSameKindAreDistinct(t *testing.T) {
	a := NewCode("A", ErrValidation)
	b := NewCode("B", ErrValidation)
	if errors.Is(a, b) {
		t.Fatal("distinct codes must not match each other")
	}
	if a.Kind() != b.Kind() {
		t.Fatal("codes registered under the same kind should share it")
	}
}
