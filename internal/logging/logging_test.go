package logging

import (
	"errors"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewOperationErrorNilPassthrough(t *testing.T) {
	if err := NewOperationError("store.upsert", "req-1", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestOperationErrorUnwrapsAndFormats(t *testing.T) {
	base := errors.New("disk full")
	err := NewOperationError("store.upsert", "req-1", base)

	if !errors.Is(err, base) {
		t.Fatal("expected wrapped error to match base")
	}
	if got, want := err.Error(), "store.upsert (request_id=req-1): disk full"; got != want {
		t.Fatalf("unexpected message: %q, want %q", got, want)
	}

	noID := NewOperationError("store.load", "", base)
	if got, want := noID.Error(), "store.load: disk full"; got != want {
		t.Fatalf("unexpected message: %q, want %q", got, want)
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("chatty"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	logger, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level to be enabled")
	}
}

func TestOperationOf(t *testing.T) {
	err := NewOperationError("usecase.register", "req-9", errors.New("boom"))
	wrapped := errors.Join(errors.New("outer"), err)

	if got := OperationOf(wrapped); got != "usecase.register" {
		t.Fatalf("unexpected operation: %q", got)
	}
	if got := OperationOf(errors.New("plain")); got != "" {
		t.Fatalf("expected empty operation, got %q", got)
	}
}
