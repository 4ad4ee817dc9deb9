package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestRefError(t *testing.T) {
	err := fmt.Errorf("exit: %w", WithRef(ErrBatchNotFound, "L9"))

	if !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("expected wrapped sentinel to match")
	}
	if got := ErrorRef(err, "fallback"); got != "L9" {
		t.Errorf("expected ref L9, got %q", got)
	}
	if got := ErrorRef(ErrInsufficientStock, "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
}

func TestStorageError(t *testing.T) {
	cause := errors.New("connection reset")

	err := StorageError("insert movement", cause)
	if !errors.Is(err, ErrStorageFailure) || !errors.Is(err, cause) {
		t.Errorf("expected storage failure wrapping the cause, got %v", err)
	}
	if StorageError("noop", nil) != nil {
		t.Errorf("nil error must stay nil")
	}
	if got := StorageError("lock", ErrTransactionConflict); got != ErrTransactionConflict {
		t.Errorf("conflicts must pass through unchanged, got %v", got)
	}
}

func TestLotShortfallError(t *testing.T) {
	err := fmt.Errorf("exit: %w", NewLotShortfall("L1", 6, 5))

	if !errors.Is(err, ErrExceedsLotStock) {
		t.Errorf("expected shortfall to match ErrExceedsLotStock")
	}
	var shortfall *LotShortfallError
	if !errors.As(err, &shortfall) {
		t.Fatalf("expected a LotShortfallError in %v", err)
	}
	if shortfall.BatchCode != "L1" || shortfall.Requested != 6 || shortfall.Remaining != 5 {
		t.Errorf("unexpected shortfall %+v", shortfall)
	}
}
