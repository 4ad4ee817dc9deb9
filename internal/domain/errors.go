package domain

import (
	"errors"
	"fmt"
)

// Ledger domain errors
var (
	// ErrValidation is returned for malformed or out-of-range input
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateBatch is returned when an active entry with the same batch code already exists for the item
	ErrDuplicateBatch = errors.New("batch code already exists for item")

	// ErrBatchNotFound is returned when the referenced lot does not exist or is inactive
	ErrBatchNotFound = errors.New("batch not found")

	// ErrInsufficientStock is returned when FIFO consumption cannot satisfy the requested quantity
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrExceedsLotStock is returned when a targeted exit or expiration exceeds the lot balance
	ErrExceedsLotStock = errors.New("quantity exceeds lot remaining stock")

	// ErrItemNotFound is returned when the inventory item does not exist or is inactive
	ErrItemNotFound = errors.New("inventory item not found")

	// ErrMovementNotFound is returned when a movement does not exist or is inactive
	ErrMovementNotFound = errors.New("movement not found")

	// ErrDuplicateSKU is returned when another active item of the same owner uses the SKU
	ErrDuplicateSKU = errors.New("sku already exists")

	// ErrTransactionConflict is returned when the store detected a concurrent write; the whole operation may be retried
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrStorageFailure is returned for unexpected persistence errors
	ErrStorageFailure = errors.New("storage failure")
)

// ValidationError describes a single invalid field
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for the given field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrValidation) match any ValidationError
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StorageError wraps an unexpected store error so callers can match ErrStorageFailure
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransactionConflict) || errors.Is(err, ErrStorageFailure) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}

// RefError attaches the identifier a ledger failure refers to, such as the
// batch code of a missing lot
type RefError struct {
	Err error
	Ref string
}

// WithRef wraps a sentinel error with the identifier it refers to
func WithRef(err error, ref string) error {
	return &RefError{Err: err, Ref: ref}
}

func (e *RefError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Ref)
}

func (e *RefError) Unwrap() error {
	return e.Err
}

// ErrorRef returns the identifier carried by err, or fallback when there is none
func ErrorRef(err error, fallback string) string {
	var ref *RefError
	if errors.As(err, &ref) {
		return ref.Ref
	}
	return fallback
}

// LotShortfallError reports a targeted consumption larger than the lot balance
type LotShortfallError struct {
	BatchCode string
	Requested int64
	Remaining int64
}

// NewLotShortfall creates an error matching ErrExceedsLotStock
func NewLotShortfall(batchCode string, requested, remaining int64) error {
	return &LotShortfallError{BatchCode: batchCode, Requested: requested, Remaining: remaining}
}

func (e *LotShortfallError) Error() string {
	return fmt.Sprintf("%v: %s requested %d, remaining %d", ErrExceedsLotStock, e.BatchCode, e.Requested, e.Remaining)
}

func (e *LotShortfallError) Unwrap() error {
	return ErrExceedsLotStock
}
