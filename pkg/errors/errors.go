package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error codes
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeBadRequest      = "BAD_REQUEST"
)

// Ledger error codes
const (
	CodeDuplicateBatch      = "DUPLICATE_BATCH"
	CodeBatchNotFound       = "BATCH_NOT_FOUND"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeExceedsLotStock     = "EXCEEDS_LOT_STOCK"
	CodeItemNotFound        = "ITEM_NOT_FOUND"
	CodeMovementNotFound    = "MOVEMENT_NOT_FOUND"
	CodeDuplicateSKU        = "DUPLICATE_SKU"
	CodeTransactionConflict = "TRANSACTION_CONFLICT"
	CodeStorageFailure      = "STORAGE_FAILURE"
)

// AppError represents an application error with HTTP status and error code
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Wrap wraps an existing error
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// Retryable reports whether the caller may safely repeat the whole operation
func (e *AppError) Retryable() bool {
	return e.Code == CodeTransactionConflict
}

// NewAppError creates a new AppError
func NewAppError(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// ErrValidation creates a validation error
func ErrValidation(message string) *AppError {
	return NewAppError(CodeValidationError, message, http.StatusBadRequest)
}

// ErrValidationWithFields creates a validation error with field details
func ErrValidationWithFields(message string, fields map[string]string) *AppError {
	return ErrValidation(message).WithDetails(fields)
}

// ErrUnauthorized creates an unauthorized error
func ErrUnauthorized(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return NewAppError(CodeUnauthorized, message, http.StatusUnauthorized)
}

// ErrInternal creates an internal error
func ErrInternal(message string) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return NewAppError(CodeInternalError, message, http.StatusInternalServerError)
}

// ErrBadRequest creates a bad request error
func ErrBadRequest(message string) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest)
}

// Ledger errors

// ErrDuplicateBatch creates an error for a batch code already in use on the item
func ErrDuplicateBatch(batchCode string) *AppError {
	return NewAppError(CodeDuplicateBatch, "an entry with this batch code already exists", http.StatusConflict).
		WithDetail("batchCode", batchCode)
}

// ErrBatchNotFound creates an error for a missing or inactive lot
func ErrBatchNotFound(batchCode string) *AppError {
	return NewAppError(CodeBatchNotFound, "batch not found", http.StatusNotFound).
		WithDetail("batchCode", batchCode)
}

// ErrInsufficientStock creates an error for a sale that cannot be covered by the item's lots
func ErrInsufficientStock() *AppError {
	return NewAppError(CodeInsufficientStock, "insufficient stock available", http.StatusUnprocessableEntity)
}

// ErrExceedsLotStock creates an error for an exit or expiration larger than the lot balance
func ErrExceedsLotStock(batchCode string) *AppError {
	return NewAppError(CodeExceedsLotStock, "quantity exceeds the lot remaining stock", http.StatusUnprocessableEntity).
		WithDetail("batchCode", batchCode)
}

// ErrItemNotFound creates an error for a missing or inactive inventory item
func ErrItemNotFound(itemID string) *AppError {
	return NewAppError(CodeItemNotFound, "inventory item not found", http.StatusNotFound).
		WithDetail("itemId", itemID)
}

// ErrMovementNotFound creates an error for a missing or inactive movement
func ErrMovementNotFound(movementID string) *AppError {
	return NewAppError(CodeMovementNotFound, "movement not found", http.StatusNotFound).
		WithDetail("movementId", movementID)
}

// ErrDuplicateSKU creates an error for a SKU already used by another item of the owner
func ErrDuplicateSKU(sku string) *AppError {
	return NewAppError(CodeDuplicateSKU, "an item with this SKU already exists", http.StatusConflict).
		WithDetail("sku", sku)
}

// ErrTransactionConflict creates a retryable conflict error
func ErrTransactionConflict() *AppError {
	return NewAppError(CodeTransactionConflict, "concurrent update detected, retry the operation", http.StatusConflict).
		WithDetail("retryable", "true")
}

// ErrStorageFailure creates an error for unexpected persistence failures
func ErrStorageFailure() *AppError {
	return NewAppError(CodeStorageFailure, "storage is temporarily unavailable", http.StatusServiceUnavailable)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// FromError converts a standard error to an AppError
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := AsAppError(err); ok {
		return appErr
	}

	return ErrInternal("").Wrap(err)
}
