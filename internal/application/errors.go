package application

import (
	stderrors "errors"
	"strconv"

	"github.com/wms-platform/lot-ledger/internal/domain"
	"github.com/wms-platform/lot-ledger/pkg/errors"
)

// toAppError maps domain failures onto the API error taxonomy. Errors that
// are already AppErrors pass through, anything unknown becomes a storage failure.
func toAppError(err error) *errors.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr
	}

	var validationErr *domain.ValidationError
	var shortfall *domain.LotShortfallError
	switch {
	case stderrors.As(err, &validationErr):
		fields := map[string]string{}
		if validationErr.Field != "" {
			fields[validationErr.Field] = validationErr.Message
		}
		return errors.ErrValidationWithFields(validationErr.Error(), fields).Wrap(err)
	case stderrors.Is(err, domain.ErrValidation):
		return errors.ErrValidation(err.Error()).Wrap(err)
	case stderrors.Is(err, domain.ErrDuplicateBatch):
		return errors.ErrDuplicateBatch(domain.ErrorRef(err, "")).Wrap(err)
	case stderrors.Is(err, domain.ErrBatchNotFound):
		return errors.ErrBatchNotFound(domain.ErrorRef(err, "")).Wrap(err)
	case stderrors.Is(err, domain.ErrInsufficientStock):
		return errors.ErrInsufficientStock().Wrap(err)
	case stderrors.As(err, &shortfall):
		return errors.ErrExceedsLotStock(shortfall.BatchCode).
			WithDetail("requestedQuantity", strconv.FormatInt(shortfall.Requested, 10)).
			WithDetail("remainingQuantity", strconv.FormatInt(shortfall.Remaining, 10)).
			Wrap(err)
	case stderrors.Is(err, domain.ErrExceedsLotStock):
		return errors.ErrExceedsLotStock(domain.ErrorRef(err, "")).Wrap(err)
	case stderrors.Is(err, domain.ErrItemNotFound):
		return errors.ErrItemNotFound(domain.ErrorRef(err, "")).Wrap(err)
	case stderrors.Is(err, domain.ErrMovementNotFound):
		return errors.ErrMovementNotFound(domain.ErrorRef(err, "")).Wrap(err)
	case stderrors.Is(err, domain.ErrDuplicateSKU):
		return errors.ErrDuplicateSKU(domain.ErrorRef(err, "")).Wrap(err)
	case stderrors.Is(err, domain.ErrTransactionConflict):
		return errors.ErrTransactionConflict().Wrap(err)
	default:
		return errors.ErrStorageFailure().Wrap(err)
	}
}

// wrapError is toAppError with the nil interface preserved for callers returning error
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	return toAppError(err)
}
