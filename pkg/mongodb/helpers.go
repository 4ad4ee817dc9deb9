package mongodb

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	errorLabelTransient = "TransientTransactionError"
	codeWriteConflict   = 112
	codeNoSuchTxn       = 251
)

// IsDuplicateKey reports whether err is a unique index violation
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// IsTransactionConflict reports whether err means the transaction lost a race
// with a concurrent writer and the whole unit of work may be repeated.
func IsTransactionConflict(err error) bool {
	if err == nil {
		return false
	}

	var labeled mongo.LabeledError
	if errors.As(err, &labeled) && labeled.HasErrorLabel(errorLabelTransient) {
		return true
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		return serverErr.HasErrorCode(codeWriteConflict) || serverErr.HasErrorCode(codeNoSuchTxn)
	}
	return false
}

// IsNotFound reports whether err is mongo.ErrNoDocuments
func IsNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// DecimalToBSON converts a decimal to Decimal128 for storage
func DecimalToBSON(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("convert %s to decimal128: %w", d, err)
	}
	return v, nil
}

// DecimalFromBSON converts a stored Decimal128 back to a decimal
func DecimalFromBSON(v primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(v.String())
}

// SortMultiple creates a multi-field sort option
func SortMultiple(fields ...SortField) bson.D {
	sort := bson.D{}
	for _, f := range fields {
		if f.Descending {
			sort = append(sort, bson.E{Key: f.Field, Value: -1})
		} else {
			sort = append(sort, bson.E{Key: f.Field, Value: 1})
		}
	}
	return sort
}

// SortField represents a field to sort by
type SortField struct {
	Field      string
	Descending bool
}
