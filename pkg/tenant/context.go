package tenant

import (
	"context"
	"errors"
)

type contextKey string

const ownerIDKey contextKey = "ownerId"

// DefaultOwnerID is used when owner scoping is not enforced
const DefaultOwnerID = "DEFAULT_OWNER"

// ErrMissingOwnerContext is returned when a request carries no owner
var ErrMissingOwnerContext = errors.New("owner context is required")

// Context holds the identity every item and movement is scoped to
type Context struct {
	// OwnerID is the account that owns the stock
	OwnerID string `json:"ownerId"`
}

// FromContext extracts the owner Context from context.Context
func FromContext(ctx context.Context) (*Context, error) {
	if v, ok := ctx.Value(ownerIDKey).(string); ok && v != "" {
		return &Context{OwnerID: v}, nil
	}
	return nil, ErrMissingOwnerContext
}

// ToContext adds the owner Context to context.Context
func ToContext(ctx context.Context, tc *Context) context.Context {
	if tc == nil || tc.OwnerID == "" {
		return ctx
	}
	return context.WithValue(ctx, ownerIDKey, tc.OwnerID)
}

// WithOwnerID returns a new context with the owner ID set
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDKey, ownerID)
}

// OwnerID extracts the owner ID from context, or "" when absent
func OwnerID(ctx context.Context) string {
	if v, ok := ctx.Value(ownerIDKey).(string); ok {
		return v
	}
	return ""
}

// RequireOwnerID extracts the owner ID or fails with ErrMissingOwnerContext
func RequireOwnerID(ctx context.Context) (string, error) {
	tc, err := FromContext(ctx)
	if err != nil {
		return "", err
	}
	return tc.OwnerID, nil
}

// IsEmpty returns true if no owner is set
func (tc *Context) IsEmpty() bool {
	return tc.OwnerID == ""
}
