package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerContextRoundTrip(t *testing.T) {
	ctx := ToContext(context.Background(), &Context{OwnerID: "owner-1"})

	tc, err := FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", tc.OwnerID)
	assert.Equal(t, "owner-1", OwnerID(ctx))
}

func TestFromContextMissingOwner(t *testing.T) {
	_, err := FromContext(context.Background())
	assert.ErrorIs(t, err, ErrMissingOwnerContext)

	_, err = RequireOwnerID(WithOwnerID(context.Background(), ""))
	assert.ErrorIs(t, err, ErrMissingOwnerContext)
}

func TestToContextIgnoresEmptyOwner(t *testing.T) {
	ctx := ToContext(context.Background(), &Context{})
	assert.Empty(t, OwnerID(ctx))
	assert.True(t, (&Context{}).IsEmpty())
}
