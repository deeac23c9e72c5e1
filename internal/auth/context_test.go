package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))
	assert.Panics(t, func() { MustFromContext(ctx) })

	want := &AuthContext{UserID: 3, Username: "layla"}
	ctx = WithAuth(ctx, want)
	assert.Same(t, want, FromContext(ctx))
	assert.Same(t, want, MustFromContext(ctx))
}
