package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrincipalRoundTrip(t *testing.T) {
	ctx := WithPrincipal(context.Background(), Principal{AuthID: "user_01", Email: "a@pcstyle.dev"})

	p, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user_01", p.AuthID)
}

func TestFromContextRejectsEmpty(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	_, ok = FromContext(WithPrincipal(context.Background(), Principal{}))
	assert.False(t, ok)
}
