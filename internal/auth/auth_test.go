package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid bearer", "Bearer abc123", "abc123"},
		{"case insensitive scheme", "bearer abc123", "abc123"},
		{"missing header", "", ""},
		{"wrong scheme", "Basic abc123", ""},
		{"bare scheme", "Bearer ", ""},
		{"scheme only", "Bearer", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, BearerToken(r))
		})
	}
}

func TestStaticVerifier(t *testing.T) {
	v := StaticVerifier{}
	ctx := context.Background()

	id, err := v.Verify(ctx, "uid-1:a@example.com:Alice")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", id.UID)
	assert.Equal(t, "a@example.com", id.Email)
	assert.Equal(t, "Alice", id.Name)

	id, err = v.Verify(ctx, "uid-only")
	require.NoError(t, err)
	assert.Equal(t, "uid-only", id.UID)
	assert.Empty(t, id.Email)

	_, err = v.Verify(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(ctx, ":a@example.com")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()

	_, ok := IdentityFromContext(ctx)
	assert.False(t, ok)

	id := &Identity{UID: "u"}
	ctx = WithIdentity(ctx, id)
	got, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, id, got)
}
