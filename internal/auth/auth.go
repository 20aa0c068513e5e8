// Package auth defines the token verification boundary. The API layer
// verifies bearer tokens through a TokenVerifier; the concrete verifier
// is chosen at startup.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrInvalidToken indicates the bearer token is missing, malformed,
// expired or otherwise unverifiable.
var ErrInvalidToken = errors.New("invalid token")

// Identity is a verified caller.
type Identity struct {
	// UID is the stable external identity ID (e.g. a Firebase UID).
	UID string
	// Email of the caller, when the token carries one.
	Email string
	// Name is the display name, when the token carries one.
	Name string
}

// TokenVerifier validates a bearer token and returns the identity it
// represents.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// BearerToken extracts the token from an Authorization header. Returns
// the empty string when the header is absent or not a Bearer scheme.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return header[len(prefix):]
}

type identityCtxKey struct{}

// WithIdentity returns a context carrying the verified identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the verified identity, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(*Identity)
	return id, ok
}
