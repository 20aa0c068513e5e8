package auth

import (
	"context"
	"fmt"
	"strings"
)

// StaticVerifier accepts tokens of the form "uid[:email[:name]]".
// Development and test use only; it performs no cryptographic checks.
type StaticVerifier struct{}

// Verify implements TokenVerifier.
func (StaticVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	parts := strings.SplitN(token, ":", 3)
	id := &Identity{UID: parts[0]}
	if id.UID == "" {
		return nil, fmt.Errorf("%w: empty uid", ErrInvalidToken)
	}
	if len(parts) > 1 {
		id.Email = parts[1]
	}
	if len(parts) > 2 {
		id.Name = parts[2]
	}
	return id, nil
}
