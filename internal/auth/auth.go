// Package auth turns a user's bearer token into a verified identity.
package auth

import (
	"context"
	"errors"

	"github.com/qbit/internal/model"
)

var ErrUnauthorized = errors.New("unauthorized")

// Authenticator verifies a token. Any failure wraps ErrUnauthorized.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.Identity, error)
}
