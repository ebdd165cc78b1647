package middleware

import (
	"context"

	"github.com/qbit/internal/model"
)

type contextKey string

const IdentityKey contextKey = "identity"

func WithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// GetIdentity returns the identity set by Authenticate.
func GetIdentity(ctx context.Context) (model.Identity, bool) {
	v, ok := ctx.Value(IdentityKey).(model.Identity)
	return v, ok && v.UserID != ""
}

func GetUserID(ctx context.Context) string {
	v, _ := GetIdentity(ctx)
	return v.UserID
}
