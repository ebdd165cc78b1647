package middleware

import (
	"net/http"
	"strings"

	"github.com/qbit/internal/auth"
	"github.com/qbit/internal/logger"
)

// BearerToken reads "Authorization: Bearer <token>", falling back to the
// token query parameter (browsers cannot set headers on a websocket dial).
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// Authenticate resolves the request's token to an identity or answers 401.
func Authenticate(a auth.Authenticator) func(http.Handler) http.Handler {
	throttle := logger.NewThrottle(logger.DefaultThrottleWindow)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			identity, err := a.Authenticate(r.Context(), token)
			if err != nil {
				throttle.Infof("auth:"+r.RemoteAddr, "auth rejected addr=%s token=%s: %v", r.RemoteAddr, MaskKey(token), err)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}
