package middleware

import (
	"crypto/subtle"
	"net/http"
)

// AdminKey admits requests carrying X-Admin-Key == key. An empty key closes the route.
func AdminKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" || !KeyEqual(r.Header.Get("X-Admin-Key"), key) {
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// KeyEqual compares secrets in constant time.
func KeyEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
