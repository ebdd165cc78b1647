package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/qbit/internal/logger"
)

// RequestLog logs one debug line per request. Socket upgrades are logged
// on connect by the socket handlers instead.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		sw := wrapStatus(w)
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		logger.Debugf("http req=%s %s %s %d %v", chimw.GetReqID(r.Context()), r.Method, r.URL.Path, sw.status, time.Since(start))
	})
}
