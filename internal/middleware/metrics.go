package middleware

import (
	"net/http"

	"github.com/zhouzirui/z-tone/backend/internal/metrics"
)

// RequestCounter is notified once per request.
type RequestCounter interface {
	CountRequest()
}

// CountRequests increments the HTTP request metric and, when c is non-nil, the health counter.
func CountRequests(c RequestCounter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metrics.RequestsTotal.WithLabelValues("http").Inc()
			if c != nil {
				c.CountRequest()
			}
			next.ServeHTTP(w, r)
		})
	}
}
