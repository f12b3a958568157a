package middleware

import (
	"net/http"

	"github.com/hireloop/chat-relay/internal/config"
)

// BodyLimitMiddleware caps inbound request bodies. Chat event payloads are
// small; anything past the limit is rejected before the handler reads it.
type BodyLimitMiddleware struct {
	maxSize int64
}

func NewBodyLimitMiddleware(maxSize int64) *BodyLimitMiddleware {
	if maxSize <= 0 {
		maxSize = config.MaxEventBodySize
	}
	return &BodyLimitMiddleware{maxSize: maxSize}
}

func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && r.ContentLength > m.maxSize {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
				"success": false,
				"error":   "Request body too large",
			})
			return
		}

		// MaxBytesReader covers chunked requests that never declare a length
		r.Body = http.MaxBytesReader(w, r.Body, m.maxSize)
		next.ServeHTTP(w, r)
	})
}
