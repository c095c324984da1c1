package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/audioscribe/speakerhub/internal/observability"
)

const requestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds client-supplied ids so access logs stay sane.
const maxRequestIDLength = 128

// RequestID runs first in the chain and guarantees every request carries an
// id, in context and in the response header. A client-supplied X-Request-ID
// is kept when it fits the length bound; otherwise a fresh one is minted.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.Must(uuid.NewV7()).String()
		}

		ctx := context.WithValue(r.Context(), observability.RequestIDKey, id)
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
