package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/audioscribe/speakerhub/internal/api/response"
)

// AuthFailureRecorder counts rejected requests by reason (optional).
// Pass nil when metrics are disabled.
type AuthFailureRecorder interface {
	RecordAuthFailure(ctx context.Context, reason string)
}

// Auth validates the static API key from the Authorization header.
// Expected format: "Bearer <api-key>".
func Auth(apiKey string, recorder AuthFailureRecorder) func(http.Handler) http.Handler {
	reject := func(w http.ResponseWriter, r *http.Request, reason, message string) {
		if recorder != nil {
			recorder.RecordAuthFailure(r.Context(), reason)
		}

		response.RespondUnauthorized(w, message)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				reject(w, r, "missing_header", "Missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				reject(w, r, "malformed_header", "Invalid Authorization header format. Expected: Bearer <api-key>")
				return
			}

			if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(apiKey)) != 1 {
				reject(w, r, "invalid_key", "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
