package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/audioscribe/speakerhub/internal/api/response"
)

// RequestBodyTooLargeRecorder records when a request is rejected for exceeding the body limit (optional).
// Pass nil when metrics are disabled.
type RequestBodyTooLargeRecorder interface {
	RecordRequestBodyTooLarge(ctx context.Context)
}

// mayHaveBody is true for methods that typically send a request body (we buffer only then to send 413).
func mayHaveBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

func respondTooLarge(ctx context.Context, w http.ResponseWriter, recorder RequestBodyTooLargeRecorder) {
	if recorder != nil {
		recorder.RecordRequestBodyTooLarge(ctx)
	}

	response.RespondError(w, http.StatusRequestEntityTooLarge,
		"Request Entity Too Large", "request body exceeds maximum allowed size")
}

// MaxBody limits request bodies to maxBytes and answers 413 when a request
// goes over, even when the handler has already turned the truncated read into
// its own error. Zero or negative disables the limit.
func MaxBody(maxBytes int64, recorder RequestBodyTooLargeRecorder) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// A declared Content-Length over the limit is rejected before
			// reading anything. Diarization payloads carry embeddings and
			// whole transcripts, so big requests are routine here and the
			// cheap check catches most of them.
			if r.ContentLength > maxBytes {
				respondTooLarge(r.Context(), w, recorder)
				return
			}

			body := &limitReader{ReadCloser: http.MaxBytesReader(w, r.Body, maxBytes)}
			r.Body = body

			// Methods without a body stream straight through; buffering them
			// would only cost memory and time to first byte.
			if !mayHaveBody(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			// Buffer the handler's response so a limit hit discovered midway
			// can still be replaced with a clean 413.
			buf := &bufferedResponse{ResponseWriter: w}
			next.ServeHTTP(buf, r)

			if body.tripped {
				respondTooLarge(r.Context(), w, recorder)
				return
			}

			buf.flush()
		})
	}
}

// limitReader wraps http.MaxBytesReader and remembers whether the limit
// tripped, so the middleware can decide on 413 after the handler returns.
type limitReader struct {
	io.ReadCloser

	tripped bool
}

func (r *limitReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			r.tripped = true
		}

		return n, fmt.Errorf("read body: %w", err)
	}

	return n, nil
}

// bufferedResponse holds back status and body until flush, so the buffered
// output can be dropped in favor of a 413.
type bufferedResponse struct {
	http.ResponseWriter

	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) WriteHeader(code int) {
	b.status = code
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	n, err := b.body.Write(p)
	if err != nil {
		return n, fmt.Errorf("buffer write: %w", err)
	}

	return n, nil
}

func (b *bufferedResponse) flush() {
	if b.status != 0 {
		b.ResponseWriter.WriteHeader(b.status)
	}

	_, _ = b.body.WriteTo(b.ResponseWriter)
}
