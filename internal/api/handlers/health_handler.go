package handlers

import (
	"context"
	"log/slog"
	"net/http"
)

// Pinger reports whether the backing store is reachable. Satisfied by
// pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers GET /health. With a database attached it doubles as a
// readiness check; with nil it only signals that the process is up.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a health handler. db may be nil.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check responds 200 while the database answers a ping and 503 once it stops,
// so the load balancer drains an instance that lost its pool.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			slog.Error("health: database ping failed", "error", err)
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)

			return
		}
	}

	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("health: write response failed", "error", err)
	}
}
