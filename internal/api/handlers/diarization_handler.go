package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"

	"github.com/audioscribe/speakerhub/internal/api/response"
	"github.com/audioscribe/speakerhub/internal/api/validation"
	"github.com/audioscribe/speakerhub/internal/apperrors"
	"github.com/audioscribe/speakerhub/internal/models"
)

// DiarizationService defines the interface for diarization ingest business logic.
type DiarizationService interface {
	IngestDiarizationResult(ctx context.Context, req *models.DiarizationResultRequest) (*models.DiarizationAcceptedResponse, error)
}

// DiarizationHandler receives diarization results from the transcription
// pipeline. When a verifier is configured, payloads must carry a valid
// Standard Webhooks signature.
type DiarizationHandler struct {
	service  DiarizationService
	verifier *standardwebhooks.Webhook
}

// NewDiarizationHandler creates a new diarization handler. verifier may be nil,
// in which case signatures are not checked.
func NewDiarizationHandler(service DiarizationService, verifier *standardwebhooks.Webhook) *DiarizationHandler {
	return &DiarizationHandler{
		service:  service,
		verifier: verifier,
	}
}

// Ingest handles POST /v1/diarization/results.
func (h *DiarizationHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Warn("Failed to read diarization payload", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondBadRequest(w, "Failed to read request body")
		return
	}

	if h.verifier != nil {
		if err := h.verifier.Verify(payload, r.Header); err != nil {
			slog.Warn("Rejected diarization result with invalid signature",
				"method", r.Method, "path", r.URL.Path, "error", err)
			response.RespondUnauthorized(w, "Invalid webhook signature")
			return
		}
	}

	// The diarizer may send fields this service does not know about; unknown
	// fields are tolerated rather than rejected.
	var req models.DiarizationResultRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		slog.Warn("Invalid diarization payload", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	accepted, err := h.service.IngestDiarizationResult(r.Context(), &req)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidEmbedding) {
			response.RespondBadRequest(w, err.Error())
			return
		}
		slog.Error("Failed to ingest diarization result",
			"method", r.Method, "path", r.URL.Path, "external_ref", req.MediaExternalRef, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusAccepted, accepted)
}
