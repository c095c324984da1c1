package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/audioscribe/speakerhub/internal/api/response"
	"github.com/audioscribe/speakerhub/internal/api/validation"
	"github.com/audioscribe/speakerhub/internal/apperrors"
	"github.com/audioscribe/speakerhub/internal/models"
)

// SpeakersService defines the interface for speaker review business logic.
type SpeakersService interface {
	Verify(ctx context.Context, speakerID uuid.UUID, req *models.VerifySpeakerRequest) (*models.Profile, error)
	ListSegments(ctx context.Context, speakerID uuid.UUID) (*models.SpeakerSegmentsResponse, error)
}

// SpeakersHandler handles HTTP requests for file speakers.
type SpeakersHandler struct {
	service SpeakersService
}

// NewSpeakersHandler creates a new speakers handler.
func NewSpeakersHandler(service SpeakersService) *SpeakersHandler {
	return &SpeakersHandler{service: service}
}

// Verify handles POST /v1/speakers/{id}/verify.
func (h *SpeakersHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "Speaker ID")
	if !ok {
		return
	}

	var req models.VerifySpeakerRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		slog.Warn("Invalid request body", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	profile, err := h.service.Verify(r.Context(), id, &req)
	if err != nil {
		var gone *apperrors.ProfileGoneError
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			response.RespondNotFound(w, err.Error())
		case errors.Is(err, apperrors.ErrValidation):
			response.RespondUnprocessableEntity(w, err.Error())
		case errors.As(err, &gone):
			response.RespondProfileGone(w, err.Error(), gone.MergedInto.String())
		case errors.Is(err, apperrors.ErrConflict):
			response.RespondConflict(w, err.Error())
		default:
			slog.Error("Failed to verify speaker", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
			response.RespondInternalServerError(w, "An unexpected error occurred")
		}
		return
	}

	response.RespondJSON(w, http.StatusOK, profile)
}

// ListSegments handles GET /v1/speakers/{id}/segments.
func (h *SpeakersHandler) ListSegments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "Speaker ID")
	if !ok {
		return
	}

	segments, err := h.service.ListSegments(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			response.RespondNotFound(w, err.Error())
			return
		}

		slog.Error("Failed to list speaker segments", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, segments)
}
