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

// ProfilesService defines the interface for profiles business logic.
type ProfilesService interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.ProfileWithStats, error)
	ListProfiles(ctx context.Context, filters *models.ListProfilesFilters) (*models.ListProfilesResponse, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, req *models.UpdateProfileRequest) (*models.UpdateProfileResponse, error)
	DeleteProfile(ctx context.Context, id uuid.UUID) error
	ListOccurrences(ctx context.Context, profileID uuid.UUID, limit int, cursor string) (*models.ListOccurrencesResponse, error)
}

// MergeService defines the interface for profile merge business logic.
type MergeService interface {
	Merge(ctx context.Context, req *models.MergeProfilesRequest) (*models.MergeOutcome, error)
}

// ProfilesHandler handles HTTP requests for profiles.
type ProfilesHandler struct {
	service ProfilesService
	merges  MergeService
}

// NewProfilesHandler creates a new profiles handler.
func NewProfilesHandler(service ProfilesService, merges MergeService) *ProfilesHandler {
	return &ProfilesHandler{
		service: service,
		merges:  merges,
	}
}

// List handles GET /v1/profiles.
func (h *ProfilesHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListProfilesFilters{}

	if err := validation.ValidateAndDecodeQueryParams(r, filters); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	result, err := h.service.ListProfiles(r.Context(), filters)
	if err != nil {
		slog.Error("Failed to list profiles", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Get handles GET /v1/profiles/{id}.
func (h *ProfilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "Profile ID")
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			response.RespondNotFound(w, "Profile not found")
			return
		}
		slog.Error("Failed to get profile", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, profile)
}

// Update handles PATCH /v1/profiles/{id}. A rename runs the retroactive
// relabel pass before responding; the response carries its summary.
func (h *ProfilesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "Profile ID")
	if !ok {
		return
	}

	var req models.UpdateProfileRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		slog.Warn("Invalid request body for update", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	result, err := h.service.UpdateProfile(r.Context(), id, &req)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			response.RespondNotFound(w, "Profile not found")
		case errors.Is(err, apperrors.ErrConflict):
			response.RespondConflict(w, err.Error())
		case errors.Is(err, apperrors.ErrValidation):
			response.RespondUnprocessableEntity(w, err.Error())
		default:
			slog.Error("Failed to update profile", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
			response.RespondInternalServerError(w, "An unexpected error occurred")
		}
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Delete handles DELETE /v1/profiles/{id}. Profiles that still own voiceprints
// or speakers cannot be deleted.
func (h *ProfilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "Profile ID")
	if !ok {
		return
	}

	if err := h.service.DeleteProfile(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			response.RespondNotFound(w, "Profile not found")
		case errors.Is(err, apperrors.ErrValidation):
			response.RespondUnprocessableEntity(w, err.Error())
		default:
			slog.Error("Failed to delete profile", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
			response.RespondInternalServerError(w, "An unexpected error occurred")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Merge handles POST /v1/profiles/merge. Partial success is still a 200; the
// outcome body reports the per-source results.
func (h *ProfilesHandler) Merge(w http.ResponseWriter, r *http.Request) {
	var req models.MergeProfilesRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		slog.Warn("Invalid request body for merge", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	outcome, err := h.merges.Merge(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidMergeRequest):
			response.RespondUnprocessableEntity(w, err.Error())
		case errors.Is(err, apperrors.ErrNotFound):
			response.RespondNotFound(w, "Target profile not found")
		default:
			slog.Error("Failed to merge profiles",
				"method", r.Method, "path", r.URL.Path, "target", req.TargetProfileID, "error", err)
			response.RespondInternalServerError(w, "An unexpected error occurred")
		}
		return
	}

	response.RespondJSON(w, http.StatusOK, outcome)
}

// ListOccurrences handles GET /v1/profiles/{id}/occurrences.
func (h *ProfilesHandler) ListOccurrences(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "Profile ID")
	if !ok {
		return
	}

	filters := &models.ListOccurrencesFilters{}
	if err := validation.ValidateAndDecodeQueryParams(r, filters); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	result, err := h.service.ListOccurrences(r.Context(), id, filters.Limit, filters.Cursor)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			response.RespondNotFound(w, "Profile not found")
		case errors.Is(err, apperrors.ErrInvalidCursor):
			response.RespondBadRequest(w, err.Error())
		default:
			slog.Error("Failed to list occurrences", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
			response.RespondInternalServerError(w, "An unexpected error occurred")
		}
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}
