package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/audioscribe/speakerhub/internal/api/response"
	"github.com/audioscribe/speakerhub/internal/api/validation"
	"github.com/audioscribe/speakerhub/internal/apperrors"
	"github.com/audioscribe/speakerhub/internal/models"
)

// MediaItemsService defines the interface for media registry business logic.
type MediaItemsService interface {
	GetMediaItem(ctx context.Context, id uuid.UUID) (*models.MediaItem, error)
	ListMediaItems(ctx context.Context, filters *models.ListMediaItemsFilters) (*models.ListMediaItemsResponse, error)
}

// SuggestionsService builds the review view for one media item.
type SuggestionsService interface {
	ListSuggestions(ctx context.Context, mediaItemID uuid.UUID) (*models.ListSuggestionsResponse, error)
}

// MediaItemsHandler handles HTTP requests for media items and their
// speaker suggestions.
type MediaItemsHandler struct {
	media       MediaItemsService
	suggestions SuggestionsService
}

// NewMediaItemsHandler creates a new media items handler.
func NewMediaItemsHandler(media MediaItemsService, suggestions SuggestionsService) *MediaItemsHandler {
	return &MediaItemsHandler{
		media:       media,
		suggestions: suggestions,
	}
}

// List handles GET /v1/media-items.
func (h *MediaItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListMediaItemsFilters{}

	if err := validation.ValidateAndDecodeQueryParams(r, filters); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	result, err := h.media.ListMediaItems(r.Context(), filters)
	if err != nil {
		slog.Error("Failed to list media items", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Get handles GET /v1/media-items/{id}.
func (h *MediaItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "Media item ID")
	if !ok {
		return
	}

	item, err := h.media.GetMediaItem(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			response.RespondNotFound(w, "Media item not found")
			return
		}
		slog.Error("Failed to get media item", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, item)
}

// ListSuggestions handles GET /v1/media-items/{id}/suggestions.
func (h *MediaItemsHandler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "Media item ID")
	if !ok {
		return
	}

	result, err := h.suggestions.ListSuggestions(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			response.RespondNotFound(w, "Media item not found")
			return
		}
		slog.Error("Failed to list suggestions", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// pathUUID extracts and parses the {id} path segment, responding with a 400
// when it is missing or malformed.
func pathUUID(w http.ResponseWriter, r *http.Request, label string) (uuid.UUID, bool) {
	idStr := r.PathValue("id")
	if idStr == "" {
		response.RespondBadRequest(w, label+" is required")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		response.RespondBadRequest(w, "Invalid UUID format")
		return uuid.Nil, false
	}

	return id, true
}
