package service

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/audioscribe/speakerhub/internal/apperrors"
)

type occurrenceCursorPayload struct {
	T time.Time `json:"t"` // created_at of last row
	I string    `json:"i"` // file_speaker_id of last row (UUID string)
}

// EncodeOccurrenceCursor returns an opaque cursor for the next occurrences
// page. occurredAt is the created_at of the last result row; id is that row's
// file_speaker_id.
func EncodeOccurrenceCursor(occurredAt time.Time, id uuid.UUID) string {
	b, err := json.Marshal(occurrenceCursorPayload{T: occurredAt, I: id.String()})
	if err != nil {
		return ""
	}

	return base64.URLEncoding.EncodeToString(b)
}

// DecodeOccurrenceCursor parses an opaque cursor and returns (occurredAt,
// fileSpeakerID). Returns apperrors.ErrInvalidCursor if the cursor is malformed.
func DecodeOccurrenceCursor(cursor string) (occurredAt time.Time, fileSpeakerID uuid.UUID, err error) {
	if cursor == "" {
		return time.Time{}, uuid.Nil, apperrors.ErrInvalidCursor
	}

	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, uuid.Nil, apperrors.ErrInvalidCursor
	}

	var p occurrenceCursorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return time.Time{}, uuid.Nil, apperrors.ErrInvalidCursor
	}

	id, err := uuid.Parse(p.I)
	if err != nil {
		return time.Time{}, uuid.Nil, apperrors.ErrInvalidCursor
	}

	if p.T.IsZero() {
		return time.Time{}, uuid.Nil, apperrors.ErrInvalidCursor
	}

	return p.T, id, nil
}
