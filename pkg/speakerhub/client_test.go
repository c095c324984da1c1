package speakerhub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func TestClient_ListProfiles(t *testing.T) {
	profileID := uuid.New()

	mockResponse := ListProfilesResponse{
		Data: []ProfileWithStats{
			{
				Profile: Profile{
					ID:           profileID,
					DisplayName:  strPtr("Dana Reyes"),
					Verification: VerificationVerified,
					Version:      3,
					CreatedAt:    time.Date(2026, 2, 11, 9, 30, 0, 0, time.UTC),
					UpdatedAt:    time.Date(2026, 2, 12, 14, 5, 0, 0, time.UTC),
				},
				Stats: ProfileStats{
					VoiceprintCount: 4,
					SegmentCount:    128,
					TalkTimeSeconds: 1932.5,
					MediaItemCount:  4,
				},
			},
		},
		Total:  1,
		Limit:  20,
		Offset: 0,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify the request
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/v1/profiles", r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		assert.Equal(t, "tenant-42", r.URL.Query().Get("tenant_id"))
		assert.Equal(t, "verified", r.URL.Query().Get("verification"))
		assert.Equal(t, "true", r.URL.Query().Get("named"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(mockResponse); err != nil {
			t.Errorf("Failed to encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-api-key")

	profiles, err := client.ListProfiles(context.Background(), &ListProfilesOptions{
		TenantID:     "tenant-42",
		Verification: VerificationVerified,
		Named:        boolPtr(true),
		Limit:        20,
	})

	require.NoError(t, err)
	require.NotNil(t, profiles)
	assert.Len(t, profiles.Data, 1)
	assert.Equal(t, int64(1), profiles.Total)

	profile := profiles.Data[0]
	assert.Equal(t, profileID, profile.ID)
	require.NotNil(t, profile.DisplayName)
	assert.Equal(t, "Dana Reyes", *profile.DisplayName)
	assert.Equal(t, VerificationVerified, profile.Verification)
	assert.Equal(t, int64(4), profile.Stats.VoiceprintCount)
	assert.InDelta(t, 1932.5, profile.Stats.TalkTimeSeconds, 0.001)
}

func TestClient_VerifySpeaker(t *testing.T) {
	speakerID := uuid.New()
	profileID := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/v1/speakers/"+speakerID.String()+"/verify", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req VerifySpeakerRequest

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, VerifyActionCreateProfile, req.Action)

		if assert.NotNil(t, req.DisplayName) {
			assert.Equal(t, "Priya Shah", *req.DisplayName)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(Profile{
			ID:           profileID,
			DisplayName:  strPtr("Priya Shah"),
			Verification: VerificationVerified,
			Version:      1,
		}); err != nil {
			t.Errorf("Failed to encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-api-key")

	profile, err := client.VerifySpeaker(context.Background(), speakerID, &VerifySpeakerRequest{
		Action:      VerifyActionCreateProfile,
		DisplayName: strPtr("Priya Shah"),
	})

	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, profileID, profile.ID)
	assert.Equal(t, VerificationVerified, profile.Verification)
}

func TestClient_IngestDiarizationResult(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("ingest-signing-secret-for-tests!"))
	mediaItemID := uuid.New()

	t.Run("signed when secret configured", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "POST", r.Method)
			assert.Equal(t, "/v1/diarization/results", r.URL.Path)
			assert.NotEmpty(t, r.Header.Get(standardwebhooks.HeaderWebhookID))
			assert.NotEmpty(t, r.Header.Get(standardwebhooks.HeaderWebhookTimestamp))
			assert.NotEmpty(t, r.Header.Get(standardwebhooks.HeaderWebhookSignature))

			body, err := io.ReadAll(r.Body)
			assert.NoError(t, err)

			// The signature must cover the exact bytes on the wire.
			verifier, err := standardwebhooks.NewWebhook(secret)
			assert.NoError(t, err)
			assert.NoError(t, verifier.Verify(body, r.Header))

			var req DiarizationResultRequest

			assert.NoError(t, json.Unmarshal(body, &req))
			assert.Equal(t, "rec_8842", req.MediaExternalRef)
			assert.Len(t, req.Speakers, 1)

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			if err := json.NewEncoder(w).Encode(DiarizationAcceptedResponse{
				MediaItemID: mediaItemID,
				Speakers:    1,
				Queued:      1,
			}); err != nil {
				t.Errorf("Failed to encode response: %v", err)
			}
		}))
		defer server.Close()

		client := NewClientWithOptions(ClientOptions{
			BaseURL:        server.URL,
			APIKey:         "test-api-key",
			DiarizerSecret: secret,
		})

		accepted, err := client.IngestDiarizationResult(context.Background(), &DiarizationResultRequest{
			MediaExternalRef: "rec_8842",
			Speakers: []DiarizationSpeaker{
				{Label: "SPEAKER_00", Embedding: []float32{0.1, 0.2, 0.3}},
			},
		})

		require.NoError(t, err)
		require.NotNil(t, accepted)
		assert.Equal(t, mediaItemID, accepted.MediaItemID)
		assert.Equal(t, 1, accepted.Queued)
	})

	t.Run("unsigned when no secret", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get(standardwebhooks.HeaderWebhookSignature))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			if err := json.NewEncoder(w).Encode(DiarizationAcceptedResponse{MediaItemID: mediaItemID}); err != nil {
				t.Errorf("Failed to encode response: %v", err)
			}
		}))
		defer server.Close()

		client := NewClient(server.URL, "test-api-key")

		accepted, err := client.IngestDiarizationResult(context.Background(), &DiarizationResultRequest{
			MediaExternalRef: "rec_8842",
		})

		require.NoError(t, err)
		assert.Equal(t, mediaItemID, accepted.MediaItemID)
	})
}

func TestClient_ListOccurrences(t *testing.T) {
	profileID := uuid.New()
	mediaItemID := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/v1/profiles/"+profileID.String()+"/occurrences", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "opaque-cursor", r.URL.Query().Get("cursor"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(ListOccurrencesResponse{
			Data: []CrossMediaOccurrence{
				{MediaItemID: mediaItemID, MediaTitle: "Town Hall 2026-02", PerFileLabel: "SPEAKER_01", Verified: true},
			},
			Total:      5,
			Limit:      2,
			NextCursor: strPtr("next-cursor"),
		}); err != nil {
			t.Errorf("Failed to encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-api-key")

	occurrences, err := client.ListOccurrences(context.Background(), profileID, &ListOccurrencesOptions{
		Limit:  2,
		Cursor: "opaque-cursor",
	})

	require.NoError(t, err)
	require.NotNil(t, occurrences)
	assert.Len(t, occurrences.Data, 1)
	assert.Equal(t, mediaItemID, occurrences.Data[0].MediaItemID)
	require.NotNil(t, occurrences.NextCursor)
	assert.Equal(t, "next-cursor", *occurrences.NextCursor)
}

func TestClient_CreateWebhook(t *testing.T) {
	webhookID := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/v1/webhooks", r.URL.Path)

		var req CreateWebhookRequest

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://example.com/hooks/speakers", req.URL)
		assert.Equal(t, []string{EventSpeakerSuggested, EventProfilesMerged}, req.EventTypes)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(Webhook{
			ID:         webhookID,
			URL:        "https://example.com/hooks/speakers",
			SigningKey: "whsec_c2lnbmluZy1rZXk=",
			Enabled:    true,
			EventTypes: []string{EventSpeakerSuggested, EventProfilesMerged},
		}); err != nil {
			t.Errorf("Failed to encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-api-key")

	webhook, err := client.CreateWebhook(context.Background(), &CreateWebhookRequest{
		URL:        "https://example.com/hooks/speakers",
		EventTypes: []string{EventSpeakerSuggested, EventProfilesMerged},
	})

	require.NoError(t, err)
	require.NotNil(t, webhook)
	assert.Equal(t, webhookID, webhook.ID)
	assert.NotEmpty(t, webhook.SigningKey)
}

func TestClient_DeleteProfile(t *testing.T) {
	profileID := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DELETE", r.Method)
		assert.Equal(t, "/v1/profiles/"+profileID.String(), r.URL.Path)

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-api-key")

	require.NoError(t, client.DeleteProfile(context.Background(), profileID))
}

func TestClient_ErrorHandling(t *testing.T) {
	t.Run("problem detail carries merged_into", func(t *testing.T) {
		winnerID := uuid.New()
		loserID := uuid.New()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusGone)
			if _, err := w.Write([]byte(`{"type":"about:blank","title":"Gone","status":410,"detail":"profile was merged","merged_into":"` + winnerID.String() + `"}`)); err != nil {
				t.Errorf("Failed to write error response: %v", err)
			}
		}))
		defer server.Close()

		client := NewClient(server.URL, "test-api-key")

		profile, err := client.GetProfile(context.Background(), loserID)

		assert.Nil(t, profile)
		require.Error(t, err)

		var apiErr *APIError

		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusGone, apiErr.Status)
		assert.Equal(t, "Gone", apiErr.Title)
		assert.Equal(t, winnerID.String(), apiErr.MergedInto)
		assert.Contains(t, err.Error(), "410")
	})

	t.Run("non-problem body becomes detail", func(t *testing.T) {
		// retryablehttp retries 5xx, so use a 4xx status here
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			if _, err := w.Write([]byte("not json at all")); err != nil {
				t.Errorf("Failed to write error response: %v", err)
			}
		}))
		defer server.Close()

		client := NewClient(server.URL, "test-api-key")

		_, err := client.ListMediaItems(context.Background(), nil)

		var apiErr *APIError

		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Equal(t, "Bad Request", apiErr.Title)
		assert.Equal(t, "not json at all", apiErr.Detail)
	})

	t.Run("invalid JSON response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte(`invalid json`)); err != nil {
				t.Errorf("Failed to write response: %v", err)
			}
		}))
		defer server.Close()

		client := NewClient(server.URL, "test-api-key")

		_, err := client.GetMediaItem(context.Background(), uuid.New())

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unmarshal")
	})
}

func TestNewClient(t *testing.T) {
	client := NewClient("https://speakerhub.example.com/", "test-api-key")
	assert.NotNil(t, client)
	assert.Equal(t, "https://speakerhub.example.com", client.baseURL)
	assert.Equal(t, "test-api-key", client.apiKey)
}

func TestNewClientWithOptions(t *testing.T) {
	t.Run("With all options", func(t *testing.T) {
		client := NewClientWithOptions(ClientOptions{
			BaseURL:  "https://speakerhub.example.com",
			APIKey:   "test-api-key",
			RetryMax: 5,
			Timeout:  60 * time.Second,
		})

		assert.NotNil(t, client)
		assert.Equal(t, "https://speakerhub.example.com", client.baseURL)
		assert.Equal(t, "test-api-key", client.apiKey)
		assert.Equal(t, 5, client.httpClient.RetryMax)
		assert.Equal(t, 60*time.Second, client.httpClient.HTTPClient.Timeout)
	})

	t.Run("With defaults", func(t *testing.T) {
		client := NewClientWithOptions(ClientOptions{
			BaseURL: "https://speakerhub.example.com",
			APIKey:  "test-api-key",
		})

		assert.NotNil(t, client)
		assert.Equal(t, 3, client.httpClient.RetryMax)
		assert.Equal(t, 30*time.Second, client.httpClient.HTTPClient.Timeout)
	})
}
