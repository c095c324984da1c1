package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"

	"github.com/audioscribe/speakerhub/internal/datatypes"
	"github.com/audioscribe/speakerhub/internal/models"
)

type mockSenderRepo struct {
	disableCalled bool
	disableErr    error
}

func (m *mockSenderRepo) Disable(_ context.Context, _ uuid.UUID) error {
	m.disableCalled = true

	return m.disableErr
}

func (m *mockSenderRepo) Create(_ context.Context, _ *models.CreateWebhookRequest) (*models.Webhook, error) {
	return nil, nil
}

func (m *mockSenderRepo) GetByID(_ context.Context, _ uuid.UUID) (*models.Webhook, error) {
	return nil, nil
}

func (m *mockSenderRepo) List(_ context.Context, _ *models.ListWebhooksFilters) ([]models.Webhook, error) {
	return nil, nil
}

func (m *mockSenderRepo) Count(_ context.Context, _ *models.ListWebhooksFilters) (int64, error) {
	return 0, nil
}

func (m *mockSenderRepo) Update(_ context.Context, _ uuid.UUID, _ *models.UpdateWebhookRequest) (*models.Webhook, error) {
	return nil, nil
}

func (m *mockSenderRepo) Delete(_ context.Context, _ uuid.UUID) error {
	return nil
}

func (m *mockSenderRepo) ListEnabledForEventType(_ context.Context, _ datatypes.EventType) ([]models.Webhook, error) {
	return nil, nil
}

func TestWebhookSenderImpl_Send(t *testing.T) {
	ctx := context.Background()
	webhookID := uuid.Must(uuid.NewV7())
	signingKey := "whsec_" + "abcdefghijklmnopqrstuvwxyz123456" // 32 bytes base64-ish for standardwebhooks
	webhook := &models.Webhook{
		ID:         webhookID,
		URL:        "",
		SigningKey: signingKey,
		Enabled:    true,
	}

	t.Run("returns nil on 200", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", r.Method)
			}

			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
			}

			if r.Header.Get(standardwebhooks.HeaderWebhookID) == "" {
				t.Error("webhook-id header missing")
			}

			if r.Header.Get(standardwebhooks.HeaderWebhookSignature) == "" {
				t.Error("webhook-signature header missing")
			}

			if r.Header.Get(standardwebhooks.HeaderWebhookTimestamp) == "" {
				t.Error("webhook-timestamp header missing")
			}

			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		webhook.URL = server.URL

		repo := &mockSenderRepo{}
		sender := NewWebhookSenderImpl(repo, nil)
		payload := &WebhookPayload{
			ID:        uuid.Must(uuid.NewV7()),
			Type:      "speaker.auto_attached",
			Timestamp: time.Now(),
			Data:      map[string]string{"id": "123"},
		}

		err := sender.Send(ctx, webhook, payload)
		if err != nil {
			t.Errorf("Send() error = %v", err)
		}

		if repo.disableCalled {
			t.Error("Disable should not be called on 200")
		}
	})

	t.Run("disables webhook and returns error on 410", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusGone)
		}))
		defer server.Close()

		webhook.URL = server.URL

		repo := &mockSenderRepo{}
		sender := NewWebhookSenderImpl(repo, nil)
		payload := &WebhookPayload{ID: uuid.Must(uuid.NewV7()), Type: "test", Timestamp: time.Now(), Data: nil}

		err := sender.Send(ctx, webhook, payload)
		if err == nil {
			t.Error("Send() error = nil, want error on 410")
		}

		if !repo.disableCalled {
			t.Error("Disable should be called on 410")
		}
	})

	t.Run("returns error on non-2xx", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		webhook.URL = server.URL

		repo := &mockSenderRepo{}
		sender := NewWebhookSenderImpl(repo, nil)
		payload := &WebhookPayload{ID: uuid.Must(uuid.NewV7()), Type: "test", Timestamp: time.Now(), Data: nil}

		err := sender.Send(ctx, webhook, payload)
		if err == nil {
			t.Error("Send() error = nil, want error on 500")
		}

		if repo.disableCalled {
			t.Error("Disable should not be called on 500")
		}
	})

	t.Run("does not follow redirects", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Location", "https://elsewhere.example.com")
			w.WriteHeader(http.StatusMovedPermanently)
		}))
		defer server.Close()

		webhook.URL = server.URL

		repo := &mockSenderRepo{}
		sender := NewWebhookSenderImpl(repo, nil)
		payload := &WebhookPayload{ID: uuid.Must(uuid.NewV7()), Type: "test", Timestamp: time.Now(), Data: nil}

		err := sender.Send(ctx, webhook, payload)
		if err == nil {
			t.Error("Send() error = nil, want error on 301")
		}
	})
}
