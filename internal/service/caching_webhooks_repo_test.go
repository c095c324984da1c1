package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/audioscribe/speakerhub/internal/datatypes"
	"github.com/audioscribe/speakerhub/internal/models"
	"github.com/audioscribe/speakerhub/pkg/cache"
)

// countingWebhooksRepo implements WebhooksRepository and counts calls to ListEnabledForEventType and GetByID.
type countingWebhooksRepo struct {
	listEnabledForEventTypeCalls int
	getByIDCalls                 int
	disableCalls                 int
	listResult                   []models.Webhook
	getByIDResult                *models.Webhook
	getByIDErr                   error
}

func (c *countingWebhooksRepo) Create(_ context.Context, _ *models.CreateWebhookRequest) (*models.Webhook, error) {
	return nil, errors.New("not implemented")
}

func (c *countingWebhooksRepo) GetByID(_ context.Context, _ uuid.UUID) (*models.Webhook, error) {
	c.getByIDCalls++
	if c.getByIDErr != nil {
		return nil, c.getByIDErr
	}

	return c.getByIDResult, nil
}

func (c *countingWebhooksRepo) List(_ context.Context, _ *models.ListWebhooksFilters) ([]models.Webhook, error) {
	return nil, errors.New("not implemented")
}

func (c *countingWebhooksRepo) Count(_ context.Context, _ *models.ListWebhooksFilters) (int64, error) {
	return 0, errors.New("not implemented")
}

func (c *countingWebhooksRepo) Update(_ context.Context, _ uuid.UUID, _ *models.UpdateWebhookRequest) (*models.Webhook, error) {
	return nil, errors.New("not implemented")
}

func (c *countingWebhooksRepo) Delete(_ context.Context, _ uuid.UUID) error {
	return errors.New("not implemented")
}

func (c *countingWebhooksRepo) Disable(_ context.Context, _ uuid.UUID) error {
	c.disableCalls++

	return nil
}

func (c *countingWebhooksRepo) ListEnabledForEventType(_ context.Context, _ datatypes.EventType) ([]models.Webhook, error) {
	c.listEnabledForEventTypeCalls++

	return c.listResult, nil
}

func newTestWebhookCaches(t *testing.T) (
	*cache.LoaderCache[datatypes.EventType, []models.Webhook],
	*cache.LoaderCache[uuid.UUID, *models.Webhook],
) {
	t.Helper()

	listCache, err := cache.NewLoaderCache[datatypes.EventType, []models.Webhook](
		4, func(et datatypes.EventType) string { return et.String() })
	if err != nil {
		t.Fatal(err)
	}

	getByIDCache, err := cache.NewLoaderCache[uuid.UUID, *models.Webhook](
		4, func(id uuid.UUID) string { return id.String() })
	if err != nil {
		t.Fatal(err)
	}

	return listCache, getByIDCache
}

func TestCachingWebhooksRepository_ListEnabledForEventType_cached(t *testing.T) {
	inner := &countingWebhooksRepo{listResult: []models.Webhook{}}
	listCache, getByIDCache := newTestWebhookCaches(t)

	repo := NewCachingWebhooksRepository(inner, listCache, getByIDCache, nil)
	ctx := context.Background()

	_, _ = repo.ListEnabledForEventType(ctx, datatypes.SpeakerVerified)
	_, _ = repo.ListEnabledForEventType(ctx, datatypes.SpeakerVerified)

	if inner.listEnabledForEventTypeCalls != 1 {
		t.Errorf("ListEnabledForEventType calls = %d, want 1 (second call cached)", inner.listEnabledForEventTypeCalls)
	}
}

func TestCachingWebhooksRepository_GetByID_cached(t *testing.T) {
	id := uuid.Must(uuid.NewV7())
	w := &models.Webhook{ID: id}
	inner := &countingWebhooksRepo{getByIDResult: w}
	listCache, getByIDCache := newTestWebhookCaches(t)

	repo := NewCachingWebhooksRepository(inner, listCache, getByIDCache, nil)
	ctx := context.Background()

	_, _ = repo.GetByID(ctx, id)
	_, _ = repo.GetByID(ctx, id)

	if inner.getByIDCalls != 1 {
		t.Errorf("GetByID calls = %d, want 1 (second call cached)", inner.getByIDCalls)
	}
}

func TestCachingWebhooksRepository_Disable_invalidates(t *testing.T) {
	id := uuid.Must(uuid.NewV7())
	inner := &countingWebhooksRepo{listResult: []models.Webhook{}, getByIDResult: &models.Webhook{ID: id}}
	listCache, getByIDCache := newTestWebhookCaches(t)

	repo := NewCachingWebhooksRepository(inner, listCache, getByIDCache, nil)
	ctx := context.Background()

	_, _ = repo.ListEnabledForEventType(ctx, datatypes.ProfilesMerged)
	_, _ = repo.GetByID(ctx, id)

	if err := repo.Disable(ctx, id); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}

	_, _ = repo.ListEnabledForEventType(ctx, datatypes.ProfilesMerged)
	_, _ = repo.GetByID(ctx, id)

	if inner.disableCalls != 1 {
		t.Errorf("Disable calls = %d, want 1", inner.disableCalls)
	}

	if inner.listEnabledForEventTypeCalls != 2 {
		t.Errorf("ListEnabledForEventType calls = %d, want 2 (cache invalidated)", inner.listEnabledForEventTypeCalls)
	}

	if inner.getByIDCalls != 2 {
		t.Errorf("GetByID calls = %d, want 2 (cache invalidated)", inner.getByIDCalls)
	}
}
