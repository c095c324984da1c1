package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/audioscribe/speakerhub/internal/datatypes"
	"github.com/audioscribe/speakerhub/internal/models"
	"github.com/audioscribe/speakerhub/internal/observability"
	"github.com/audioscribe/speakerhub/pkg/cache"
)

const (
	cacheNameWebhookList    = "webhook_list"
	cacheNameWebhookGetByID = "webhook_get_by_id"
)

// cachingWebhooksRepo wraps a WebhooksRepository with caches for ListEnabledForEventType and GetByID.
type cachingWebhooksRepo struct {
	inner        WebhooksRepository
	listCache    *cache.LoaderCache[datatypes.EventType, []models.Webhook]
	getByIDCache *cache.LoaderCache[uuid.UUID, *models.Webhook]
	metrics      observability.CacheMetrics
}

// NewCachingWebhooksRepository returns a WebhooksRepository that caches ListEnabledForEventType and GetByID.
// listCache is invalidated on Create, Update, Disable, Delete. getByIDCache is invalidated per ID on
// Update, Disable, Delete. metrics may be nil (no cache metrics recorded).
func NewCachingWebhooksRepository(
	inner WebhooksRepository,
	listCache *cache.LoaderCache[datatypes.EventType, []models.Webhook],
	getByIDCache *cache.LoaderCache[uuid.UUID, *models.Webhook],
	metrics observability.CacheMetrics,
) WebhooksRepository {
	return &cachingWebhooksRepo{
		inner:        inner,
		listCache:    listCache,
		getByIDCache: getByIDCache,
		metrics:      metrics,
	}
}

func (r *cachingWebhooksRepo) Create(ctx context.Context, req *models.CreateWebhookRequest) (*models.Webhook, error) {
	w, err := r.inner.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create webhook: %w", err)
	}

	r.listCache.InvalidateAll()

	return w, nil
}

func (r *cachingWebhooksRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Webhook, error) {
	w, hit, err := r.getByIDCache.GetWithStats(ctx, id, r.inner.GetByID)
	if err != nil {
		return nil, fmt.Errorf("get webhook by id: %w", err)
	}

	if r.metrics != nil {
		r.metrics.RecordLookup(ctx, cacheNameWebhookGetByID, hit)
	}

	return w, nil
}

func (r *cachingWebhooksRepo) List(ctx context.Context, filters *models.ListWebhooksFilters) ([]models.Webhook, error) {
	webhooks, err := r.inner.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}

	return webhooks, nil
}

func (r *cachingWebhooksRepo) Count(ctx context.Context, filters *models.ListWebhooksFilters) (int64, error) {
	n, err := r.inner.Count(ctx, filters)
	if err != nil {
		return 0, fmt.Errorf("count webhooks: %w", err)
	}

	return n, nil
}

func (r *cachingWebhooksRepo) Update(ctx context.Context, id uuid.UUID, req *models.UpdateWebhookRequest) (*models.Webhook, error) {
	w, err := r.inner.Update(ctx, id, req)
	if err != nil {
		return nil, fmt.Errorf("update webhook: %w", err)
	}

	r.listCache.InvalidateAll()
	r.getByIDCache.Invalidate(id)

	return w, nil
}

func (r *cachingWebhooksRepo) Disable(ctx context.Context, id uuid.UUID) error {
	if err := r.inner.Disable(ctx, id); err != nil {
		return fmt.Errorf("disable webhook: %w", err)
	}

	r.listCache.InvalidateAll()
	r.getByIDCache.Invalidate(id)

	return nil
}

func (r *cachingWebhooksRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	r.listCache.InvalidateAll()
	r.getByIDCache.Invalidate(id)

	return nil
}

func (r *cachingWebhooksRepo) ListEnabledForEventType(ctx context.Context, eventType datatypes.EventType) ([]models.Webhook, error) {
	webhooks, hit, err := r.listCache.GetWithStats(ctx, eventType, r.inner.ListEnabledForEventType)
	if err != nil {
		return nil, fmt.Errorf("list enabled for event type: %w", err)
	}

	if r.metrics != nil {
		r.metrics.RecordLookup(ctx, cacheNameWebhookList, hit)
	}

	return webhooks, nil
}
