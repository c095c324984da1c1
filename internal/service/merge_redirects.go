package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// mergeRedirectCacheSize bounds the redirect cache; entries also expire by TTL.
const mergeRedirectCacheSize = 4096

// maxRedirectHops caps chain walking in Resolve. Chains stay short because a
// merge target must exist when recorded, but a cap keeps Resolve bounded.
const maxRedirectHops = 8

// MergeRedirects remembers, for a bounded time window, which target absorbed
// each merged-away profile. Writers that race a merge and hit a vanished
// profile resolve the id here and retry against the surviving target.
type MergeRedirects struct {
	cache *expirable.LRU[uuid.UUID, uuid.UUID]
}

// NewMergeRedirects creates a redirect cache whose entries expire after ttl.
func NewMergeRedirects(ttl time.Duration) *MergeRedirects {
	return &MergeRedirects{
		cache: expirable.NewLRU[uuid.UUID, uuid.UUID](mergeRedirectCacheSize, nil, ttl),
	}
}

// Record notes that source was absorbed into target.
func (m *MergeRedirects) Record(source, target uuid.UUID) {
	m.cache.Add(source, target)
}

// Resolve returns the surviving profile for a merged-away id, following
// redirect chains when the target was itself merged later. Returns false when
// the id has no live redirect.
func (m *MergeRedirects) Resolve(id uuid.UUID) (uuid.UUID, bool) {
	target, ok := m.cache.Get(id)
	if !ok {
		return uuid.Nil, false
	}

	for hop := 0; hop < maxRedirectHops; hop++ {
		next, ok := m.cache.Get(target)
		if !ok {
			break
		}

		target = next
	}

	return target, true
}
