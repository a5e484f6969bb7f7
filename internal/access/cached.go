package access

import (
	"context"
	"time"

	"health-diary/internal/core/cache"
	"health-diary/internal/domain"
)

// CachedLookup 用 redis 缓存访问快照；写路径改变拥有 / 共享关系后必须 Invalidate
type CachedLookup struct {
	next      Lookup
	snapshots *cache.Typed[domain.AccessSnapshot]
}

// NewCachedLookup c 为 nil 时直接透传
func NewCachedLookup(next Lookup, c *cache.Cache, ttl time.Duration) *CachedLookup {
	l := &CachedLookup{next: next}
	if c != nil {
		l.snapshots = cache.NewTyped[domain.AccessSnapshot](c, "access:", ttl)
	}
	return l
}

func (l *CachedLookup) AccessSnapshot(ctx context.Context, userID int64) (*domain.AccessSnapshot, error) {
	if l.snapshots == nil {
		return l.next.AccessSnapshot(ctx, userID)
	}
	return l.snapshots.Get(ctx, userID, func(ctx context.Context) (*domain.AccessSnapshot, error) {
		return l.next.AccessSnapshot(ctx, userID)
	})
}

func (l *CachedLookup) Invalidate(ctx context.Context, userIDs ...int64) error {
	if l.snapshots == nil || len(userIDs) == 0 {
		return nil
	}
	return l.snapshots.Forget(ctx, userIDs...)
}
