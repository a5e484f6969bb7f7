package service

import (
	"context"

	"go.uber.org/zap"

	"health-diary/internal/core/blob"
)

// Invalidator 拥有 / 共享关系变化后丢弃访问快照缓存
type Invalidator interface {
	Invalidate(ctx context.Context, userIDs ...int64) error
}

type deps struct {
	inv   Invalidator
	blobs blob.Store
	log   *zap.Logger
}

type Option func(*deps)

func WithInvalidator(inv Invalidator) Option { return func(d *deps) { d.inv = inv } }

func WithBlobStore(s blob.Store) Option { return func(d *deps) { d.blobs = s } }

func WithLogger(l *zap.Logger) Option { return func(d *deps) { d.log = l } }

func newDeps(opts []Option) deps {
	d := deps{log: zap.NewNop()}
	for _, o := range opts {
		o(&d)
	}
	return d
}

func (d deps) invalidate(ctx context.Context, ids ...int64) {
	if d.inv == nil || len(ids) == 0 {
		return
	}
	if err := d.inv.Invalidate(ctx, ids...); err != nil {
		d.log.Warn("access cache invalidate failed", zap.Int64s("uids", ids), zap.Error(err))
	}
}

// purgeImages 删除日历在对象存储下的全部图片
func (d deps) purgeImages(ctx context.Context, calendarIDs ...int64) {
	if d.blobs == nil {
		return
	}
	for _, id := range calendarIDs {
		if err := d.blobs.DeletePrefix(ctx, imagePrefix(id)); err != nil {
			d.log.Error("purge image objects failed", zap.Int64("calendar_id", id), zap.Error(err))
		}
	}
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

func page(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return offset, limit
}
