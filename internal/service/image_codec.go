package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"health-diary/internal/core/blob"
	"health-diary/internal/core/crypto"
	"health-diary/internal/feature/registration"
)

func imagePrefix(calendarID int64) string { return fmt.Sprintf("images/%d/", calendarID) }

// ImageCodec 图片字节始终加密；配置了对象存储时密文存对象，行里只留 key
type ImageCodec struct {
	crypto *crypto.Service
	blobs  blob.Store
	log    *zap.Logger
}

func NewImageCodec(c *crypto.Service, blobs blob.Store, l *zap.Logger) *ImageCodec {
	if l == nil {
		l = zap.NewNop()
	}
	return &ImageCodec{crypto: c, blobs: blobs, log: l}
}

func (c *ImageCodec) Seal(ctx context.Context, img *registration.Image) error {
	ct, err := c.crypto.EncryptBytes(img.Data)
	if err != nil {
		return err
	}
	if c.blobs == nil {
		img.Data, img.ObjectKey = ct, ""
		return nil
	}
	key := imagePrefix(img.CalendarID) + uuid.NewString() + ".enc"
	if err := c.blobs.Put(ctx, key, ct); err != nil {
		return fmt.Errorf("store image: %w", err)
	}
	img.Data, img.ObjectKey = nil, key
	return nil
}

func (c *ImageCodec) sealed(ctx context.Context, img *registration.Image) ([]byte, error) {
	if img.ObjectKey == "" {
		return img.Data, nil
	}
	if c.blobs == nil {
		return nil, errors.New("image stored externally but no object store configured")
	}
	return c.blobs.Get(ctx, img.ObjectKey)
}

// Open 每次读取都解密；失败向上返回，不当作不存在
func (c *ImageCodec) Open(ctx context.Context, img *registration.Image) error {
	ct, err := c.sealed(ctx, img)
	if err != nil {
		c.log.Error("load image", zap.Int64("image_id", img.ID), zap.Error(err))
		return fmt.Errorf("image %d: %w", img.ID, err)
	}
	plain, err := c.crypto.DecryptBytes(ct)
	if err != nil {
		c.log.Error("decrypt image", zap.Int64("image_id", img.ID), zap.Error(err))
		return fmt.Errorf("image %d: %w", img.ID, err)
	}
	img.Data = plain
	return nil
}

func (c *ImageCodec) Discard(ctx context.Context, img *registration.Image) {
	if img == nil || img.ObjectKey == "" || c.blobs == nil {
		return
	}
	if err := c.blobs.Delete(ctx, img.ObjectKey); err != nil {
		c.log.Warn("delete image object", zap.String("key", img.ObjectKey), zap.Error(err))
	}
}

func (c *ImageCodec) Reseal(ctx context.Context, img *registration.Image) (bool, map[string]any, error) {
	ct, err := c.sealed(ctx, img)
	if err != nil {
		return false, nil, err
	}
	out, changed, err := c.crypto.ReencryptBytes(ct)
	if err != nil {
		c.log.Error("rotate image", zap.Int64("image_id", img.ID), zap.Error(err))
		return false, nil, fmt.Errorf("image %d: %w", img.ID, err)
	}
	if !changed {
		return false, nil, nil
	}
	if img.ObjectKey != "" {
		return true, nil, c.blobs.Put(ctx, img.ObjectKey, out)
	}
	return true, map[string]any{"data": out}, nil
}
