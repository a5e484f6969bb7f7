package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"health-diary/internal/access"
	"health-diary/internal/core/crypto"
	"health-diary/internal/domain"
	"health-diary/internal/feature/calendar"
	"health-diary/internal/repo"
	"health-diary/pkg/utils"
)

type CalendarService struct {
	repo   *repo.CalendarRepo
	users  *repo.UserRepo
	crypto *crypto.Service
	engine *access.Engine
	deps
}

func NewCalendarService(r *repo.CalendarRepo, users *repo.UserRepo, c *crypto.Service, e *access.Engine, opts ...Option) *CalendarService {
	return &CalendarService{repo: r, users: users, crypto: c, engine: e, deps: newDeps(opts)}
}

// 名称盲索引按 owner 区分，同名日历在不同用户下互不冲突
func (s *CalendarService) nameIndex(ownerID int64, name string) string {
	return s.crypto.BlindIndex(strconv.FormatInt(ownerID, 10), name)
}

// CreateCalendar 配额和同名检查在事务里再做一次，唯一索引兜底
func (s *CalendarService) CreateCalendar(ctx context.Context, p *domain.Principal, name string) (int64, error) {
	if p == nil {
		return 0, domain.Unauthorized("authentication required")
	}
	if utils.Blank(name) {
		return 0, domain.Validation("calendarName is required")
	}
	if !s.engine.IsActive(ctx, p) {
		return 0, domain.Forbidden("account not found or disabled")
	}
	if s.engine.ExceedsCalendarQuota(ctx, p) {
		return 0, domain.Conflict("calendar quota reached")
	}
	ct, err := s.crypto.Encrypt(name)
	if err != nil {
		return 0, err
	}
	m := &calendar.CalendarModel{OwnerID: p.ID, Name: ct, NameIndex: s.nameIndex(p.ID, name)}
	if err := s.repo.Create(ctx, m, access.AtQuota); err != nil {
		return 0, err
	}
	s.invalidate(ctx, p.ID)
	s.log.Info("calendar created", zap.Int64("uid", p.ID), zap.Int64("calendar_id", m.ID))
	return m.ID, nil
}

func (s *CalendarService) decrypt(m *calendar.CalendarModel, shared []int64) (*domain.Calendar, error) {
	name, err := s.crypto.Decrypt(m.Name)
	if err != nil {
		s.log.Error("decrypt calendar name", zap.Int64("calendar_id", m.ID), zap.Error(err))
		return nil, fmt.Errorf("calendar %d name: %w", m.ID, err)
	}
	if shared == nil {
		shared = []int64{}
	}
	return &domain.Calendar{ID: m.ID, Name: name, OwnerID: m.OwnerID, SharedWith: shared}, nil
}

// GetByID 不存在返回 nil, nil
func (s *CalendarService) GetByID(ctx context.Context, id int64) (*domain.Calendar, error) {
	m, err := s.repo.FindByID(ctx, id)
	if err != nil || m == nil {
		return nil, err
	}
	shared, err := s.repo.SharedWith(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.decrypt(m, shared[id])
}

// ListByOwnerAndShared 拥有和共享的日历合成一页，按 id 排序
func (s *CalendarService) ListByOwnerAndShared(ctx context.Context, userID int64, offset, limit int) (domain.Page[domain.Calendar], error) {
	offset, limit = page(offset, limit)
	out := domain.Page[domain.Calendar]{Items: []domain.Calendar{}, Offset: offset, Limit: limit}
	rows, total, err := s.repo.ListForUser(ctx, userID, offset, limit)
	if err != nil {
		return out, err
	}
	ids := make([]int64, 0, len(rows))
	for _, m := range rows {
		ids = append(ids, m.ID)
	}
	shared, err := s.repo.SharedWith(ctx, ids...)
	if err != nil {
		return out, err
	}
	for i := range rows {
		c, err := s.decrypt(&rows[i], shared[rows[i].ID])
		if err != nil {
			return out, err
		}
		c.Owned = c.OwnerID == userID
		out.Items = append(out.Items, *c)
	}
	out.Total = total
	return out, nil
}

// DeleteCalendar 立即删除，级联登记、图片和共享
func (s *CalendarService) DeleteCalendar(ctx context.Context, id int64) error {
	m, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return domain.NotFound("calendar %d not found", id)
	}
	purged, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.purgeImages(ctx, id)
	s.invalidate(ctx, append([]int64{m.OwnerID}, purged.Grantees...)...)
	s.log.Info("calendar deleted", zap.Int64("calendar_id", id), zap.Int64("owner", m.OwnerID))
	return nil
}

func (s *CalendarService) shareTarget(ctx context.Context, calendarID, granteeID int64) error {
	m, err := s.repo.FindByID(ctx, calendarID)
	if err != nil {
		return err
	}
	if m == nil {
		return domain.NotFound("calendar %d not found", calendarID)
	}
	if m.OwnerID == granteeID {
		return domain.Validation("a calendar cannot be shared with its owner")
	}
	u, err := s.users.FindByID(ctx, granteeID)
	if err != nil {
		return err
	}
	if u == nil {
		return domain.NotFound("user %d not found", granteeID)
	}
	return nil
}

// GrantAccess 幂等
func (s *CalendarService) GrantAccess(ctx context.Context, calendarID, granteeID int64) error {
	if err := s.shareTarget(ctx, calendarID, granteeID); err != nil {
		return err
	}
	changed, err := s.repo.Grant(ctx, calendarID, granteeID)
	if err != nil {
		return err
	}
	if changed {
		s.invalidate(ctx, granteeID)
		s.log.Info("calendar shared", zap.Int64("calendar_id", calendarID), zap.Int64("grantee", granteeID))
	}
	return nil
}

// RevokeAccess 幂等
func (s *CalendarService) RevokeAccess(ctx context.Context, calendarID, granteeID int64) error {
	if err := s.shareTarget(ctx, calendarID, granteeID); err != nil {
		return err
	}
	changed, err := s.repo.Revoke(ctx, calendarID, granteeID)
	if err != nil {
		return err
	}
	if changed {
		s.invalidate(ctx, granteeID)
		s.log.Info("calendar unshared", zap.Int64("calendar_id", calendarID), zap.Int64("grantee", granteeID))
	}
	return nil
}

// ToggleShare 已共享则撤销，否则授予；返回操作后的状态
func (s *CalendarService) ToggleShare(ctx context.Context, calendarID, granteeID int64) (bool, error) {
	shared, err := s.repo.IsShared(ctx, calendarID, granteeID)
	if err != nil {
		return false, err
	}
	if shared {
		return false, s.RevokeAccess(ctx, calendarID, granteeID)
	}
	return true, s.GrantAccess(ctx, calendarID, granteeID)
}

func (s *CalendarService) RotateEncryption(ctx context.Context) (int, error) {
	n := 0
	err := s.repo.EachBatch(ctx, 100, func(batch []calendar.CalendarModel) error {
		for _, m := range batch {
			out, changed, err := s.crypto.Reencrypt(m.Name)
			if err != nil {
				s.log.Error("rotate calendar name", zap.Int64("calendar_id", m.ID), zap.Error(err))
				return fmt.Errorf("calendar %d name: %w", m.ID, err)
			}
			if !changed {
				continue
			}
			if err := s.repo.UpdateName(ctx, m.ID, out); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}
