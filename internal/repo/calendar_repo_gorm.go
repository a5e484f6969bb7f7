package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"health-diary/internal/core/database"
	"health-diary/internal/domain"
	"health-diary/internal/feature/calendar"
	"health-diary/internal/feature/registration"
	"health-diary/internal/feature/user"
)

// Purged 级联删除的结果，用于清理对象存储和访问缓存
type Purged struct {
	CalendarIDs []int64
	Grantees    []int64
}

func purgeCalendars(tx *gorm.DB, ids []int64) (Purged, error) {
	out := Purged{CalendarIDs: ids}
	if len(ids) == 0 {
		return out, nil
	}
	if err := tx.Model(&calendar.ShareModel{}).Where("calendar_id IN ?", ids).
		Distinct().Pluck("user_id", &out.Grantees).Error; err != nil {
		return out, err
	}
	for _, m := range registration.Models() {
		if err := tx.Where("calendar_id IN ?", ids).Delete(m).Error; err != nil {
			return out, err
		}
	}
	if err := tx.Where("calendar_id IN ?", ids).Delete(&calendar.ShareModel{}).Error; err != nil {
		return out, err
	}
	if err := tx.Where("id IN ?", ids).Delete(&calendar.CalendarModel{}).Error; err != nil {
		return out, err
	}
	return out, nil
}

type CalendarRepo struct{ db *gorm.DB }

func NewCalendarRepo(db *gorm.DB) *CalendarRepo { return &CalendarRepo{db: db} }

// Create 先锁住 owner 行，同一用户的并发建日历串行化；
// 计数、同名检查和插入在同一事务，atQuota 拿到的是库里的当前角色
func (r *CalendarRepo) Create(ctx context.Context, m *calendar.CalendarModel, atQuota func(roles domain.Roles, owned int) bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner user.UserModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "roles", "enabled").First(&owner, "id = ?", m.OwnerID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Forbidden("account not found or disabled")
		}
		if err != nil {
			return err
		}
		if !owner.Enabled {
			return domain.Forbidden("account not found or disabled")
		}
		var owned int64
		if err := tx.Model(&calendar.CalendarModel{}).Where("owner_id = ?", m.OwnerID).Count(&owned).Error; err != nil {
			return err
		}
		if atQuota(domain.ParseRoles(owner.Roles), int(owned)) {
			return domain.Conflict("calendar quota reached")
		}
		var same int64
		if err := tx.Model(&calendar.CalendarModel{}).
			Where("owner_id = ? AND name_index = ?", m.OwnerID, m.NameIndex).Count(&same).Error; err != nil {
			return err
		}
		if same > 0 {
			return domain.Conflict("calendar name already in use")
		}
		if err := tx.Create(m).Error; err != nil {
			if database.IsDupKey(err) {
				return domain.ConflictFrom(err, "calendar name already in use")
			}
			return err
		}
		return nil
	})
}

func (r *CalendarRepo) FindByID(ctx context.Context, id int64) (*calendar.CalendarModel, error) {
	var m calendar.CalendarModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListForUser 拥有的 + 共享给该用户的，按 id 排序
func (r *CalendarRepo) ListForUser(ctx context.Context, userID int64, offset, limit int) ([]calendar.CalendarModel, int64, error) {
	shared := r.db.Model(&calendar.ShareModel{}).Select("calendar_id").Where("user_id = ?", userID)
	q := r.db.WithContext(ctx).Model(&calendar.CalendarModel{}).
		Where("owner_id = ?", userID).Or("id IN (?)", shared)

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []calendar.CalendarModel
	if err := q.Session(&gorm.Session{}).Order("id").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// SharedWith calendar id -> 被共享的用户 id
func (r *CalendarRepo) SharedWith(ctx context.Context, calendarIDs ...int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64, len(calendarIDs))
	if len(calendarIDs) == 0 {
		return out, nil
	}
	var rows []calendar.ShareModel
	if err := r.db.WithContext(ctx).Where("calendar_id IN ?", calendarIDs).
		Order("calendar_id, user_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, s := range rows {
		out[s.CalendarID] = append(out[s.CalendarID], s.UserID)
	}
	return out, nil
}

func (r *CalendarRepo) Delete(ctx context.Context, id int64) (Purged, error) {
	var out Purged
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&calendar.CalendarModel{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return domain.NotFound("calendar %d not found", id)
		}
		p, err := purgeCalendars(tx, []int64{id})
		out = p
		return err
	})
	return out, err
}

// Grant 幂等；changed=false 表示原本就已共享
func (r *CalendarRepo) Grant(ctx context.Context, calendarID, userID int64) (changed bool, err error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&calendar.ShareModel{CalendarID: calendarID, UserID: userID})
	return res.RowsAffected > 0, res.Error
}

func (r *CalendarRepo) Revoke(ctx context.Context, calendarID, userID int64) (changed bool, err error) {
	res := r.db.WithContext(ctx).
		Where("calendar_id = ? AND user_id = ?", calendarID, userID).Delete(&calendar.ShareModel{})
	return res.RowsAffected > 0, res.Error
}

func (r *CalendarRepo) IsShared(ctx context.Context, calendarID, userID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&calendar.ShareModel{}).
		Where("calendar_id = ? AND user_id = ?", calendarID, userID).Count(&n).Error
	return n > 0, err
}

func (r *CalendarRepo) UpdateName(ctx context.Context, id int64, name string) error {
	return r.db.WithContext(ctx).Model(&calendar.CalendarModel{}).Where("id = ?", id).
		Update("name", name).Error
}

func (r *CalendarRepo) EachBatch(ctx context.Context, size int, fn func(batch []calendar.CalendarModel) error) error {
	var rows []calendar.CalendarModel
	return r.db.WithContext(ctx).FindInBatches(&rows, size, func(_ *gorm.DB, _ int) error {
		return fn(rows)
	}).Error
}
