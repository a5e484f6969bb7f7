package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"health-diary/internal/core/database"
	"health-diary/internal/domain"
	"health-diary/internal/feature/calendar"
	"health-diary/internal/feature/user"
)

type UserRepo struct{ db *gorm.DB }

func NewUserRepo(db *gorm.DB) *UserRepo { return &UserRepo{db: db} }

func (r *UserRepo) Create(ctx context.Context, u *user.UserModel) error {
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		if database.IsDupKey(err) {
			return domain.ConflictFrom(err, "email already registered")
		}
		return err
	}
	return nil
}

func (r *UserRepo) FindByID(ctx context.Context, id int64) (*user.UserModel, error) {
	var u user.UserModel
	err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) FindByEmailIndex(ctx context.Context, idx string) (*user.UserModel, error) {
	var u user.UserModel
	err := r.db.WithContext(ctx).First(&u, "email_index = ?", idx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) ExistsByEmailIndex(ctx context.Context, idx string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&user.UserModel{}).Where("email_index = ?", idx).Count(&n).Error
	return n > 0, err
}

func (r *UserRepo) List(ctx context.Context, offset, limit int) ([]user.UserModel, int64, error) {
	var users []user.UserModel
	tx := r.db.WithContext(ctx).Model(&user.UserModel{})
	var total int64
	if err := tx.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := tx.Session(&gorm.Session{}).Offset(offset).Limit(limit).Order("id").Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Update 只写 fields 里的列
func (r *UserRepo) Update(ctx context.Context, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&user.UserModel{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		if database.IsDupKey(res.Error) {
			return domain.ConflictFrom(res.Error, "email already registered")
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("user %d not found", id)
	}
	return nil
}

// Delete 级联：拥有的日历及其登记 / 共享，以及该用户在别人日历上的共享
func (r *UserRepo) Delete(ctx context.Context, id int64) (Purged, error) {
	var out Purged
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owned []int64
		if err := tx.Model(&calendar.CalendarModel{}).Where("owner_id = ?", id).Pluck("id", &owned).Error; err != nil {
			return err
		}
		p, err := purgeCalendars(tx, owned)
		if err != nil {
			return err
		}
		out = p
		if err := tx.Where("user_id = ?", id).Delete(&calendar.ShareModel{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&user.UserModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.NotFound("user %d not found", id)
		}
		return nil
	})
	return out, err
}

// Snapshot 用户不存在或已禁用返回 nil
func (r *UserRepo) Snapshot(ctx context.Context, id int64) (*domain.AccessSnapshot, error) {
	db := r.db.WithContext(ctx)
	var u user.UserModel
	err := db.Select("id", "roles", "enabled").First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !u.Enabled {
		return nil, nil
	}
	owned, shared, err := r.CalendarIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.AccessSnapshot{
		UserID:            id,
		Roles:             domain.ParseRoles(u.Roles),
		OwnedCalendarIDs:  owned,
		SharedCalendarIDs: shared,
	}, nil
}

// CalendarIDs 拥有的和被共享的日历，按 id 排序
func (r *UserRepo) CalendarIDs(ctx context.Context, id int64) (owned, shared []int64, err error) {
	db := r.db.WithContext(ctx)
	owned, shared = []int64{}, []int64{}
	if err = db.Model(&calendar.CalendarModel{}).Where("owner_id = ?", id).Order("id").
		Pluck("id", &owned).Error; err != nil {
		return nil, nil, err
	}
	if err = db.Model(&calendar.ShareModel{}).Where("user_id = ?", id).Order("calendar_id").
		Pluck("calendar_id", &shared).Error; err != nil {
		return nil, nil, err
	}
	return owned, shared, nil
}

// EachBatch 按主键分批遍历；fn 里的写入走 repo 方法，不复用批查询的语句
func (r *UserRepo) EachBatch(ctx context.Context, size int, fn func(batch []user.UserModel) error) error {
	var rows []user.UserModel
	return r.db.WithContext(ctx).FindInBatches(&rows, size, func(_ *gorm.DB, _ int) error {
		return fn(rows)
	}).Error
}
