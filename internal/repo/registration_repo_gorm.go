package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"health-diary/internal/core/database"
	"health-diary/internal/domain"
	"health-diary/internal/feature/registration"
)

// RegistrationRepo 所有查询都带 calendar_id，跨日历的 id 一律视为不存在
type RegistrationRepo[T any, P registration.Ptr[T]] struct {
	db   *gorm.DB
	name string
}

func NewRegistrationRepo[T any, P registration.Ptr[T]](db *gorm.DB, name string) *RegistrationRepo[T, P] {
	return &RegistrationRepo[T, P]{db: db, name: name}
}

func (r *RegistrationRepo[T, P]) checkUnique(tx *gorm.DB, p P) error {
	cols := p.Unique()
	if cols == nil {
		return nil
	}
	q := tx.Model(new(T)).Where("calendar_id = ?", p.GetCalendarID())
	for col, v := range cols {
		q = q.Where(clause.Eq{Column: clause.Column{Name: col}, Value: v})
	}
	if p.GetID() != 0 {
		q = q.Where("id <> ?", p.GetID())
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return domain.Conflict("%s already registered for this calendar", r.name)
	}
	return nil
}

func (r *RegistrationRepo[T, P]) dup(err error) error {
	if database.IsDupKey(err) {
		return domain.ConflictFrom(err, r.name+" already registered for this calendar")
	}
	return err
}

func (r *RegistrationRepo[T, P]) Create(ctx context.Context, p P) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.checkUnique(tx, p); err != nil {
			return err
		}
		return r.dup(tx.Create(p).Error)
	})
}

func (r *RegistrationRepo[T, P]) Get(ctx context.Context, calendarID, id int64) (P, error) {
	m := P(new(T))
	err := r.db.WithContext(ctx).Where("calendar_id = ? AND id = ?", calendarID, id).First(m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *RegistrationRepo[T, P]) List(ctx context.Context, calendarID int64, offset, limit int) ([]T, int64, error) {
	q := r.db.WithContext(ctx).Model(new(T)).Where("calendar_id = ?", calendarID)
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []T
	if err := q.Session(&gorm.Session{}).Order("id").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Update 整行替换；行必须已存在于同一日历
func (r *RegistrationRepo[T, P]) Update(ctx context.Context, p P) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(new(T)).Where("calendar_id = ? AND id = ?", p.GetCalendarID(), p.GetID()).
			Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return domain.NotFound("%s %d not found", r.name, p.GetID())
		}
		if err := r.checkUnique(tx, p); err != nil {
			return err
		}
		return r.dup(tx.Save(p).Error)
	})
}

// Delete 返回被删的行，调用方据此清理外部数据
func (r *RegistrationRepo[T, P]) Delete(ctx context.Context, calendarID, id int64) (P, error) {
	old := P(new(T))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("calendar_id = ? AND id = ?", calendarID, id).First(old).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.NotFound("%s %d not found", r.name, id)
		}
		if err != nil {
			return err
		}
		return tx.Where("calendar_id = ? AND id = ?", calendarID, id).Delete(new(T)).Error
	})
	if err != nil {
		return nil, err
	}
	return old, nil
}

func (r *RegistrationRepo[T, P]) EachBatch(ctx context.Context, size int, fn func(batch []T) error) error {
	var rows []T
	return r.db.WithContext(ctx).FindInBatches(&rows, size, func(_ *gorm.DB, _ int) error {
		return fn(rows)
	}).Error
}

// UpdateColumns 只改指定列，不触碰唯一性检查
func (r *RegistrationRepo[T, P]) UpdateColumns(ctx context.Context, p P, cols map[string]any) error {
	return r.db.WithContext(ctx).Model(new(T)).
		Where("calendar_id = ? AND id = ?", p.GetCalendarID(), p.GetID()).Updates(cols).Error
}
