package calendar

import "time"

type CalendarModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	OwnerID   int64  `gorm:"not null;index:,unique,composite:owner_name"`
	Name      string `gorm:"type:text;not null"`
	NameIndex string `gorm:"size:64;not null;index:,unique,composite:owner_name"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (CalendarModel) TableName() string { return "calendars" }

// ShareModel 一行同时代表“日历共享给谁”和“用户可访问哪些日历”
type ShareModel struct {
	CalendarID int64     `gorm:"primaryKey;autoIncrement:false"`
	UserID     int64     `gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (ShareModel) TableName() string { return "calendar_shares" }

func Models() []any { return []any{&CalendarModel{}, &ShareModel{}} }
