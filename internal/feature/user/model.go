package user

import (
	"time"
)

// UserModel 落库形态；email / 姓名只存密文，email_index 是 HMAC 盲索引
type UserModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Email        string `gorm:"type:text;not null"`
	EmailIndex   string `gorm:"uniqueIndex;size:64;not null"`
	FirstName    string `gorm:"type:text;not null"`
	LastName     string `gorm:"type:text;not null"`
	PasswordHash string `gorm:"size:100;not null"`
	PinHash      string `gorm:"size:100;not null"`
	Roles        string `gorm:"size:128;not null"`
	// 不用 default:true，否则 gorm 会把 false 当零值跳过
	Enabled bool `gorm:"not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string { return "users" }
