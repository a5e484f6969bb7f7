// Package feature 汇总所有落库模型，迁移时使用。
package feature

import (
	"health-diary/internal/feature/calendar"
	"health-diary/internal/feature/registration"
	"health-diary/internal/feature/user"
)

func Models() []any {
	out := []any{&user.UserModel{}}
	out = append(out, calendar.Models()...)
	return append(out, registration.Models()...)
}
