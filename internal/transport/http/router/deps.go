package router

import (
	"time"

	"go.uber.org/zap"

	"health-diary/internal/access"
	"health-diary/internal/core/auth"
	"health-diary/internal/service"
)

// Deps 两个 engine 共用的依赖
type Deps struct {
	Log       *zap.Logger
	JWT       *auth.JWTer
	Engine    *access.Engine
	Users     *service.UserService
	Calendars *service.CalendarService
	Regs      *service.Registrations
	// CORSOrigins 为空时允许所有来源
	CORSOrigins []string
	// RequestTimeout 默认 10s
	RequestTimeout time.Duration
	// RotateTimeout 密文轮换不受请求超时约束，默认 30min
	RotateTimeout time.Duration
}

func (d Deps) requestTimeout() time.Duration {
	if d.RequestTimeout <= 0 {
		return 10 * time.Second
	}
	return d.RequestTimeout
}

func (d Deps) rotateTimeout() time.Duration {
	if d.RotateTimeout <= 0 {
		return 30 * time.Minute
	}
	return d.RotateTimeout
}

func (d Deps) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}
