package router

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"health-diary/internal/domain"
	"health-diary/internal/transport/http/ez"
)

type adminModule struct{ Deps }

type adminListQ struct {
	ez.Page
	Email string `form:"email"` // 精确匹配（盲索引）
}

type rolesIn struct {
	Roles []domain.Role `json:"roles" binding:"required"`
}

type rotateOut struct {
	Users         int            `json:"users"`
	Calendars     int            `json:"calendars"`
	Registrations map[string]int `json:"registrations"`
}

// MountAdmin 分组已要求 ROLE_ADMIN
func (m adminModule) MountAdmin(admin *gin.RouterGroup) {
	e := ez.New(admin, m.logger())

	// --- GET /admin/v1/users  用户列表 / 按 email 精确查 ---
	ez.RegisterAction(e, ez.Action[adminListQ, domain.Page[domain.User]]{
		Method: http.MethodGet,
		Path:   "/users",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *adminListQ) (domain.Page[domain.User], error) {
			email := strings.TrimSpace(in.Email)
			if email == "" {
				return m.Users.List(c.Request.Context(), in.Offset, in.Limit)
			}
			out := domain.Page[domain.User]{Items: []domain.User{}}
			u, err := m.Users.FindByEmail(c.Request.Context(), email)
			if err != nil || u == nil {
				return out, err
			}
			out.Items, out.Total, out.Limit = append(out.Items, *u), 1, 1
			return out, nil
		},
	})

	// --- POST /admin/v1/users/:id/ban  封禁（禁用登录） ---
	ez.RegisterAction(e, ez.Action[struct{}, gin.H]{
		Method:  http.MethodPost,
		Path:    "/users/:id/ban",
		Binder:  ez.BindNone,
		Handler: m.setEnabled(false),
	})
	ez.RegisterAction(e, ez.Action[struct{}, gin.H]{
		Method:  http.MethodPost,
		Path:    "/users/:id/unban",
		Binder:  ez.BindNone,
		Handler: m.setEnabled(true),
	})

	ez.RegisterAction(e, ez.Action[rolesIn, gin.H]{
		Method: http.MethodPut,
		Path:   "/users/:id/roles",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *rolesIn) (gin.H, error) {
			id, err := ez.ParamID(c, "id")
			if err != nil {
				return nil, err
			}
			return gin.H{"id": id, "roles": in.Roles}, m.Users.SetRoles(c.Request.Context(), id, in.Roles)
		},
	})

	// --- POST /admin/v1/crypto/rotate  旧版本密文改写为当前版本 ---
	ez.RegisterAction(e, ez.Action[struct{}, rotateOut]{
		Method: http.MethodPost,
		Path:   "/crypto/rotate",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (rotateOut, error) {
			// 客户端断开或请求超时都不打断；已改写的行不回滚，重跑只处理剩余旧版本
			ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), m.rotateTimeout())
			defer cancel()
			var out rotateOut
			var err error
			if out.Users, err = m.Users.RotateEncryption(ctx); err != nil {
				return out, err
			}
			if out.Calendars, err = m.Calendars.RotateEncryption(ctx); err != nil {
				return out, err
			}
			out.Registrations, err = m.Regs.RotateEncryption(ctx)
			return out, err
		},
	})
}

func (m adminModule) setEnabled(enabled bool) func(c *gin.Context, _ *struct{}) (gin.H, error) {
	return func(c *gin.Context, _ *struct{}) (gin.H, error) {
		id, err := ez.ParamID(c, "id")
		if err != nil {
			return nil, err
		}
		if err := m.Users.SetEnabled(c.Request.Context(), id, enabled); err != nil {
			return nil, err
		}
		return gin.H{"id": id, "enabled": enabled}, nil
	}
}
