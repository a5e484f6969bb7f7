package router

import (
	"github.com/gin-gonic/gin"

	"health-diary/internal/domain"
	mdw "health-diary/internal/transport/http/middleware"
)

func NewAdminEngine(d Deps) *gin.Engine {
	r := base(d, "admin")

	// 管理端 v1（统一要求 admin 角色）
	admin := r.Group("/admin/v1")
	admin.Use(mdw.AuthJWT(d.JWT), mdw.RequireRole(d.logger(), domain.RoleAdmin))

	var reg Registry
	reg.Register(adminModule{d})
	reg.MountAllAdmin(admin)
	return r
}
