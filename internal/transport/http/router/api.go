package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"health-diary/internal/core/server"
	mdw "health-diary/internal/transport/http/middleware"
)

// base 两个 engine 共用的中间件链
func base(d Deps, name string) *gin.Engine {
	l := d.logger()
	r := server.NewRouter(l, server.Options{Name: name, AllowOrigins: d.CORSOrigins})
	r.Use(
		mdw.RequestID(),
		mdw.RateLimit(200, 400),
		mdw.ConcurrencyLimit(300),
		mdw.MaxBodyBytes(16<<20),
		mdw.Timeout(d.requestTimeout()),
		mdw.Recovery(l),
		mdw.Metrics(name),
		mdw.AccessLog(l),
	)

	// 健康检查
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func NewAPIEngine(d Deps) *gin.Engine {
	r := base(d, "api")

	// 前缀
	api := r.Group("/api/v1")

	var reg Registry
	reg.Register(usersModule{d}, calendarsModule{d}, registrationsModule{d})
	reg.MountAllAPI(api)
	return r
}
