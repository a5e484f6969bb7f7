package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Options struct {
	Name         string
	AllowOrigins []string // 为空则放开所有来源
}

// NewRouter 最外层 panic 兜底 + CORS；访问日志由 transport 层的 AccessLog 负责（要脱敏）
func NewRouter(l *zap.Logger, o Options) *gin.Engine {
	r := gin.New()
	r.Use(ginzap.RecoveryWithZap(l.With(zap.String("server", o.Name)), true))
	if len(o.AllowOrigins) == 0 {
		r.Use(cors.Default())
	} else {
		cfg := cors.DefaultConfig()
		cfg.AllowOrigins = o.AllowOrigins
		cfg.AddAllowHeaders("Authorization", "X-Request-ID")
		r.Use(cors.New(cfg))
	}
	return r
}

func StartHTTP(srv *http.Server, l *zap.Logger) error {
	l.Info("http starting", zap.String("addr", srv.Addr))
	return srv.ListenAndServe()
}

func BuildServer(addr string, handler http.Handler, rt, wt, it time.Duration) *http.Server {
	return &http.Server{
		Addr:           addr,
		Handler:        handler,
		ReadTimeout:    rt,
		WriteTimeout:   wt,
		IdleTimeout:    it,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
}

func Addr(host string, port int) string { return fmt.Sprintf("%s:%d", host, port) }
