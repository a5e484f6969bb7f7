package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"health-diary/internal/core/auth"
	"health-diary/internal/domain"
	resp "health-diary/internal/transport/http/response"
)

const KeyPrincipal = "principal"

// AuthJWT 解析 Bearer token，把调用方写入上下文；角色限制交给 RequireRole
func AuthJWT(j *auth.JWTer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ah := c.GetHeader("Authorization")
		if !strings.HasPrefix(ah, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "missing token"))
			return
		}
		claims, err := j.Parse(strings.TrimPrefix(ah, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "invalid token"))
			return
		}
		c.Set(KeyPrincipal, claims.Principal())
		c.Next()
	}
}

// Principal 未登录时为 nil
func Principal(c *gin.Context) *domain.Principal {
	v, ok := c.Get(KeyPrincipal)
	if !ok {
		return nil
	}
	p, _ := v.(*domain.Principal)
	return p
}
