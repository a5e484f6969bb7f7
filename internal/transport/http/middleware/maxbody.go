package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	resp "health-diary/internal/transport/http/response"
)

// MaxBodyBytes 限制请求体大小；图片走 base64，上限要留够
func MaxBodyBytes(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
		if c.Err() != nil && !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeBadRequest, "request body too large"))
		}
	}
}
