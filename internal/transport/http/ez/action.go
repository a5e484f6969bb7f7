// Package ez gin 之上的一行注册封装：统一信封、统一错误映射。
package ez

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"health-diary/internal/core/crypto"
	"health-diary/internal/domain"
	mdw "health-diary/internal/transport/http/middleware"
	resp "health-diary/internal/transport/http/response"
)

type EZ struct {
	g   *gin.RouterGroup
	log *zap.Logger
}

func New(g *gin.RouterGroup, l *zap.Logger) EZ {
	if l == nil {
		l = zap.NewNop()
	}
	return EZ{g: g, log: l}
}

// Group 子分组，沿用同一个 logger
func (e EZ) Group(path string, mw ...gin.HandlerFunc) EZ {
	return EZ{g: e.g.Group(path, mw...), log: e.log}
}

func (e EZ) GET(path string, h func(c *gin.Context) (any, error)) {
	e.g.GET(path, func(c *gin.Context) {
		data, err := h(c)
		if err != nil {
			e.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, resp.OK(data))
	})
}

// POSTFILE 处理 multipart/form-data 单文件上传
func POSTFILE(e EZ, path string, fieldName string, h func(c *gin.Context, file *multipart.FileHeader) (any, error)) {
	e.g.POST(path, func(c *gin.Context) {
		file, err := c.FormFile(fieldName)
		if err != nil {
			c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, "no file uploaded in field "+fieldName))
			return
		}
		data, err := h(c, file)
		if err != nil {
			e.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, resp.OK(data))
	})
}

// 绑定方式
type Binder string

const (
	BindJSON  Binder = "json"  // 从 JSON 绑定
	BindQuery Binder = "query" // 从 URL ?a=b 绑定
	BindNone  Binder = "none"  // 不绑定，自己从 c.Param / c.PostForm 取
)

// 动作定义：I 入参，O 出参
type Action[I any, O any] struct {
	Method  string        // "GET" | "POST" | "PUT" | "DELETE"
	Path    string        // 例："/auth/login"、"/users/:id/ban"
	Binder  Binder        // 绑定方式
	Auth    bool          // 是否要求登录（上下文里有 Principal）
	Roles   []domain.Role // 限定角色，满足其一即可
	Handler func(c *gin.Context, in *I) (O, error)
}

// RegisterAction 在当前 EZ 下注册动作接口
func RegisterAction[I any, O any](e EZ, a Action[I, O]) {
	h := func(c *gin.Context) {
		if a.Auth || len(a.Roles) > 0 {
			p := mdw.Principal(c)
			if p == nil {
				c.JSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "unauthorized"))
				return
			}
			if len(a.Roles) > 0 && !hasAny(p.Roles, a.Roles) {
				c.JSON(http.StatusOK, resp.Error(resp.CodeForbidden, "forbidden"))
				return
			}
		}

		var in I
		var bindErr error
		switch a.Binder {
		case BindJSON:
			bindErr = c.ShouldBindJSON(&in)
		case BindQuery:
			bindErr = c.ShouldBindQuery(&in)
		default:
		}
		if bindErr != nil {
			c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, bindErr.Error()))
			return
		}

		out, err := a.Handler(c, &in)
		if err != nil {
			e.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, resp.OK(out))
	}

	switch strings.ToUpper(a.Method) {
	case http.MethodGet:
		e.g.GET(a.Path, h)
	case http.MethodPut:
		e.g.PUT(a.Path, h)
	case http.MethodDelete:
		e.g.DELETE(a.Path, h)
	default: // 默认 POST
		e.g.POST(a.Path, h)
	}
}

func hasAny(have domain.Roles, want []domain.Role) bool {
	for _, r := range want {
		if have.Has(r) {
			return true
		}
	}
	return false
}

// Code 领域错误 -> 信封 code
func Code(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return resp.CodeBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return resp.CodeUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return resp.CodeForbidden
	case errors.Is(err, domain.ErrNotFound):
		return resp.CodeNotFound
	case errors.Is(err, domain.ErrConflict):
		return resp.CodeConflict
	}
	return resp.CodeServerError
}

// Fail 统一错误输出；500 只记日志不回显细节
func (e EZ) Fail(c *gin.Context, err error) {
	code := Code(err)
	msg := err.Error()
	if code == resp.CodeServerError {
		e.log.Error("request failed",
			zap.String("rid", c.GetString(mdw.KeyRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		msg = ""
		if errors.Is(err, crypto.ErrDecryption) {
			msg = "stored data could not be decrypted"
		}
	}
	c.JSON(http.StatusOK, resp.Error(code, msg))
}

// ParamID 路径上的正整数 id
func ParamID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validation("invalid %s", name)
	}
	return id, nil
}

// Page 列表通用查询参数
type Page struct {
	Offset int `form:"offset"`
	Limit  int `form:"limit"`
}
