package ez

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"health-diary/internal/core/crypto"
	"health-diary/internal/domain"
	mdw "health-diary/internal/transport/http/middleware"
	resp "health-diary/internal/transport/http/response"
)

func TestCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.Validation("bad"), resp.CodeBadRequest},
		{domain.Unauthorized("who"), resp.CodeUnauthorized},
		{domain.Forbidden("no"), resp.CodeForbidden},
		{domain.NotFound("gone"), resp.CodeNotFound},
		{domain.Conflict("dup"), resp.CodeConflict},
		{fmt.Errorf("wrapped: %w", domain.NotFound("x")), resp.CodeNotFound},
		{crypto.ErrDecryption, resp.CodeServerError},
		{errors.New("boom"), resp.CodeServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Code(tc.err), tc.err.Error())
	}
}

type echoIn struct {
	Name string `json:"name" binding:"required"`
}

func newTestEZ(t *testing.T) (*gin.Engine, EZ, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.ErrorLevel)
	r := gin.New()
	return r, New(&r.RouterGroup, zap.New(core)), logs
}

func get(t *testing.T, r http.Handler, method, path, body string) resp.Resp {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var out resp.Resp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestFail_HidesInternalErrors(t *testing.T) {
	r, e, logs := newTestEZ(t)
	e.GET("/internal", func(*gin.Context) (any, error) { return nil, errors.New("dsn=secret") })
	e.GET("/decrypt", func(*gin.Context) (any, error) {
		return nil, fmt.Errorf("user 1 email: %w", crypto.ErrDecryption)
	})
	e.GET("/missing", func(*gin.Context) (any, error) { return nil, domain.NotFound("user %d not found", 9) })

	res := get(t, r, http.MethodGet, "/internal", "")
	assert.Equal(t, resp.CodeServerError, res.Code)
	assert.NotContains(t, res.Msg, "secret")

	res = get(t, r, http.MethodGet, "/decrypt", "")
	assert.Equal(t, resp.CodeServerError, res.Code)
	assert.Equal(t, "stored data could not be decrypted", res.Msg)

	res = get(t, r, http.MethodGet, "/missing", "")
	assert.Equal(t, resp.CodeNotFound, res.Code)
	assert.Equal(t, "user 9 not found", res.Msg)

	assert.Equal(t, 2, logs.FilterMessage("request failed").Len(), "only server errors are logged")
}

func TestRegisterAction(t *testing.T) {
	r, _, _ := newTestEZ(t)
	r.Use(func(c *gin.Context) {
		if c.GetHeader("X-User") != "" {
			c.Set(mdw.KeyPrincipal, &domain.Principal{ID: 1, Roles: domain.Roles{domain.Role(c.GetHeader("X-User"))}})
		}
		c.Next()
	})
	e := New(&r.RouterGroup, zap.NewNop())
	echo := Action[echoIn, gin.H]{
		Method: http.MethodPost,
		Path:   "/echo",
		Binder: BindJSON,
		Roles:  []domain.Role{domain.RoleAdmin},
		Handler: func(_ *gin.Context, in *echoIn) (gin.H, error) {
			return gin.H{"name": in.Name}, nil
		},
	}
	RegisterAction(e, echo)

	assert.Equal(t, resp.CodeUnauthorized, get(t, r, http.MethodPost, "/echo", `{"name":"a"}`).Code)

	do := func(role, body string) resp.Resp {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User", role)
		r.ServeHTTP(w, req)
		var out resp.Resp
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		return out
	}
	assert.Equal(t, resp.CodeForbidden, do(string(domain.RoleBasic), `{"name":"a"}`).Code)
	assert.Equal(t, resp.CodeBadRequest, do(string(domain.RoleAdmin), `{}`).Code)
	res := do(string(domain.RoleAdmin), `{"name":"a"}`)
	require.Equal(t, resp.CodeOK, res.Code)
	assert.Equal(t, "a", res.Data.(map[string]any)["name"])
}

func TestParamID(t *testing.T) {
	r, e, _ := newTestEZ(t)
	e.GET("/x/:id", func(c *gin.Context) (any, error) {
		id, err := ParamID(c, "id")
		return gin.H{"id": id}, err
	})
	assert.Equal(t, resp.CodeOK, get(t, r, http.MethodGet, "/x/12", "").Code)
	assert.Equal(t, resp.CodeBadRequest, get(t, r, http.MethodGet, "/x/0", "").Code)
	assert.Equal(t, resp.CodeBadRequest, get(t, r, http.MethodGet, "/x/abc", "").Code)
}
