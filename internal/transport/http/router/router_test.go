package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-diary/internal/access"
	"health-diary/internal/core/auth"
	"health-diary/internal/core/blob"
	"health-diary/internal/core/crypto"
	"health-diary/internal/core/database"
	"health-diary/internal/domain"
	"health-diary/internal/feature"
	"health-diary/internal/repo"
	"health-diary/internal/service"
)

type env struct {
	api   *gin.Engine
	admin *gin.Engine
	deps  Deps
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := database.NewMemory()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(feature.Models()...))

	c := crypto.NewEphemeral()
	mem := blob.NewMemory()
	userRepo := repo.NewUserRepo(db)
	users := service.NewUserService(userRepo, c, service.WithBlobStore(mem))
	engine := access.New(users, nil)
	d := Deps{
		JWT:       &auth.JWTer{Secret: []byte("test-secret"), Issuer: "test", TTL: time.Hour},
		Engine:    engine,
		Users:     users,
		Calendars: service.NewCalendarService(repo.NewCalendarRepo(db), userRepo, c, engine, service.WithBlobStore(mem)),
		Regs:      service.NewRegistrations(db, c, service.WithBlobStore(mem)),
	}
	return &env{api: NewAPIEngine(d), admin: NewAdminEngine(d), deps: d}
}

func call(t *testing.T, h http.Handler, method, path, token string, body any) envelope {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return serve(t, h, req)
}

func serve(t *testing.T, h http.Handler, req *http.Request) envelope {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func decode[T any](t *testing.T, e envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(e.Data, &v), string(e.Data))
	return v
}

type idOut struct {
	ID int64 `json:"id"`
}

func signup(email string, roles ...string) map[string]any {
	body := map[string]any{
		"email": email, "firstName": "Kari", "lastName": "Nordmann",
		"password": "Passw0rdOK", "pin": "1234",
	}
	if len(roles) > 0 {
		body["roles"] = roles
	}
	return body
}

// register + login，返回 id 和 token
func (e *env) user(t *testing.T, email string, roles ...string) (int64, string) {
	t.Helper()
	res := call(t, e.api, http.MethodPost, "/api/v1/users", "", signup(email, roles...))
	require.Equal(t, 0, res.Code, res.Msg)
	id := decode[idOut](t, res).ID
	return id, e.login(t, email)
}

func (e *env) login(t *testing.T, email string) string {
	t.Helper()
	res := call(t, e.api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": "Passw0rdOK"})
	require.Equal(t, 0, res.Code, res.Msg)
	return decode[loginOut](t, res).Token
}

func (e *env) calendar(t *testing.T, token, name string) int64 {
	t.Helper()
	res := call(t, e.api, http.MethodPost, "/api/v1/calendars", token, map[string]string{"calendarName": name})
	require.Equal(t, 0, res.Code, res.Msg)
	return decode[idOut](t, res).ID
}

func food(typ string) map[string]any {
	return map[string]any{"type": typ, "level": "LOW", "note": "", "timestamp": "2024-03-04T12:00:00Z"}
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)
	w := httptest.NewRecorder()
	e.api.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	e.api.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "health_diary_http_requests_total")
}

func TestRegisterAndLogin(t *testing.T) {
	e := newEnv(t)
	id, token := e.user(t, "kari@moo.no", "ROLE_FAMILY")

	res := call(t, e.api, http.MethodPost, "/api/v1/users", "", signup("kari@moo.no"))
	assert.Equal(t, 409, res.Code, "duplicate email")

	withID := signup("id@moo.no")
	withID["id"] = 5
	assert.Equal(t, 400, call(t, e.api, http.MethodPost, "/api/v1/users", "", withID).Code)

	withCalendars := signup("cal@moo.no")
	withCalendars["calendars"] = []int{1}
	assert.Equal(t, 400, call(t, e.api, http.MethodPost, "/api/v1/users", "", withCalendars).Code)

	assert.Equal(t, 400, call(t, e.api, http.MethodPost, "/api/v1/users", "", signup("adm@moo.no", "ROLE_ADMIN")).Code)
	weak := signup("weak@moo.no")
	weak["password"] = "short"
	assert.Equal(t, 400, call(t, e.api, http.MethodPost, "/api/v1/users", "", weak).Code)

	res = call(t, e.api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "kari@moo.no", "password": "WrongPass1"})
	assert.Equal(t, 401, res.Code)
	res = call(t, e.api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "nobody@moo.no", "password": "Passw0rdOK"})
	assert.Equal(t, 401, res.Code)

	res = call(t, e.api, http.MethodGet, "/api/v1/me", token, nil)
	require.Equal(t, 0, res.Code, res.Msg)
	me := decode[domain.User](t, res)
	assert.Equal(t, id, me.ID)
	assert.Equal(t, "kari@moo.no", me.Email)
	assert.True(t, me.Roles.Has(domain.RoleFamily))

	assert.Equal(t, 401, call(t, e.api, http.MethodGet, "/api/v1/me", "", nil).Code)
	assert.Equal(t, 401, call(t, e.api, http.MethodGet, "/api/v1/me", "garbage", nil).Code)
}

func TestUserEndpoints_SelfOnly(t *testing.T) {
	e := newEnv(t)
	a, ta := e.user(t, "a@moo.no")
	b, _ := e.user(t, "b@moo.no")

	assert.Equal(t, 403, call(t, e.api, http.MethodGet, fmt.Sprintf("/api/v1/users/%d", b), ta, nil).Code)
	assert.Equal(t, 403, call(t, e.api, http.MethodDelete, fmt.Sprintf("/api/v1/users/%d", b), ta, nil).Code)
	assert.Equal(t, 400, call(t, e.api, http.MethodGet, "/api/v1/users/abc", ta, nil).Code)

	self := fmt.Sprintf("/api/v1/users/%d", a)
	res := call(t, e.api, http.MethodPut, self, ta, map[string]any{"firstName": "Ola"})
	require.Equal(t, 0, res.Code, res.Msg)
	res = call(t, e.api, http.MethodGet, self, ta, nil)
	assert.Equal(t, "Ola", decode[domain.User](t, res).FirstName)

	assert.Equal(t, 400, call(t, e.api, http.MethodPut, self, ta, map[string]any{"id": b, "firstName": "X"}).Code)
	assert.Equal(t, 400, call(t, e.api, http.MethodPut, self, ta, map[string]any{"accessibleCalendars": []int{1}}).Code)

	res = call(t, e.api, http.MethodPost, self+"/pin/verify", ta, map[string]string{"pin": "1234"})
	require.Equal(t, 0, res.Code, res.Msg)
	assert.True(t, decode[map[string]bool](t, res)["valid"])
	res = call(t, e.api, http.MethodPost, self+"/pin/verify", ta, map[string]string{"pin": "0000"})
	assert.False(t, decode[map[string]bool](t, res)["valid"])

	res = call(t, e.api, http.MethodPut, self+"/credentials", ta, map[string]string{"pin": "4321"})
	require.Equal(t, 0, res.Code, res.Msg)
	res = call(t, e.api, http.MethodPost, self+"/pin/verify", ta, map[string]string{"pin": "4321"})
	assert.True(t, decode[map[string]bool](t, res)["valid"])

	// 普通用户不能列出所有用户
	assert.Equal(t, 403, call(t, e.api, http.MethodGet, "/api/v1/users", ta, nil).Code)

	require.Equal(t, 0, call(t, e.api, http.MethodDelete, self, ta, nil).Code)
	assert.Equal(t, 404, call(t, e.api, http.MethodGet, self, ta, nil).Code)
}

func TestCalendarSharingGatesRegistrations(t *testing.T) {
	e := newEnv(t)
	_, ta := e.user(t, "a@moo.no")
	b, tb := e.user(t, "b@moo.no")
	cal := e.calendar(t, ta, "allergies")
	foods := fmt.Sprintf("/api/v1/calendars/%d/foods", cal)

	res := call(t, e.api, http.MethodPost, foods, ta, food("peanut"))
	require.Equal(t, 0, res.Code, res.Msg)

	assert.Equal(t, 403, call(t, e.api, http.MethodGet, foods, tb, nil).Code)
	assert.Equal(t, 403, call(t, e.api, http.MethodGet, fmt.Sprintf("/api/v1/calendars/%d", cal), tb, nil).Code)
	assert.Equal(t, 403, call(t, e.api, http.MethodGet, "/api/v1/calendars/99999/foods", ta, nil).Code)

	share := fmt.Sprintf("/api/v1/calendars/%d/shares/%d", cal, b)
	assert.Equal(t, 403, call(t, e.api, http.MethodPut, share, tb, nil).Code, "only the owner shares")
	require.Equal(t, 0, call(t, e.api, http.MethodPut, share, ta, nil).Code)

	res = call(t, e.api, http.MethodGet, foods, tb, nil)
	require.Equal(t, 0, res.Code, res.Msg)
	page := decode[domain.Page[map[string]any]](t, res)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, "peanut", page.Items[0]["type"])

	res = call(t, e.api, http.MethodGet, "/api/v1/calendars", tb, nil)
	cals := decode[domain.Page[domain.Calendar]](t, res)
	require.Len(t, cals.Items, 1)
	assert.Equal(t, "allergies", cals.Items[0].Name)
	assert.False(t, cals.Items[0].Owned)

	assert.Equal(t, 403, call(t, e.api, http.MethodDelete, fmt.Sprintf("/api/v1/calendars/%d", cal), tb, nil).Code)

	// 切换：已共享 -> 撤销
	res = call(t, e.api, http.MethodPost, fmt.Sprintf("/api/v1/calendars/%d?shareWith=%d", cal, b), ta, nil)
	require.Equal(t, 0, res.Code, res.Msg)
	assert.Equal(t, false, decode[map[string]any](t, res)["shared"])
	assert.Equal(t, 403, call(t, e.api, http.MethodGet, foods, tb, nil).Code)

	require.Equal(t, 0, call(t, e.api, http.MethodDelete, fmt.Sprintf("/api/v1/calendars/%d", cal), ta, nil).Code)
	assert.Equal(t, 403, call(t, e.api, http.MethodGet, foods, ta, nil).Code)
}

func TestCalendarCreateRules(t *testing.T) {
	e := newEnv(t)
	a, ta := e.user(t, "a@moo.no")
	e.calendar(t, ta, "first")

	assert.Equal(t, 409, call(t, e.api, http.MethodPost, "/api/v1/calendars", ta, map[string]string{"calendarName": "second"}).Code, "basic quota is one")
	assert.Equal(t, 400, call(t, e.api, http.MethodPost, "/api/v1/calendars", ta, map[string]any{"calendarName": "x", "parent_id": a + 1}).Code)
	assert.Equal(t, 401, call(t, e.api, http.MethodPost, "/api/v1/calendars", "", map[string]string{"calendarName": "x"}).Code)

	_, tf := e.user(t, "f@moo.no", "ROLE_FAMILY")
	e.calendar(t, tf, "one")
	assert.Equal(t, 409, call(t, e.api, http.MethodPost, "/api/v1/calendars", tf, map[string]string{"calendarName": "one"}).Code, "same name")
	assert.Equal(t, 400, call(t, e.api, http.MethodPost, "/api/v1/calendars", tf, map[string]string{"calendarName": " "}).Code)
}

func TestRegistrationErrors(t *testing.T) {
	e := newEnv(t)
	_, ta := e.user(t, "a@moo.no")
	cal := e.calendar(t, ta, "c")
	base := fmt.Sprintf("/api/v1/calendars/%d", cal)

	require.Equal(t, 0, call(t, e.api, http.MethodPost, base+"/pollens", ta, food("birch")).Code)
	assert.Equal(t, 409, call(t, e.api, http.MethodPost, base+"/pollens", ta, food("birch")).Code)

	withID := food("grass")
	withID["id"] = 3
	assert.Equal(t, 400, call(t, e.api, http.MethodPost, base+"/pollens", ta, withID).Code)

	bad := food("grass")
	bad["level"] = "EXTREME"
	assert.Equal(t, 400, call(t, e.api, http.MethodPost, base+"/pollens", ta, bad).Code)

	assert.Equal(t, 404, call(t, e.api, http.MethodGet, base+"/pollens/999", ta, nil).Code)
	assert.Equal(t, 404, call(t, e.api, http.MethodDelete, base+"/pollens/999", ta, nil).Code)
	assert.Equal(t, 400, call(t, e.api, http.MethodGet, base+"/pollens/x", ta, nil).Code)
	assert.Equal(t, 400, call(t, e.api, http.MethodGet, "/api/v1/calendars/x/pollens", ta, nil).Code)

	req := httptest.NewRequest(http.MethodPost, base+"/pollens", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+ta)
	assert.Equal(t, 400, serve(t, e.api, req).Code)

	m := map[string]any{"weightGrams": 0, "weightKilos": 12, "heightCm": 90, "timestamp": "2024-03-04T12:00:00Z"}
	res := call(t, e.api, http.MethodPost, base+"/measurements", ta, m)
	require.Equal(t, 0, res.Code, res.Msg)
	assert.Equal(t, 409, call(t, e.api, http.MethodPost, base+"/measurements", ta, m).Code)

	id := decode[idOut](t, res).ID
	m["heightCm"] = 95
	require.Equal(t, 0, call(t, e.api, http.MethodPut, fmt.Sprintf("%s/measurements/%d", base, id), ta, m).Code)
	res = call(t, e.api, http.MethodGet, fmt.Sprintf("%s/measurements/%d", base, id), ta, nil)
	assert.Equal(t, float64(95), decode[map[string]any](t, res)["heightCm"])
}

func TestImages_JSONAndUpload(t *testing.T) {
	e := newEnv(t)
	_, ta := e.user(t, "a@moo.no")
	cal := e.calendar(t, ta, "c")
	base := fmt.Sprintf("/api/v1/calendars/%d/images", cal)

	res := call(t, e.api, http.MethodPost, base, ta, map[string]any{
		"fileName": "rash.png", "fileType": "png", "data": []byte("pixels"), "timestamp": "2024-03-04T12:00:00Z",
	})
	require.Equal(t, 0, res.Code, res.Msg)
	id := decode[idOut](t, res).ID

	type image struct {
		FileName string `json:"fileName"`
		Data     []byte `json:"data"`
	}
	res = call(t, e.api, http.MethodGet, fmt.Sprintf("%s/%d", base, id), ta, nil)
	require.Equal(t, 0, res.Code, res.Msg)
	assert.Equal(t, []byte("pixels"), decode[image](t, res).Data)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "knee.JPG")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("jpeg bytes"))
	require.NoError(t, mw.WriteField("timestamp", "2024-03-05T08:00:00Z"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, base+"/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+ta)
	res = serve(t, e.api, req)
	require.Equal(t, 0, res.Code, res.Msg)

	res = call(t, e.api, http.MethodGet, base, ta, nil)
	page := decode[domain.Page[image]](t, res)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "knee.JPG", page.Items[1].FileName)
	assert.Equal(t, []byte("jpeg bytes"), page.Items[1].Data, "list decrypts too")
}

func TestAdminEndpoints(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.deps.Users.CreateUser(ctx, domain.NewUser{
		Email: "root@moo.no", FirstName: "Root", LastName: "Admin",
		Password: "Passw0rdOK", Pin: "0000", Roles: domain.Roles{domain.RoleAdmin},
	})
	require.NoError(t, err)
	root := e.login(t, "root@moo.no")
	uid, tu := e.user(t, "user@moo.no")

	assert.Equal(t, 403, call(t, e.admin, http.MethodGet, "/admin/v1/users", tu, nil).Code)
	assert.Equal(t, 401, call(t, e.admin, http.MethodGet, "/admin/v1/users", "", nil).Code)

	res := call(t, e.admin, http.MethodGet, "/admin/v1/users", root, nil)
	require.Equal(t, 0, res.Code, res.Msg)
	assert.Equal(t, int64(2), decode[domain.Page[domain.User]](t, res).Total)

	res = call(t, e.admin, http.MethodGet, "/admin/v1/users?email=user@moo.no", root, nil)
	found := decode[domain.Page[domain.User]](t, res)
	require.Len(t, found.Items, 1)
	assert.Equal(t, uid, found.Items[0].ID)
	res = call(t, e.admin, http.MethodGet, "/admin/v1/users?email=USER@moo.no", root, nil)
	assert.Empty(t, decode[domain.Page[domain.User]](t, res).Items, "email match is exact")

	// 用户端的显式放行
	assert.Equal(t, 0, call(t, e.api, http.MethodGet, "/api/v1/users", root, nil).Code)

	require.Equal(t, 0, call(t, e.admin, http.MethodPost, fmt.Sprintf("/admin/v1/users/%d/ban", uid), root, nil).Code)
	res = call(t, e.api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "user@moo.no", "password": "Passw0rdOK"})
	assert.Equal(t, 401, res.Code)
	require.Equal(t, 0, call(t, e.admin, http.MethodPost, fmt.Sprintf("/admin/v1/users/%d/unban", uid), root, nil).Code)
	e.login(t, "user@moo.no")

	assert.Equal(t, 404, call(t, e.admin, http.MethodPost, "/admin/v1/users/9999/ban", root, nil).Code)

	roles := fmt.Sprintf("/admin/v1/users/%d/roles", uid)
	assert.Equal(t, 400, call(t, e.admin, http.MethodPut, roles, root, map[string]any{"roles": []string{"ROLE_GOD"}}).Code)
	require.Equal(t, 0, call(t, e.admin, http.MethodPut, roles, root, map[string]any{"roles": []string{"ROLE_FAMILY"}}).Code)
	tf := e.login(t, "user@moo.no")
	e.calendar(t, tf, "one")
	e.calendar(t, tf, "two")

	res = call(t, e.admin, http.MethodPost, "/admin/v1/crypto/rotate", root, nil)
	require.Equal(t, 0, res.Code, res.Msg)
	out := decode[rotateOut](t, res)
	assert.Zero(t, out.Users)
	assert.Zero(t, out.Calendars)
	assert.Contains(t, out.Registrations, "image")
}

func TestRotate_OutlivesRequestTimeout(t *testing.T) {
	e := newEnv(t)
	_, err := e.deps.Users.CreateUser(context.Background(), domain.NewUser{
		Email: "root@moo.no", FirstName: "Root", LastName: "Admin",
		Password: "Passw0rdOK", Pin: "0000", Roles: domain.Roles{domain.RoleAdmin},
	})
	require.NoError(t, err)
	root := e.login(t, "root@moo.no")

	d := e.deps
	d.RequestTimeout = time.Nanosecond
	admin := NewAdminEngine(d)

	res := call(t, admin, http.MethodPost, "/admin/v1/crypto/rotate", root, nil)
	require.Equal(t, 0, res.Code, res.Msg)
	out := decode[rotateOut](t, res)
	assert.Zero(t, out.Users)
	assert.Contains(t, out.Registrations, "image")
}
