package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"health-diary/internal/domain"
	"health-diary/internal/transport/http/ez"
	mdw "health-diary/internal/transport/http/middleware"
)

type usersModule struct{ Deps }

func (usersModule) Priority() int { return 10 }

// 请求体：id 与日历列表只能由服务端维护，出现即拒绝
type registerIn struct {
	ID                  *int64        `json:"id"`
	Email               string        `json:"email"`
	FirstName           string        `json:"firstName"`
	LastName            string        `json:"lastName"`
	Password            string        `json:"password"`
	Pin                 string        `json:"pin"`
	Roles               []domain.Role `json:"roles"`
	Calendars           *[]int64      `json:"calendars"`
	AccessibleCalendars *[]int64      `json:"accessibleCalendars"`
}

type profileIn struct {
	ID                  *int64   `json:"id"`
	Email               *string  `json:"email"`
	FirstName           *string  `json:"firstName"`
	LastName            *string  `json:"lastName"`
	Calendars           *[]int64 `json:"calendars"`
	AccessibleCalendars *[]int64 `json:"accessibleCalendars"`
}

type credentialsIn struct {
	Password *string `json:"password"`
	Pin      *string `json:"pin"`
}

type pinIn struct {
	Pin string `json:"pin" binding:"required"`
}

type loginIn struct {
	Email    string `json:"email"    binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginOut struct {
	Token string            `json:"token"`
	User  *domain.Principal `json:"user"`
}

func calendarsSupplied(own, accessible *[]int64) bool { return own != nil || accessible != nil }

func (m usersModule) MountAPI(api *gin.RouterGroup) {
	pub := ez.New(api, m.logger())

	ez.RegisterAction(pub, ez.Action[registerIn, gin.H]{
		Method:  http.MethodPost,
		Path:    "/users",
		Binder:  ez.BindJSON,
		Handler: m.register,
	})

	// 登录口单独按 IP 限速
	login := pub.Group("/auth", mdw.RateLimitPerIP(5, 10))
	ez.RegisterAction(login, ez.Action[loginIn, loginOut]{
		Method:  http.MethodPost,
		Path:    "/login",
		Binder:  ez.BindJSON,
		Handler: m.login,
	})

	authed := pub.Group("", mdw.AuthJWT(m.JWT))
	authed.GET("/me", func(c *gin.Context) (any, error) {
		return m.findUser(c, mdw.Principal(c).ID)
	})

	// 管理员唯一的显式放行：列出用户
	ez.RegisterAction(authed, ez.Action[ez.Page, domain.Page[domain.User]]{
		Method:  http.MethodGet,
		Path:    "/users",
		Binder:  ez.BindQuery,
		Roles:   []domain.Role{domain.RoleAdmin},
		Handler: m.list,
	})

	self := authed.Group("/users/:user_id", mdw.SelfOnly(m.Engine, m.logger(), "user_id"))
	self.GET("", func(c *gin.Context) (any, error) {
		id, err := ez.ParamID(c, "user_id")
		if err != nil {
			return nil, err
		}
		return m.findUser(c, id)
	})
	ez.RegisterAction(self, ez.Action[profileIn, gin.H]{
		Method:  http.MethodPut,
		Path:    "",
		Binder:  ez.BindJSON,
		Auth:    true,
		Handler: m.updateProfile,
	})
	ez.RegisterAction(self, ez.Action[struct{}, gin.H]{
		Method: http.MethodDelete,
		Path:   "",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			id, err := ez.ParamID(c, "user_id")
			if err != nil {
				return nil, err
			}
			return gin.H{"id": id}, m.Users.DeleteUser(c.Request.Context(), id)
		},
	})
	ez.RegisterAction(self, ez.Action[credentialsIn, gin.H]{
		Method: http.MethodPut,
		Path:   "/credentials",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *credentialsIn) (gin.H, error) {
			id, err := ez.ParamID(c, "user_id")
			if err != nil {
				return nil, err
			}
			ch := domain.CredentialChange{Password: in.Password, Pin: in.Pin}
			return gin.H{"id": id}, m.Users.ChangeCredentials(c.Request.Context(), id, ch)
		},
	})
	ez.RegisterAction(self, ez.Action[pinIn, gin.H]{
		Method: http.MethodPost,
		Path:   "/pin/verify",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *pinIn) (gin.H, error) {
			id, err := ez.ParamID(c, "user_id")
			if err != nil {
				return nil, err
			}
			ok, err := m.Users.VerifyPin(c.Request.Context(), id, in.Pin)
			return gin.H{"valid": ok}, err
		},
	})
}

func (m usersModule) register(c *gin.Context, in *registerIn) (gin.H, error) {
	if in.ID != nil {
		return nil, domain.Validation("id must not be supplied")
	}
	if calendarsSupplied(in.Calendars, in.AccessibleCalendars) {
		return nil, domain.Validation("calendars are managed by the server")
	}
	id, err := m.Users.Register(c.Request.Context(), domain.NewUser{
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Password:  in.Password,
		Pin:       in.Pin,
		Roles:     in.Roles,
	})
	if err != nil {
		return nil, err
	}
	return gin.H{"id": id}, nil
}

func (m usersModule) login(c *gin.Context, in *loginIn) (loginOut, error) {
	p, err := m.Users.Authenticate(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		return loginOut{}, err
	}
	tok, err := m.JWT.Issue(p.ID, p.Roles)
	if err != nil {
		return loginOut{}, err
	}
	return loginOut{Token: tok, User: p}, nil
}

func (m usersModule) findUser(c *gin.Context, id int64) (*domain.User, error) {
	u, err := m.Users.FindByID(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.NotFound("user %d not found", id)
	}
	return u, nil
}

func (m usersModule) updateProfile(c *gin.Context, in *profileIn) (gin.H, error) {
	id, err := ez.ParamID(c, "user_id")
	if err != nil {
		return nil, err
	}
	if in.ID != nil && *in.ID != id {
		return nil, domain.Validation("id in body does not match path")
	}
	if calendarsSupplied(in.Calendars, in.AccessibleCalendars) {
		return nil, domain.Validation("calendars are managed by the server")
	}
	upd := domain.ProfileUpdate{Email: in.Email, FirstName: in.FirstName, LastName: in.LastName}
	if err := m.Users.UpdateProfile(c.Request.Context(), id, upd); err != nil {
		return nil, err
	}
	return gin.H{"id": id}, nil
}

func (m usersModule) list(c *gin.Context, in *ez.Page) (domain.Page[domain.User], error) {
	return m.Users.List(c.Request.Context(), in.Offset, in.Limit)
}
