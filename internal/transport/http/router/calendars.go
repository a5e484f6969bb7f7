package router

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"health-diary/internal/domain"
	"health-diary/internal/transport/http/ez"
	mdw "health-diary/internal/transport/http/middleware"
)

type calendarsModule struct{ Deps }

func (calendarsModule) Priority() int { return 20 }

type calendarIn struct {
	ID      *int64 `json:"id"`
	Name    string `json:"calendarName"`
	OwnerID *int64 `json:"parent_id"`
}

type shareQ struct {
	ShareWith string `form:"shareWith" binding:"required"`
}

func (m calendarsModule) MountAPI(api *gin.RouterGroup) {
	authed := ez.New(api, m.logger()).Group("/calendars", mdw.AuthJWT(m.JWT))

	ez.RegisterAction(authed, ez.Action[calendarIn, gin.H]{
		Method:  http.MethodPost,
		Path:    "",
		Binder:  ez.BindJSON,
		Auth:    true,
		Handler: m.create,
	})
	ez.RegisterAction(authed, ez.Action[ez.Page, domain.Page[domain.Calendar]]{
		Method: http.MethodGet,
		Path:   "",
		Binder: ez.BindQuery,
		Auth:   true,
		Handler: func(c *gin.Context, in *ez.Page) (domain.Page[domain.Calendar], error) {
			return m.Calendars.ListByOwnerAndShared(c.Request.Context(), mdw.Principal(c).ID, in.Offset, in.Limit)
		},
	})

	cal := authed.Group("/:calendar_id", mdw.CalendarAccess(m.Engine, m.logger()))
	cal.GET("", func(c *gin.Context) (any, error) {
		out, err := m.Calendars.GetByID(c.Request.Context(), mdw.CalendarID(c))
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, domain.NotFound("calendar %d not found", mdw.CalendarID(c))
		}
		out.Owned = out.OwnerID == mdw.Principal(c).ID
		return out, nil
	})

	owner := cal.Group("", mdw.CalendarOwner(m.Engine, m.logger()))
	ez.RegisterAction(owner, ez.Action[struct{}, gin.H]{
		Method: http.MethodDelete,
		Path:   "",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			id := mdw.CalendarID(c)
			return gin.H{"id": id}, m.Calendars.DeleteCalendar(c.Request.Context(), id)
		},
	})
	// 兼容旧客户端：POST ?shareWith= 切换共享状态
	ez.RegisterAction(owner, ez.Action[shareQ, gin.H]{
		Method: http.MethodPost,
		Path:   "",
		Binder: ez.BindQuery,
		Auth:   true,
		Handler: func(c *gin.Context, in *shareQ) (gin.H, error) {
			uid, err := strconv.ParseInt(in.ShareWith, 10, 64)
			if err != nil || uid <= 0 {
				return nil, domain.Validation("invalid shareWith")
			}
			shared, err := m.Calendars.ToggleShare(c.Request.Context(), mdw.CalendarID(c), uid)
			return gin.H{"userId": uid, "shared": shared}, err
		},
	})
	ez.RegisterAction(owner, ez.Action[struct{}, gin.H]{
		Method: http.MethodPut,
		Path:   "/shares/:user_id",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			uid, err := ez.ParamID(c, "user_id")
			if err != nil {
				return nil, err
			}
			return gin.H{"userId": uid, "shared": true}, m.Calendars.GrantAccess(c.Request.Context(), mdw.CalendarID(c), uid)
		},
	})
	ez.RegisterAction(owner, ez.Action[struct{}, gin.H]{
		Method: http.MethodDelete,
		Path:   "/shares/:user_id",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			uid, err := ez.ParamID(c, "user_id")
			if err != nil {
				return nil, err
			}
			return gin.H{"userId": uid, "shared": false}, m.Calendars.RevokeAccess(c.Request.Context(), mdw.CalendarID(c), uid)
		},
	})
}

func (m calendarsModule) create(c *gin.Context, in *calendarIn) (gin.H, error) {
	p := mdw.Principal(c)
	if in.ID != nil {
		return nil, domain.Validation("id must not be supplied")
	}
	if in.OwnerID != nil && *in.OwnerID != p.ID {
		return nil, domain.Validation("a calendar can only be created for yourself")
	}
	id, err := m.Calendars.CreateCalendar(c.Request.Context(), p, in.Name)
	if err != nil {
		return nil, err
	}
	return gin.H{"id": id}, nil
}
