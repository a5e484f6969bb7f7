package ez

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"health-diary/internal/domain"
	"health-diary/internal/feature/registration"
	mdw "health-diary/internal/transport/http/middleware"
	resp "health-diary/internal/transport/http/response"
)

// Resource 日历内一类登记的存取；实现见 service.RegistrationService
type Resource[T any, P registration.Ptr[T]] interface {
	Create(ctx context.Context, calendarID int64, p P) (int64, error)
	Update(ctx context.Context, calendarID, id int64, p P) error
	Get(ctx context.Context, calendarID, id int64) (P, error)
	ListByCalendar(ctx context.Context, calendarID int64, offset, limit int) (domain.Page[T], error)
	Delete(ctx context.Context, calendarID, id int64) error
}

type CrudConfig[T any, P registration.Ptr[T]] struct {
	Group   EZ // 已经过 CalendarAccess 的分组
	Path    string
	Service Resource[T, P]
}

// Crud 注册 POST/GET 列表/GET/PUT/DELETE；日历 id 一律取自访问校验写入的上下文
func Crud[T any, P registration.Ptr[T]](cfg CrudConfig[T, P]) {
	e, svc := cfg.Group, cfg.Service
	item := cfg.Path + "/:id"

	e.g.POST(cfg.Path, func(c *gin.Context) {
		in := P(new(T))
		if err := c.ShouldBindJSON(in); err != nil {
			c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, err.Error()))
			return
		}
		id, err := svc.Create(c.Request.Context(), mdw.CalendarID(c), in)
		if err != nil {
			e.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, resp.OK(gin.H{"id": id}))
	})

	e.g.GET(cfg.Path, func(c *gin.Context) {
		var q Page
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, err.Error()))
			return
		}
		page, err := svc.ListByCalendar(c.Request.Context(), mdw.CalendarID(c), q.Offset, q.Limit)
		if err != nil {
			e.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, resp.OK(page))
	})

	e.g.GET(item, func(c *gin.Context) {
		id, err := ParamID(c, "id")
		if err != nil {
			e.Fail(c, err)
			return
		}
		m, err := svc.Get(c.Request.Context(), mdw.CalendarID(c), id)
		if err != nil {
			e.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, resp.OK(m))
	})

	e.g.PUT(item, func(c *gin.Context) {
		id, err := ParamID(c, "id")
		if err != nil {
			e.Fail(c, err)
			return
		}
		in := P(new(T))
		if err := c.ShouldBindJSON(in); err != nil {
			c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, err.Error()))
			return
		}
		if err := svc.Update(c.Request.Context(), mdw.CalendarID(c), id, in); err != nil {
			e.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, resp.OK(gin.H{"id": id}))
	})

	e.g.DELETE(item, func(c *gin.Context) {
		id, err := ParamID(c, "id")
		if err != nil {
			e.Fail(c, err)
			return
		}
		if err := svc.Delete(c.Request.Context(), mdw.CalendarID(c), id); err != nil {
			e.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, resp.OK(gin.H{"id": id}))
	})
}
