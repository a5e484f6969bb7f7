package router

import (
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"health-diary/internal/domain"
	"health-diary/internal/feature/registration"
	"health-diary/internal/transport/http/ez"
	mdw "health-diary/internal/transport/http/middleware"
)

type registrationsModule struct{ Deps }

func (registrationsModule) Priority() int { return 30 }

func (m registrationsModule) MountAPI(api *gin.RouterGroup) {
	g := ez.New(api, m.logger()).Group("/calendars/:calendar_id",
		mdw.AuthJWT(m.JWT),
		mdw.CalendarAccess(m.Engine, m.logger()),
	)
	r := m.Regs

	ez.Crud(ez.CrudConfig[registration.Absence, *registration.Absence]{Group: g, Path: "/absences", Service: r.Absences})
	ez.Crud(ez.CrudConfig[registration.Animal, *registration.Animal]{Group: g, Path: "/animals", Service: r.Animals})
	ez.Crud(ez.CrudConfig[registration.Food, *registration.Food]{Group: g, Path: "/foods", Service: r.Foods})
	ez.Crud(ez.CrudConfig[registration.Pollen, *registration.Pollen]{Group: g, Path: "/pollens", Service: r.Pollens})
	ez.Crud(ez.CrudConfig[registration.Symptom, *registration.Symptom]{Group: g, Path: "/symptoms", Service: r.Symptoms})
	ez.Crud(ez.CrudConfig[registration.Humor, *registration.Humor]{Group: g, Path: "/humors", Service: r.Humors})
	ez.Crud(ez.CrudConfig[registration.Treatment, *registration.Treatment]{Group: g, Path: "/treatments", Service: r.Treatments})
	ez.Crud(ez.CrudConfig[registration.Eczema, *registration.Eczema]{Group: g, Path: "/eczemas", Service: r.Eczemas})
	ez.Crud(ez.CrudConfig[registration.Sleep, *registration.Sleep]{Group: g, Path: "/sleeps", Service: r.Sleeps})
	ez.Crud(ez.CrudConfig[registration.TestResult, *registration.TestResult]{Group: g, Path: "/test-results", Service: r.TestResults})
	ez.Crud(ez.CrudConfig[registration.Measurement, *registration.Measurement]{Group: g, Path: "/measurements", Service: r.Measurements})
	ez.Crud(ez.CrudConfig[registration.Image, *registration.Image]{Group: g, Path: "/images", Service: r.Images})

	ez.POSTFILE(g, "/images/upload", "file", m.upload)
}

// upload multipart 上传；文件类型取扩展名
func (m registrationsModule) upload(c *gin.Context, fh *multipart.FileHeader) (any, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, domain.Validation("cannot read upload")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.Validation("cannot read upload")
	}

	ts := time.Now().UTC()
	if raw := c.PostForm("timestamp"); raw != "" {
		if ts, err = time.Parse(time.RFC3339, raw); err != nil {
			return nil, domain.Validation("timestamp must be RFC3339")
		}
	}
	img := &registration.Image{
		FileName:  filepath.Base(fh.Filename),
		FileType:  strings.ToLower(strings.TrimPrefix(filepath.Ext(fh.Filename), ".")),
		Data:      data,
		Timestamp: ts,
	}
	id, err := m.Regs.Images.Create(c.Request.Context(), mdw.CalendarID(c), img)
	if err != nil {
		return nil, err
	}
	return gin.H{"id": id}, nil
}
