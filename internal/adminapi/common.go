// Package adminapi exposes the gateway's HTTP management surface: session
// CRUD, connection control, message dispatch and the live event stream.
package adminapi

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
	"github.com/talkincode/wagate/config"
	"github.com/talkincode/wagate/internal/eventhub"
	"github.com/talkincode/wagate/internal/session"
	"github.com/talkincode/wagate/internal/webserver"
	"gorm.io/gorm"
)

var (
	registry  *session.Registry
	hub       *eventhub.Hub
	appConfig *config.AppConfig
)

// Init wires the handlers to their collaborators and registers all routes.
// Call after webserver.Init.
func Init(cfg *config.AppConfig, reg *session.Registry, h *eventhub.Hub) {
	appConfig = cfg
	registry = reg
	hub = h
	registerSessionRoutes()
}

// GetDB returns the request-scoped gorm handle.
func GetDB(c echo.Context) *gorm.DB {
	return webserver.DBFromContext(c)
}

func ok(c echo.Context, data interface{}) error {
	return okStatus(c, http.StatusOK, data)
}

func okStatus(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, map[string]interface{}{
		"code": 0,
		"data": data,
	})
}

func fail(c echo.Context, status int, code, message string, detail interface{}) error {
	body := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if detail != nil {
		body["detail"] = detail
	}
	return c.JSON(status, body)
}

func handleValidationError(c echo.Context, err error) error {
	if verrs, is := err.(validator.ValidationErrors); is {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field())+":"+fe.Tag())
		}
		return fail(c, http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", fields)
	}
	return fail(c, http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", err.Error())
}

func parsePagination(c echo.Context) (page, pageSize int) {
	page = cast.ToInt(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize = cast.ToInt(c.QueryParam("page_size"))
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}
	return page, pageSize
}

func paged(c echo.Context, items interface{}, total int64, page, pageSize int) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":      0,
		"data":      items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
