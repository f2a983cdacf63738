package webserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/talkincode/wagate/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dbContextKey = "wagate_db"

type WebServer struct {
	root      *echo.Echo
	api       *echo.Group
	appConfig *config.AppConfig
}

var server *WebServer

// Init builds the echo server: jsoniter serialization, recovery, zap
// request logging, database injection and optional bearer-token auth on
// the /api group.
func Init(cfg *config.AppConfig, db *gorm.DB) *WebServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.System.Debug
	e.JSONSerializer = jsonSerializer{}
	e.Validator = &payloadValidator{v: validator.New()}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			zap.L().Debug("http request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(dbContextKey, db)
			return next(c)
		}
	})

	api := e.Group("/api")
	if cfg.Web.Secret != "" {
		// The query fallback exists for EventSource clients, which cannot
		// set headers.
		api.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup:  "header:Authorization,query:token",
			AuthScheme: "Bearer",
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.Web.Secret, nil
			},
		}))
	}

	e.GET("/status", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{"status": "ok", "time": time.Now()})
	})

	server = &WebServer{root: e, api: api, appConfig: cfg}
	return server
}

// Echo exposes the underlying router, mainly for handler tests.
func (s *WebServer) Echo() *echo.Echo {
	return s.root
}

// Listen blocks serving HTTP until shutdown.
func Listen() error {
	addr := fmt.Sprintf("%s:%d", server.appConfig.Web.Host, server.appConfig.Web.Port)
	zap.L().Info("webserver: listening", zap.String("addr", addr))
	err := server.root.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func Shutdown(ctx context.Context) error {
	if server == nil {
		return nil
	}
	return server.root.Shutdown(ctx)
}

func ApiGET(path string, h echo.HandlerFunc) {
	server.api.GET(path, h)
}

func ApiPOST(path string, h echo.HandlerFunc) {
	server.api.POST(path, h)
}

func ApiPUT(path string, h echo.HandlerFunc) {
	server.api.PUT(path, h)
}

func ApiDELETE(path string, h echo.HandlerFunc) {
	server.api.DELETE(path, h)
}

// DBFromContext returns the gorm handle injected per request.
func DBFromContext(c echo.Context) *gorm.DB {
	db, _ := c.Get(dbContextKey).(*gorm.DB)
	return db
}

type payloadValidator struct {
	v *validator.Validate
}

func (p *payloadValidator) Validate(i interface{}) error {
	return p.v.Struct(i)
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type jsonSerializer struct{}

func (jsonSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (jsonSerializer) Deserialize(c echo.Context, i interface{}) error {
	err := json.NewDecoder(c.Request().Body).Decode(i)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return nil
}
