package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/workpack/internal/server/routes"
	"github.com/any-hub/workpack/internal/workload"
)

// AppOptions controls which install root the diagnostics app reports on.
type AppOptions struct {
	Logger   *logrus.Logger
	Records  workload.RecordStore
	Packs    *workload.PackStore
	Resolver workload.Resolver
	// Metrics is mounted at /-/metrics when non-nil.
	Metrics    http.Handler
	ListenPort int
}

const contextKeyRequestID = "_workpack_request_id"

// NewApp builds a Fiber application with request-id middleware, structured
// error handling and the diagnostics routes.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Records == nil {
		return nil, errors.New("record store is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}
	if opts.Packs == nil {
		opts.Packs = workload.NewPackStore()
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Logger))

	routes.RegisterBandRoutes(app, opts.Records)
	routes.RegisterPackRoutes(app, opts.Records, opts.Packs, opts.Resolver)
	if opts.Metrics != nil {
		routes.RegisterMetricsRoute(app, opts.Metrics)
	}

	var notFound fiber.Handler = func(c fiber.Ctx) error {
		return renderNotFound(c, opts.Logger)
	}
	app.Use(notFound)

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID 并记录访问日志。
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		err := c.Next()
		logger.WithFields(logrus.Fields{
			"action":     "diagnostics",
			"method":     c.Method(),
			"path":       c.Path(),
			"request_id": reqID,
		}).Debug("diagnostics request")
		return err
	}
}

func renderNotFound(c fiber.Ctx, logger *logrus.Logger) error {
	reqID := RequestID(c)
	logger.WithFields(logrus.Fields{
		"action":     "route_lookup",
		"path":       c.Path(),
		"request_id": reqID,
	}).Warn("route unmapped")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":      "route_not_found",
		"request_id": reqID,
	})
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// Listen 启动服务并阻塞直到出错。
func Listen(app *fiber.App, port int, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")
	return app.Listen(fmt.Sprintf(":%d", port))
}
