package middleware

import (
	"community-server/conf"
	"community-server/infra"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	rcp "github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// Use installs the middleware chain. Profiling and the monitor page are only
// mounted when app.debug is on.
func Use(server *fiber.App, logger *zap.Logger, appCfg *conf.AppConfig, authCfg *conf.AuthConfig, authHandler *infra.Authorization) {
	server.Use(rcp.New())
	server.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Authorization, Origin, X-Requested-With, Content-Type, Accept",
		ExposeHeaders: "Authorization",
	}))
	if appCfg.Debug {
		server.Use(pprof.New())
	}
	server.Use(etag.New(etag.Config{Weak: true}))
	server.Use(NewFiberLog(LogConfig{
		Logger:   logger,
		Fields:   []string{"ips", "url", "method", "status", "latency", "user", "error"},
		Messages: []string{"Server error", "Client error", "Success"},
		Permits:  authCfg.Permits,
	}))

	server.Use(NewAuthFilter(authHandler))
	if appCfg.Debug {
		server.Get("/monitor", monitor.New())
	}
}
