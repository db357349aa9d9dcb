package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	"github.com/tripgenie/tripgenie-backend/internal/api/handlers"
	"github.com/tripgenie/tripgenie-backend/internal/config"
	"github.com/tripgenie/tripgenie-backend/internal/services"
)

// NewApp builds the fiber application with middleware and routes
func NewApp(svc *services.Services, cfg config.ServerConfig, logger *logrus.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "TripGenie Backend",
		ErrorHandler:          handlers.ErrorHandler,
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{Output: logger.Writer()}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins(cfg.CORSOrigins),
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))

	SetupRoutes(app, svc, cfg, logger)
	return app
}

func origins(list []string) string {
	if len(list) == 0 {
		return "*"
	}
	return strings.Join(list, ",")
}
