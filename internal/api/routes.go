package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"github.com/tripgenie/tripgenie-backend/internal/api/handlers"
	"github.com/tripgenie/tripgenie-backend/internal/api/middleware"
	"github.com/tripgenie/tripgenie-backend/internal/config"
	"github.com/tripgenie/tripgenie-backend/internal/services"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, svc *services.Services, cfg config.ServerConfig, logger *logrus.Logger) {
	chatHandler := handlers.NewChatHandler(svc.Chat, logger)

	api := app.Group("/api")

	// Turns
	chat := api.Group("/chat")
	chat.Post("/", middleware.ChatRateLimit(cfg.RateLimitPerMinute, time.Minute), chatHandler.Chat)
	chat.Get("/history/:id", handlers.GetHistory(svc))
	chat.Post("/new-session", handlers.NewSession(svc))

	// Session management
	chat.Get("/sessions", handlers.ListSessions(svc))
	chat.Get("/sessions/search", handlers.SearchSessions(svc))
	chat.Delete("/sessions/:id", handlers.DeleteSession(svc))

	api.Get("/health", handlers.Health(svc, logger))
	api.Get("/sample-queries", handlers.SampleQueries())

	app.Get("/metrics", adaptor.HTTPHandler(svc.Metrics.Handler()))

	// WebSocket routes
	app.Use("/ws", middleware.RequireUpgrade())
	app.Get("/ws/chat", websocket.New(chatHandler.StreamChat))
}
