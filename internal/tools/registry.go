package tools

import (
	"github.com/sirupsen/logrus"
	"github.com/tripgenie/tripgenie-backend/internal/config"
	"github.com/tripgenie/tripgenie-backend/internal/tools/firecrawl"
)

// NewDefaultGateway builds a gateway with the built-in tools. The scraping tools are
// registered only when a Firecrawl key is configured.
func NewDefaultGateway(cfg config.ToolsConfig, observer Observer, logger *logrus.Logger) *Gateway {
	if logger == nil {
		logger = logrus.New()
	}
	gw := NewGateway(GatewayConfig{
		Timeout:  cfg.Timeout,
		Breaker:  NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerCooldown, logger),
		Observer: observer,
		Logger:   logger,
	})

	if cfg.FirecrawlEnabled() {
		client := firecrawl.NewClient(firecrawl.Config{
			APIKey:      cfg.FirecrawlAPIKey,
			BaseURL:     cfg.FirecrawlBaseURL,
			HTTPTimeout: cfg.Timeout,
			Logger:      logger,
		})
		gw.Register(NewFlightSearch(client))
		gw.Register(NewHotelSearch(client))
	} else {
		logger.Warn("FIRECRAWL_API_KEY not set; flight and hotel search are disabled")
	}
	gw.Register(NewItinerary(nil))

	names := make([]string, 0, 3)
	for _, t := range gw.Tools() {
		names = append(names, t.Name())
	}
	logger.WithField("tools", names).Info("Tool gateway ready")
	return gw
}
