package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/tripgenie/tripgenie-backend/internal/api/models"
	"github.com/tripgenie/tripgenie-backend/internal/services"
	"github.com/tripgenie/tripgenie-backend/internal/tools"
)

// Version is reported by the health endpoint
const Version = "4.0.0"

var sampleQueries = map[string]models.SampleQueryCategory{
	"complete_trips": {
		Title: "Complete Trip Planning",
		Queries: []string{
			"Create a 5-day itinerary for Paris for 2 people interested in art and food from July 5th with $3000 budget",
			"Plan a week-long trip to Tokyo for a family of 4 in April",
			"I want to visit Rome for 4 days, interested in history and Italian cuisine",
		},
	},
	"flights": {
		Title: "Flight Searches",
		Queries: []string{
			"Find flights from JFK to Paris on July 5th for 2 people",
			"Show me flights from Mumbai to London in March",
			"Get me flights from Chicago to Miami next weekend",
		},
	},
	"hotels": {
		Title: "Hotel Searches",
		Queries: []string{
			"Find hotels in Rome from July 5th to 7th for 2 people",
			"Show me luxury hotels in Paris for next month",
			"I need budget hotels in Tokyo for a week",
		},
	},
}

// Health reports version, feature flags, registered tools and store statistics.
// A store that cannot report statistics degrades the status but still answers 200.
func Health(svc *services.Services, logger *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		_, scraping := svc.Gateway.Lookup(tools.FlightSearchName)

		resp := models.HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Version:   Version,
			Features: models.Features{
				TripPlanning:     true,
				ContextMemory:    true,
				RealBookingLinks: scraping,
				ToolIntegration:  true,
			},
			Tools: toolNames(svc.Gateway),
		}

		stats, err := svc.Chat.Stats(c.Context())
		if err != nil {
			logger.WithError(err).Warn("Session store statistics unavailable")
			resp.Status = "degraded"
		} else {
			resp.Storage = stats
		}
		return c.JSON(resp)
	}
}

// SampleQueries returns example prompts grouped by category
func SampleQueries() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(models.SampleQueriesResponse{Categories: sampleQueries})
	}
}

func toolNames(gw *tools.Gateway) []string {
	registered := gw.Tools()
	names := make([]string, 0, len(registered))
	for _, t := range registered {
		names = append(names, t.Name())
	}
	return names
}
