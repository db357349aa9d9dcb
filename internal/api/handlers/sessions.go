package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tripgenie/tripgenie-backend/internal/api/models"
	"github.com/tripgenie/tripgenie-backend/internal/repository"
	"github.com/tripgenie/tripgenie-backend/internal/services"
)

// GetHistory returns a session's messages, context and bookkeeping
func GetHistory(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		history, err := svc.Chat.History(c.Context(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(models.HistoryResponse{
			Success:      true,
			SessionID:    history.SessionID,
			Messages:     history.Messages,
			Context:      history.Context,
			SessionInfo:  history.SessionInfo,
			MessageCount: len(history.Messages),
		})
	}
}

// NewSession creates a session opening with the welcome message
func NewSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID, err := svc.Chat.NewSession(c.Context(), c.Query("user_id"))
		if err != nil {
			return err
		}
		return c.JSON(models.NewSessionResponse{
			Success:   true,
			SessionID: sessionID,
			Message:   "New session created",
		})
	}
}

// ListSessions returns a user's sessions, most recent first
func ListSessions(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Query("user_id", services.DefaultUserID)
		sessions, err := svc.Chat.ListSessions(c.Context(), userID)
		if err != nil {
			return err
		}
		if sessions == nil {
			sessions = []repository.Session{}
		}
		return c.JSON(models.SessionsResponse{
			Success:  true,
			UserID:   userID,
			Sessions: sessions,
			Count:    len(sessions),
		})
	}
}

// SearchSessions ranks a user's sessions against the comma or space separated terms in q
func SearchSessions(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		terms := repository.SplitTerms(c.Query("q"))
		if len(terms) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "q is required")
		}

		results, err := svc.Chat.SearchSessions(c.Context(), c.Query("user_id"), terms)
		if err != nil {
			return err
		}
		if results == nil {
			results = []repository.SearchResult{}
		}
		return c.JSON(models.SearchResponse{
			Success: true,
			Query:   terms,
			Results: results,
			Count:   len(results),
		})
	}
}

// DeleteSession removes a session; deleting an unknown id is not an error
func DeleteSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deleted, err := svc.Chat.DeleteSession(c.Context(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(models.DeleteResponse{Success: true, Deleted: deleted})
	}
}
