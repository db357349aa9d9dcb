package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"github.com/tripgenie/tripgenie-backend/internal/api/models"
	"github.com/tripgenie/tripgenie-backend/internal/services"
)

// ChatHandler serves turn requests over HTTP and websocket
type ChatHandler struct {
	chat   *services.ChatService
	logger *logrus.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat *services.ChatService, logger *logrus.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: logger}
}

// Chat handles POST /api/chat. A failed turn is still a 200 with success false.
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req services.TurnRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	resp, err := h.chat.ProcessTurn(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// StreamChat handles /ws/chat: every inbound JSON frame is one turn
func (h *ChatHandler) StreamChat(c *websocket.Conn) {
	defer c.Close()

	userID, _ := c.Locals("user_id").(string)
	for {
		var req services.TurnRequest
		if err := c.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.WithError(err).Debug("Websocket read ended")
			}
			return
		}
		if req.UserID == "" {
			req.UserID = userID
		}

		resp, err := h.chat.ProcessTurn(context.Background(), req)
		if err != nil {
			code := StatusFor(err)
			if writeErr := c.WriteJSON(models.ErrorResponse{Success: false, Error: err.Error(), Code: code}); writeErr != nil {
				return
			}
			continue
		}
		if err := c.WriteJSON(resp); err != nil {
			h.logger.WithError(err).Debug("Websocket client went away")
			return
		}
	}
}
