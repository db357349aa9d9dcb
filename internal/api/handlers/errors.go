package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/tripgenie/tripgenie-backend/internal/api/models"
	"github.com/tripgenie/tripgenie-backend/internal/repository"
	"github.com/tripgenie/tripgenie-backend/internal/services"
)

// StatusFor maps service errors onto HTTP status codes
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, repository.ErrSessionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, repository.ErrInvalidRole),
		errors.Is(err, repository.ErrInvalidUserID):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler renders every unhandled error as an ErrorResponse
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := StatusFor(err)
	return c.Status(code).JSON(models.ErrorResponse{
		Success: false,
		Error:   err.Error(),
		Code:    code,
	})
}
