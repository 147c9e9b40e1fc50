package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"tourbook-chat/internal/pkg/serverutils"
	"tourbook-chat/internal/service"
	"tourbook-chat/pkg/supportchat"
)

// ClassifySupportChatError maps service errors for serverutils.ErrorHandlerMiddleware.
func ClassifySupportChatError(err error) (int, any, bool) {
	var rejected *service.SessionRejectedError
	if errors.As(err, &rejected) {
		return fiber.StatusForbidden, supportchat.RejectedResponse{
			Success: false,
			Message: rejected.Error(),
			Session: &supportchat.SessionInfo{Status: rejected.Status},
		}, true
	}

	var status int
	switch {
	case errors.Is(err, service.ErrEmptyText),
		errors.Is(err, service.ErrInvalidMode),
		errors.Is(err, service.ErrClearNotAllowed):
		status = fiber.StatusBadRequest
	case errors.Is(err, service.ErrNoSession),
		errors.Is(err, service.ErrMessageNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, service.ErrSessionNotActive):
		status = fiber.StatusConflict
	case errors.Is(err, service.ErrAIUnavailable):
		status = fiber.StatusBadGateway
	case errors.Is(err, service.ErrAIDisabled):
		status = fiber.StatusServiceUnavailable
	default:
		return 0, nil, false
	}
	// ErrAIUnavailable wraps the provider error; only the sentinel text is shown
	msg := err.Error()
	if errors.Is(err, service.ErrAIUnavailable) {
		msg = service.ErrAIUnavailable.Error()
	}
	return status, serverutils.ErrorResponse(status, msg), true
}
