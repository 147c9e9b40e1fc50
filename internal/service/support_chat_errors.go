package service

import (
	"errors"

	"tourbook-chat/pkg/supportchat"
)

var (
	ErrEmptyText        = errors.New("message text is empty")
	ErrInvalidMode      = errors.New("invalid conversation mode")
	ErrClearNotAllowed  = errors.New("only the ai history can be cleared")
	ErrAIDisabled       = errors.New("ai assistant is not available")
	ErrAIUnavailable    = errors.New("ai assistant failed to answer")
	ErrNoSession        = errors.New("support session not found")
	ErrSessionNotActive = errors.New("support session is not active")
	ErrMessageNotFound  = errors.New("message not found")
)

// SessionRejectedError is returned when a user writes to a closed or deleted
// support session.
type SessionRejectedError struct {
	Status supportchat.SessionStatus
}

func (e *SessionRejectedError) Error() string {
	if e.Status == supportchat.SessionDeleted {
		return "This conversation was deleted by support"
	}
	return "This conversation was closed by support"
}
