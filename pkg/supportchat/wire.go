package supportchat

import (
	"time"
)

// WireMessage is the JSON shape of a message exchanged with the backend and
// carried in channel events.
type WireMessage struct {
	ID                string    `json:"id"`
	Text              string    `json:"text"`
	AuthoredBySupport bool      `json:"is_support"`
	AuthoredByAI      bool      `json:"is_ai"`
	CreatedAt         time.Time `json:"created_at"`
}

// ToMessage converts a wire message into a confirmed store message.
func (w WireMessage) ToMessage() Message {
	return Message{
		ID:                ConfirmedID(w.ID),
		Text:              w.Text,
		AuthoredBySupport: w.AuthoredBySupport,
		AuthoredByAI:      w.AuthoredByAI,
		CreatedAt:         w.CreatedAt,
	}
}

type HistoryResponse struct {
	Success  bool          `json:"success"`
	Messages []WireMessage `json:"messages"`
}

type SendRequest struct {
	Mode Mode   `json:"mode" validate:"required,oneof=support ai"`
	Text string `json:"text" validate:"required,max=4000"`
}

type SendResponse struct {
	Success  bool          `json:"success"`
	Message  *WireMessage  `json:"message,omitempty"`
	Messages []WireMessage `json:"messages,omitempty"`
}

type SessionInfo struct {
	Status SessionStatus `json:"status"`
}

type SessionStatusResponse struct {
	Session *SessionInfo `json:"session"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

// RejectedResponse is the 403 body returned when a write hits a closed or
// deleted session.
type RejectedResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Session *SessionInfo `json:"session,omitempty"`
}
