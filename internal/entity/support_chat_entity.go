package entity

import (
	"time"

	"github.com/google/uuid"

	"tourbook-chat/pkg/supportchat"
)

type SupportSession struct {
	Id        uuid.UUID
	UserId    uuid.UUID
	Status    supportchat.SessionStatus
	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt *time.Time
}

func (s *SupportSession) Writable() bool {
	return s != nil && !s.Status.Terminal()
}

type SupportMessage struct {
	Id                uuid.UUID
	UserId            uuid.UUID
	Mode              supportchat.Mode
	SessionId         *uuid.UUID
	Text              string
	AuthoredBySupport bool
	AuthoredByAI      bool
	CreatedAt         time.Time
}
