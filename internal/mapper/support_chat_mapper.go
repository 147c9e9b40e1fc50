package mapper

import (
	"time"

	"tourbook-chat/internal/entity"
	"tourbook-chat/internal/model"
	"tourbook-chat/pkg/supportchat"
)

type SupportChatMapper struct{}

func NewSupportChatMapper() *SupportChatMapper {
	return &SupportChatMapper{}
}

// Session Mappers

func (m *SupportChatMapper) SessionToEntity(s *model.SupportSession) *entity.SupportSession {
	if s == nil {
		return nil
	}

	var updatedAt *time.Time
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		updatedAt = &t
	}

	return &entity.SupportSession{
		Id:        s.Id,
		UserId:    s.UserId,
		Status:    supportchat.ParseSessionStatus(s.Status),
		ClosedAt:  s.ClosedAt,
		CreatedAt: s.CreatedAt,
		UpdatedAt: updatedAt,
	}
}

func (m *SupportChatMapper) SessionToModel(s *entity.SupportSession) *model.SupportSession {
	if s == nil {
		return nil
	}

	var updatedAt time.Time
	if s.UpdatedAt != nil {
		updatedAt = *s.UpdatedAt
	}

	return &model.SupportSession{
		Id:        s.Id,
		UserId:    s.UserId,
		Status:    string(s.Status),
		ClosedAt:  s.ClosedAt,
		CreatedAt: s.CreatedAt,
		UpdatedAt: updatedAt,
	}
}

func (m *SupportChatMapper) SessionToInfo(s *entity.SupportSession) *supportchat.SessionInfo {
	if s == nil {
		return nil
	}
	return &supportchat.SessionInfo{Status: s.Status}
}

// Message Mappers

func (m *SupportChatMapper) MessageToEntity(msg *model.SupportMessage) *entity.SupportMessage {
	if msg == nil {
		return nil
	}
	return &entity.SupportMessage{
		Id:                msg.Id,
		UserId:            msg.UserId,
		Mode:              supportchat.Mode(msg.Mode),
		SessionId:         msg.SessionId,
		Text:              msg.Text,
		AuthoredBySupport: msg.IsSupport,
		AuthoredByAI:      msg.IsAI,
		CreatedAt:         msg.CreatedAt,
	}
}

func (m *SupportChatMapper) MessageToModel(msg *entity.SupportMessage) *model.SupportMessage {
	if msg == nil {
		return nil
	}
	return &model.SupportMessage{
		Id:        msg.Id,
		UserId:    msg.UserId,
		Mode:      string(msg.Mode),
		SessionId: msg.SessionId,
		Text:      msg.Text,
		IsSupport: msg.AuthoredBySupport,
		IsAI:      msg.AuthoredByAI,
		CreatedAt: msg.CreatedAt,
	}
}

func (m *SupportChatMapper) MessagesToEntities(models []*model.SupportMessage) []*entity.SupportMessage {
	out := make([]*entity.SupportMessage, len(models))
	for i, msg := range models {
		out[i] = m.MessageToEntity(msg)
	}
	return out
}

// MessageToWire renders a stored message the way clients receive it.
func (m *SupportChatMapper) MessageToWire(msg *entity.SupportMessage) supportchat.WireMessage {
	return supportchat.WireMessage{
		ID:                msg.Id.String(),
		Text:              msg.Text,
		AuthoredBySupport: msg.AuthoredBySupport,
		AuthoredByAI:      msg.AuthoredByAI,
		CreatedAt:         msg.CreatedAt,
	}
}

func (m *SupportChatMapper) MessagesToWire(msgs []*entity.SupportMessage) []supportchat.WireMessage {
	out := make([]supportchat.WireMessage, len(msgs))
	for i, msg := range msgs {
		out[i] = m.MessageToWire(msg)
	}
	return out
}
