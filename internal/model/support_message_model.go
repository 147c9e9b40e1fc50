package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SupportMessage struct {
	Id        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId    uuid.UUID      `gorm:"type:uuid;not null;index:idx_support_messages_user_mode"`
	Mode      string         `gorm:"type:varchar(20);not null;index:idx_support_messages_user_mode"`
	SessionId *uuid.UUID     `gorm:"type:uuid;index"` // nil in ai mode
	Text      string         `gorm:"type:text;not null"`
	IsSupport bool           `gorm:"not null;default:false"`
	IsAI      bool           `gorm:"column:is_ai;not null;default:false"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (SupportMessage) TableName() string {
	return "support_messages"
}
