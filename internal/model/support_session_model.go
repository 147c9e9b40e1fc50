package model

import (
	"time"

	"github.com/google/uuid"
)

// SupportSession is one human support conversation of a user. Deleted
// sessions keep their row with status "deleted" so the client can observe it.
type SupportSession struct {
	Id        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId    uuid.UUID  `gorm:"type:uuid;not null;index"`
	Status    string     `gorm:"type:varchar(20);not null;default:'active'"`
	ClosedAt  *time.Time `gorm:"type:timestamptz"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
}

func (SupportSession) TableName() string {
	return "support_sessions"
}
