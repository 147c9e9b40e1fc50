package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"tourbook-chat/internal/repository/scope"
	"tourbook-chat/pkg/supportchat"
)

type ByMode struct {
	Mode supportchat.Mode
}

func (s ByMode) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("mode = ?", string(s.Mode))
}

type BySessionID struct {
	SessionID uuid.UUID
}

func (s BySessionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("session_id = ?", s.SessionID)
}

// Recent keeps the newest Limit rows. Repositories still return them oldest
// first.
type Recent struct {
	Limit int
}

func (s Recent) Apply(db *gorm.DB) *gorm.DB {
	q := db.Scopes(scope.OrderByCreatedDesc)
	if s.Limit > 0 {
		q = q.Limit(s.Limit)
	}
	return q
}
