package contract

import (
	"context"

	"github.com/google/uuid"

	"tourbook-chat/internal/entity"
	"tourbook-chat/internal/repository/specification"
)

type SupportSessionRepository interface {
	Create(ctx context.Context, session *entity.SupportSession) error
	Update(ctx context.Context, session *entity.SupportSession) error
	// FindLatestByUser returns nil, nil when the user never opened a session.
	FindLatestByUser(ctx context.Context, userId uuid.UUID) (*entity.SupportSession, error)
}

type SupportMessageRepository interface {
	Create(ctx context.Context, msg *entity.SupportMessage) error
	// FindAll returns matching messages oldest first.
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.SupportMessage, error)
	// Delete removes the matching messages and returns the ids it removed.
	Delete(ctx context.Context, specs ...specification.Specification) ([]uuid.UUID, error)
}
