package implementation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tourbook-chat/internal/entity"
	"tourbook-chat/internal/mapper"
	"tourbook-chat/internal/model"
	"tourbook-chat/internal/repository/contract"
	"tourbook-chat/internal/repository/scope"
	"tourbook-chat/internal/repository/specification"
)

type SupportSessionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.SupportChatMapper
}

func NewSupportSessionRepository(db *gorm.DB) contract.SupportSessionRepository {
	return &SupportSessionRepositoryImpl{
		db:     db,
		mapper: mapper.NewSupportChatMapper(),
	}
}

func (r *SupportSessionRepositoryImpl) Create(ctx context.Context, session *entity.SupportSession) error {
	m := r.mapper.SessionToModel(session)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*session = *r.mapper.SessionToEntity(m)
	return nil
}

func (r *SupportSessionRepositoryImpl) Update(ctx context.Context, session *entity.SupportSession) error {
	m := r.mapper.SessionToModel(session)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	*session = *r.mapper.SessionToEntity(m)
	return nil
}

func (r *SupportSessionRepositoryImpl) FindLatestByUser(ctx context.Context, userId uuid.UUID) (*entity.SupportSession, error) {
	var m model.SupportSession
	query := specification.UserOwnedBy{UserID: userId}.Apply(r.db.WithContext(ctx))
	if err := query.Scopes(scope.OrderByCreatedDesc).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.SessionToEntity(&m), nil
}
