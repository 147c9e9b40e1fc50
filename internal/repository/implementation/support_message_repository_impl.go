package implementation

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tourbook-chat/internal/entity"
	"tourbook-chat/internal/mapper"
	"tourbook-chat/internal/model"
	"tourbook-chat/internal/repository/contract"
	"tourbook-chat/internal/repository/specification"
)

type SupportMessageRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.SupportChatMapper
}

func NewSupportMessageRepository(db *gorm.DB) contract.SupportMessageRepository {
	return &SupportMessageRepositoryImpl{
		db:     db,
		mapper: mapper.NewSupportChatMapper(),
	}
}

func (r *SupportMessageRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *SupportMessageRepositoryImpl) Create(ctx context.Context, msg *entity.SupportMessage) error {
	m := r.mapper.MessageToModel(msg)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*msg = *r.mapper.MessageToEntity(m)
	return nil
}

func (r *SupportMessageRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.SupportMessage, error) {
	var models []*model.SupportMessage
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	sort.SliceStable(models, func(i, j int) bool {
		return models[i].CreatedAt.Before(models[j].CreatedAt)
	})
	return r.mapper.MessagesToEntities(models), nil
}

func (r *SupportMessageRepositoryImpl) Delete(ctx context.Context, specs ...specification.Specification) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.SupportMessage{}), specs...)
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := deleteMessagesByIDs(r.db.WithContext(ctx), ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// deleteMessagesByIDs soft-deletes exactly the plucked rows, so the ids
// returned to the caller match what was removed.
func deleteMessagesByIDs(db *gorm.DB, ids []uuid.UUID) *gorm.DB {
	byIDs := specification.ByIDs{IDs: ids}
	return byIDs.Apply(db).Delete(&model.SupportMessage{})
}
