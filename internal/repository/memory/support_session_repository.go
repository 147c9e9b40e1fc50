package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"tourbook-chat/internal/entity"
	"tourbook-chat/internal/repository/contract"
)

type SupportSessionRepository struct {
	db *Database
}

func NewSupportSessionRepository(db *Database) contract.SupportSessionRepository {
	return &SupportSessionRepository{db: db}
}

func (r *SupportSessionRepository) Create(ctx context.Context, session *entity.SupportSession) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.stamp(&session.Id, &session.CreatedAt)
	for _, row := range r.db.sessions {
		if row.Id == session.Id {
			return fmt.Errorf("support session %s already exists", session.Id)
		}
	}
	now := r.db.now()
	session.UpdatedAt = &now
	r.db.sessions = append(r.db.sessions, cloneSession(session))
	return nil
}

func (r *SupportSessionRepository) Update(ctx context.Context, session *entity.SupportSession) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i, row := range r.db.sessions {
		if row.Id == session.Id {
			now := r.db.now()
			session.UpdatedAt = &now
			r.db.sessions[i] = cloneSession(session)
			return nil
		}
	}
	return fmt.Errorf("support session %s not found", session.Id)
}

func (r *SupportSessionRepository) FindLatestByUser(ctx context.Context, userId uuid.UUID) (*entity.SupportSession, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var latest *entity.SupportSession
	for _, row := range r.db.sessions {
		if row.UserId != userId {
			continue
		}
		// later rows win ties so two sessions created in the same instant
		// still resolve to the newest one
		if latest == nil || !row.CreatedAt.Before(latest.CreatedAt) {
			latest = row
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneSession(latest), nil
}
