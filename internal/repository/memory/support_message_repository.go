package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"tourbook-chat/internal/entity"
	"tourbook-chat/internal/repository/contract"
	"tourbook-chat/internal/repository/specification"
)

type SupportMessageRepository struct {
	db *Database
}

func NewSupportMessageRepository(db *Database) contract.SupportMessageRepository {
	return &SupportMessageRepository{db: db}
}

func (r *SupportMessageRepository) Create(ctx context.Context, msg *entity.SupportMessage) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.stamp(&msg.Id, &msg.CreatedAt)
	r.db.messages = append(r.db.messages, cloneMessage(msg))
	return nil
}

func (r *SupportMessageRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.SupportMessage, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	rows, err := r.selectLocked(specs)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.SupportMessage, len(rows))
	for i, row := range rows {
		out[i] = cloneMessage(row)
	}
	return out, nil
}

func (r *SupportMessageRepository) Delete(ctx context.Context, specs ...specification.Specification) ([]uuid.UUID, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rows, err := r.selectLocked(specs)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	doomed := make(map[uuid.UUID]struct{}, len(rows))
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		doomed[row.Id] = struct{}{}
		ids = append(ids, row.Id)
	}
	kept := r.db.messages[:0]
	for _, row := range r.db.messages {
		if _, drop := doomed[row.Id]; !drop {
			kept = append(kept, row)
		}
	}
	for i := len(kept); i < len(r.db.messages); i++ {
		r.db.messages[i] = nil
	}
	r.db.messages = kept
	return ids, nil
}

// selectLocked evaluates specs against the rows and returns the matches
// oldest first.
func (r *SupportMessageRepository) selectLocked(specs []specification.Specification) ([]*entity.SupportMessage, error) {
	limit := 0
	filters := make([]func(*entity.SupportMessage) bool, 0, len(specs))
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.ByID:
			filters = append(filters, func(m *entity.SupportMessage) bool { return m.Id == s.ID })
		case specification.ByIDs:
			set := make(map[uuid.UUID]struct{}, len(s.IDs))
			for _, id := range s.IDs {
				set[id] = struct{}{}
			}
			filters = append(filters, func(m *entity.SupportMessage) bool {
				_, ok := set[m.Id]
				return ok
			})
		case specification.UserOwnedBy:
			filters = append(filters, func(m *entity.SupportMessage) bool { return m.UserId == s.UserID })
		case specification.ByMode:
			filters = append(filters, func(m *entity.SupportMessage) bool { return m.Mode == s.Mode })
		case specification.BySessionID:
			filters = append(filters, func(m *entity.SupportMessage) bool {
				return m.SessionId != nil && *m.SessionId == s.SessionID
			})
		case specification.Recent:
			limit = s.Limit
		default:
			return nil, fmt.Errorf("memory repository: unsupported specification %T", spec)
		}
	}

	var out []*entity.SupportMessage
	for _, row := range r.db.messages {
		if matchesAll(row, filters) {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func matchesAll(m *entity.SupportMessage, filters []func(*entity.SupportMessage) bool) bool {
	for _, f := range filters {
		if !f(m) {
			return false
		}
	}
	return true
}
