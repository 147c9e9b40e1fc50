// Package memory keeps support sessions and messages in process memory. The
// REST server falls back to it when no database connection string is set, and
// the service tests run against it.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"tourbook-chat/internal/entity"
)

type Database struct {
	mu       sync.RWMutex
	sessions []*entity.SupportSession
	messages []*entity.SupportMessage
	now      func() time.Time

	// txMu serializes units of work; mu guards the rows themselves.
	txMu sync.Mutex
}

func NewDatabase() *Database {
	return &Database{now: time.Now}
}

// state is what a unit of work restores on rollback.
type state struct {
	sessions []*entity.SupportSession
	messages []*entity.SupportMessage
}

func (d *Database) lock() {
	d.txMu.Lock()
}

func (d *Database) unlock() {
	d.txMu.Unlock()
}

func (d *Database) snapshot() state {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := state{
		sessions: make([]*entity.SupportSession, len(d.sessions)),
		messages: make([]*entity.SupportMessage, len(d.messages)),
	}
	for i, row := range d.sessions {
		s.sessions[i] = cloneSession(row)
	}
	for i, row := range d.messages {
		s.messages[i] = cloneMessage(row)
	}
	return s
}

func (d *Database) restore(s state) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions = s.sessions
	d.messages = s.messages
}

func (d *Database) stamp(id *uuid.UUID, createdAt *time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if createdAt.IsZero() {
		*createdAt = d.now()
	}
}

func cloneSession(s *entity.SupportSession) *entity.SupportSession {
	c := *s
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		c.ClosedAt = &t
	}
	if s.UpdatedAt != nil {
		t := *s.UpdatedAt
		c.UpdatedAt = &t
	}
	return &c
}

func cloneMessage(m *entity.SupportMessage) *entity.SupportMessage {
	c := *m
	if m.SessionId != nil {
		id := *m.SessionId
		c.SessionId = &id
	}
	return &c
}
