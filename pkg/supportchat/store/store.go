// Package store keeps the ordered, deduplicated message list of the active
// conversation.
//
// Merge rule: the first writer wins. Whichever path delivers a confirmed id
// first (history load, optimistic reconcile or channel event) is kept and any
// later arrival of the same id is a no-op.
package store

import (
	"sync"
	"time"

	"tourbook-chat/pkg/supportchat"
)

type Store struct {
	mu       sync.RWMutex
	messages []supportchat.Message
	seen     map[supportchat.ConfirmedID]struct{}
	now      func() time.Time
}

func New() *Store {
	return &Store{
		seen: make(map[supportchat.ConfirmedID]struct{}),
		now:  time.Now,
	}
}

// Insert appends msg unless a message with the same id is present. It reports
// whether the message was appended.
func (s *Store) Insert(msg supportchat.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(msg)
}

func (s *Store) insertLocked(msg supportchat.Message) bool {
	switch id := msg.ID.(type) {
	case supportchat.ConfirmedID:
		if _, dup := s.seen[id]; dup {
			return false
		}
		s.seen[id] = struct{}{}
	case supportchat.PendingID:
		if s.indexLocked(id) >= 0 {
			return false
		}
	default:
		return false
	}
	s.messages = append(s.messages, msg)
	return true
}

// InsertOptimistic appends a placeholder for a locally authored support
// message and returns its pending id.
func (s *Store) InsertOptimistic(text string) supportchat.PendingID {
	id := supportchat.NewPendingID()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, supportchat.Message{
		ID:        id,
		Text:      text,
		CreatedAt: s.now(),
	})
	return id
}

// Reconcile drops every pending placeholder and inserts the confirmed message.
// If the channel already delivered it, only the placeholders are dropped.
// It reports whether the confirmed message was newly appended.
func (s *Store) Reconcile(confirmed supportchat.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropPendingLocked()
	if _, ok := confirmed.Confirmed(); !ok {
		return false
	}
	return s.insertLocked(confirmed)
}

// DropPending removes every placeholder without inserting anything.
func (s *Store) DropPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropPendingLocked()
}

func (s *Store) dropPendingLocked() {
	kept := s.messages[:0]
	for _, m := range s.messages {
		if !m.Pending() {
			kept = append(kept, m)
		}
	}
	clearTail(s.messages, len(kept))
	s.messages = kept
}

// Discard rolls back a single placeholder.
func (s *Store) Discard(id supportchat.PendingID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	s.removeAtLocked(i)
	return true
}

func (s *Store) RemoveByID(id supportchat.ConfirmedID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; !ok {
		return false
	}
	delete(s.seen, id)
	i := s.indexLocked(id)
	if i >= 0 {
		s.removeAtLocked(i)
	}
	return true
}

// RemoveByIDs removes every listed id and returns how many were present.
func (s *Store) RemoveByIDs(ids []supportchat.ConfirmedID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	doomed := make(map[supportchat.ConfirmedID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.seen[id]; ok {
			doomed[id] = struct{}{}
			delete(s.seen, id)
		}
	}
	if len(doomed) == 0 {
		return 0
	}

	kept := s.messages[:0]
	for _, m := range s.messages {
		if id, ok := m.Confirmed(); ok {
			if _, drop := doomed[id]; drop {
				continue
			}
		}
		kept = append(kept, m)
	}
	clearTail(s.messages, len(kept))
	s.messages = kept
	return len(doomed)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.seen = make(map[supportchat.ConfirmedID]struct{})
}

// Load puts a history result in front of the current contents. Entries that
// arrived while the history was in flight (channel events, placeholders) stay
// after it unless the history already holds them. Duplicate ids keep their
// first occurrence.
func (s *Store) Load(history []supportchat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.messages
	s.messages = make([]supportchat.Message, 0, len(history)+len(live))
	s.seen = make(map[supportchat.ConfirmedID]struct{}, len(history)+len(live))
	for _, m := range history {
		s.insertLocked(m)
	}
	for _, m := range live {
		s.insertLocked(m)
	}
}

func (s *Store) Has(id supportchat.ConfirmedID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[id]
	return ok
}

func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages {
		if m.Pending() {
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Snapshot returns a copy of the messages in display order.
func (s *Store) Snapshot() []supportchat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]supportchat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) indexLocked(id supportchat.MessageID) int {
	for i, m := range s.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) removeAtLocked(i int) {
	copy(s.messages[i:], s.messages[i+1:])
	s.messages[len(s.messages)-1] = supportchat.Message{}
	s.messages = s.messages[:len(s.messages)-1]
}

// clearTail zeroes the slots past n so dropped messages can be collected.
func clearTail(msgs []supportchat.Message, n int) {
	for i := n; i < len(msgs); i++ {
		msgs[i] = supportchat.Message{}
	}
}
