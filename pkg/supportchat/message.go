// Package supportchat holds the types shared by the support chat client core
// and the backend that serves it: conversation modes, messages and their ids,
// session status, the wire format and the realtime channel vocabulary.
package supportchat

import (
	"time"

	"github.com/google/uuid"
)

// Mode selects which backend path a conversation is routed through.
type Mode string

const (
	ModeSupport Mode = "support"
	ModeAI      Mode = "ai"
)

func (m Mode) Valid() bool {
	return m == ModeSupport || m == ModeAI
}

// MessageID identifies a message in the store. It is either a PendingID for an
// optimistic placeholder or a ConfirmedID assigned by the server.
type MessageID interface {
	isMessageID()
	String() string
}

// PendingID marks a locally authored message that the server has not
// confirmed yet. It never leaves the client.
type PendingID struct {
	LocalID uuid.UUID
}

func NewPendingID() PendingID {
	return PendingID{LocalID: uuid.New()}
}

func (PendingID) isMessageID() {}

func (p PendingID) String() string {
	return "pending:" + p.LocalID.String()
}

// ConfirmedID is a server assigned message id.
type ConfirmedID string

func (ConfirmedID) isMessageID() {}

func (c ConfirmedID) String() string {
	return string(c)
}

type Message struct {
	ID                MessageID
	Text              string
	AuthoredBySupport bool
	AuthoredByAI      bool
	CreatedAt         time.Time
}

// Confirmed reports the server id of m, or false when m is a placeholder.
func (m Message) Confirmed() (ConfirmedID, bool) {
	id, ok := m.ID.(ConfirmedID)
	return id, ok
}

func (m Message) Pending() bool {
	_, ok := m.ID.(PendingID)
	return ok
}
