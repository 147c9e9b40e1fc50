// Package session tracks the lifecycle of the human support session and gates
// outgoing writes on it.
package session

import (
	"errors"
	"sync"

	"tourbook-chat/pkg/supportchat"
)

var (
	ErrSessionClosed  = errors.New("support session is closed")
	ErrSessionDeleted = errors.New("support session was deleted")
)

// Cause records what drove a transition.
type Cause int

const (
	// CauseObserved is a status read from the session status API.
	CauseObserved Cause = iota
	// CauseChannel is a session-closed or session-deleted channel event.
	CauseChannel
	// CauseRestart is a successful new-session request.
	CauseRestart
)

type edge struct {
	from, to supportchat.SessionStatus
}

// transitions lists the legal (from, to) pairs per cause. Anything absent is
// ignored. Reset to unknown is always allowed and handled separately.
var transitions = map[Cause]map[edge]bool{
	CauseObserved: {
		{supportchat.SessionUnknown, supportchat.SessionUnknown}: true,
		{supportchat.SessionUnknown, supportchat.SessionActive}:  true,
		{supportchat.SessionUnknown, supportchat.SessionClosed}:  true,
		{supportchat.SessionUnknown, supportchat.SessionDeleted}: true,
		{supportchat.SessionActive, supportchat.SessionActive}:   true,
		{supportchat.SessionActive, supportchat.SessionClosed}:   true,
		{supportchat.SessionActive, supportchat.SessionDeleted}:  true,
		{supportchat.SessionClosed, supportchat.SessionDeleted}:  true,
		{supportchat.SessionClosed, supportchat.SessionClosed}:   true,
		{supportchat.SessionDeleted, supportchat.SessionDeleted}: true,
	},
	CauseChannel: {
		{supportchat.SessionUnknown, supportchat.SessionClosed}:  true,
		{supportchat.SessionUnknown, supportchat.SessionDeleted}: true,
		{supportchat.SessionActive, supportchat.SessionClosed}:   true,
		{supportchat.SessionActive, supportchat.SessionDeleted}:  true,
		{supportchat.SessionClosed, supportchat.SessionClosed}:   true,
		{supportchat.SessionClosed, supportchat.SessionDeleted}:  true,
		{supportchat.SessionDeleted, supportchat.SessionDeleted}: true,
	},
	CauseRestart: {
		{supportchat.SessionUnknown, supportchat.SessionActive}: true,
		{supportchat.SessionActive, supportchat.SessionActive}:  true,
		{supportchat.SessionClosed, supportchat.SessionActive}:  true,
		{supportchat.SessionDeleted, supportchat.SessionActive}: true,
	},
}

// Allowed reports whether cause may move the session from one status to another.
func Allowed(cause Cause, from, to supportchat.SessionStatus) bool {
	return transitions[cause][edge{from, to}]
}

type Tracker struct {
	mu     sync.RWMutex
	status supportchat.SessionStatus
}

func NewTracker() *Tracker {
	return &Tracker{status: supportchat.SessionUnknown}
}

func (t *Tracker) Status() supportchat.SessionStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Transition applies to when the table allows it and reports whether the
// status changed.
func (t *Tracker) Transition(cause Cause, to supportchat.SessionStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !Allowed(cause, t.status, to) {
		return false
	}
	changed := t.status != to
	t.status = to
	return changed
}

// Observe applies a fetched status. A nil session leaves the tracker where it
// is: a user who never opened a session is not an error.
func (t *Tracker) Observe(info *supportchat.SessionInfo) bool {
	if info == nil {
		return false
	}
	return t.Transition(CauseObserved, supportchat.ParseSessionStatus(string(info.Status)))
}

func (t *Tracker) Close() bool {
	return t.Transition(CauseChannel, supportchat.SessionClosed)
}

func (t *Tracker) Delete() bool {
	return t.Transition(CauseChannel, supportchat.SessionDeleted)
}

func (t *Tracker) Restart() bool {
	return t.Transition(CauseRestart, supportchat.SessionActive)
}

// Reset forgets the current status.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = supportchat.SessionUnknown
}

// CheckWritable rejects sends locally for terminal sessions.
func (t *Tracker) CheckWritable() error {
	switch t.Status() {
	case supportchat.SessionClosed:
		return ErrSessionClosed
	case supportchat.SessionDeleted:
		return ErrSessionDeleted
	default:
		return nil
	}
}
