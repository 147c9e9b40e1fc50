package supportchat

// SessionStatus is the administrative state of the human support session.
type SessionStatus string

const (
	SessionUnknown SessionStatus = "unknown"
	SessionActive  SessionStatus = "active"
	SessionClosed  SessionStatus = "closed"
	SessionDeleted SessionStatus = "deleted"
)

// Terminal reports whether writes are rejected in this status.
func (s SessionStatus) Terminal() bool {
	return s == SessionClosed || s == SessionDeleted
}

func ParseSessionStatus(raw string) SessionStatus {
	switch SessionStatus(raw) {
	case SessionActive, SessionClosed, SessionDeleted:
		return SessionStatus(raw)
	default:
		return SessionUnknown
	}
}

// User is the authenticated account the conversation belongs to.
type User struct {
	ID string
}
