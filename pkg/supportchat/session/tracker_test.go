package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tourbook-chat/pkg/supportchat"
)

func info(s supportchat.SessionStatus) *supportchat.SessionInfo {
	return &supportchat.SessionInfo{Status: s}
}

func TestTracker_StartsUnknownAndWritable(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, supportchat.SessionUnknown, tr.Status())
	assert.NoError(t, tr.CheckWritable())
}

func TestTracker_ObserveNilKeepsUnknown(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.Observe(nil))
	assert.Equal(t, supportchat.SessionUnknown, tr.Status())
}

func TestTracker_Lifecycle(t *testing.T) {
	tr := NewTracker()

	assert.True(t, tr.Observe(info(supportchat.SessionActive)))
	assert.True(t, tr.Close())
	assert.ErrorIs(t, tr.CheckWritable(), ErrSessionClosed)

	assert.True(t, tr.Delete())
	assert.ErrorIs(t, tr.CheckWritable(), ErrSessionDeleted)

	assert.True(t, tr.Restart())
	assert.Equal(t, supportchat.SessionActive, tr.Status())
	assert.NoError(t, tr.CheckWritable())
}

func TestTracker_FetchedActiveNeverReopensTerminal(t *testing.T) {
	for _, terminal := range []supportchat.SessionStatus{supportchat.SessionClosed, supportchat.SessionDeleted} {
		t.Run(string(terminal), func(t *testing.T) {
			tr := NewTracker()
			tr.Observe(info(terminal))

			assert.False(t, tr.Observe(info(supportchat.SessionActive)))
			assert.Equal(t, terminal, tr.Status())
		})
	}
}

func TestTracker_UnknownStatusStringIsUnknown(t *testing.T) {
	tr := NewTracker()
	tr.Observe(info("archived"))
	assert.Equal(t, supportchat.SessionUnknown, tr.Status())
}

func TestTracker_ResetAlwaysAllowed(t *testing.T) {
	tr := NewTracker()
	tr.Delete()
	tr.Reset()
	assert.Equal(t, supportchat.SessionUnknown, tr.Status())
}

func TestAllowed_Table(t *testing.T) {
	tests := []struct {
		name  string
		cause Cause
		from  supportchat.SessionStatus
		to    supportchat.SessionStatus
		want  bool
	}{
		{"fetch finds session", CauseObserved, supportchat.SessionUnknown, supportchat.SessionActive, true},
		{"channel closes active", CauseChannel, supportchat.SessionActive, supportchat.SessionClosed, true},
		{"channel deletes closed", CauseChannel, supportchat.SessionClosed, supportchat.SessionDeleted, true},
		{"channel cannot reopen", CauseChannel, supportchat.SessionDeleted, supportchat.SessionActive, false},
		{"deleted cannot go back to closed", CauseChannel, supportchat.SessionDeleted, supportchat.SessionClosed, false},
		{"restart from deleted", CauseRestart, supportchat.SessionDeleted, supportchat.SessionActive, true},
		{"restart only targets active", CauseRestart, supportchat.SessionActive, supportchat.SessionClosed, false},
		{"fetch cannot reopen closed", CauseObserved, supportchat.SessionClosed, supportchat.SessionActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Allowed(tt.cause, tt.from, tt.to))
		})
	}
}
