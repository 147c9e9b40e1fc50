package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"tourbook-chat/pkg/supportchat"
)

type fakeSound struct{ plays int }

func (f *fakeSound) Play() error {
	f.plays++
	return nil
}

type fakeNotifier struct {
	perm     Permission
	decision Permission
	asked    int
	shown    []string
	showErr  error
}

func (f *fakeNotifier) Permission() Permission { return f.perm }

func (f *fakeNotifier) RequestPermission(context.Context) (Permission, error) {
	f.asked++
	f.perm = f.decision
	return f.perm, nil
}

func (f *fakeNotifier) Show(_, body string) error {
	if f.showErr != nil {
		return f.showErr
	}
	f.shown = append(f.shown, body)
	return nil
}

type fakeToaster struct{ toasts []string }

func (f *fakeToaster) Toast(text string) { f.toasts = append(f.toasts, text) }

func supportMsg(text string) supportchat.Message {
	return supportchat.Message{ID: supportchat.ConfirmedID("op1"), Text: text, AuthoredBySupport: true}
}

func TestSink_SoundAlwaysPlays(t *testing.T) {
	sound := &fakeSound{}
	n := &fakeNotifier{perm: PermissionGranted}
	focus := &Focus{}
	s := NewSink(sound, WithNotifier(n), WithVisibility(focus))

	s.SupportMessageArrived(supportMsg("visible"))

	assert.Equal(t, 1, sound.plays)
	assert.Empty(t, n.shown, "no platform notification while focused")
}

func TestSink_HiddenUsesPermission(t *testing.T) {
	tests := []struct {
		name       string
		perm       Permission
		showErr    error
		wantShown  int
		wantToasts int
	}{
		{name: "granted", perm: PermissionGranted, wantShown: 1},
		{name: "denied falls back to toast", perm: PermissionDenied, wantToasts: 1},
		{name: "undecided falls back to toast", perm: PermissionDefault, wantToasts: 1},
		{name: "show failure falls back to toast", perm: PermissionGranted, showErr: errors.New("dbus down"), wantToasts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &fakeNotifier{perm: tt.perm, showErr: tt.showErr}
			toaster := &fakeToaster{}
			focus := &Focus{}
			focus.SetHidden(true)
			s := NewSink(&fakeSound{}, WithNotifier(n), WithToaster(toaster), WithVisibility(focus))

			s.SupportMessageArrived(supportMsg("Your tour is confirmed"))

			assert.Len(t, n.shown, tt.wantShown)
			assert.Len(t, toaster.toasts, tt.wantToasts)
		})
	}
}

func TestSink_EnsurePermissionAsksOnce(t *testing.T) {
	n := &fakeNotifier{perm: PermissionDefault, decision: PermissionGranted}
	s := NewSink(nil, WithNotifier(n))

	s.EnsurePermission(context.Background())
	s.EnsurePermission(context.Background())

	assert.Equal(t, 1, n.asked)
	assert.Equal(t, PermissionGranted, n.Permission())
}

func TestSink_EnsurePermissionSkipsDecided(t *testing.T) {
	n := &fakeNotifier{perm: PermissionDenied}
	s := NewSink(nil, WithNotifier(n))

	s.EnsurePermission(context.Background())

	assert.Zero(t, n.asked)
}

func TestPreview_Truncates(t *testing.T) {
	long := strings.Repeat("é", 300)
	p := preview(long)
	assert.Equal(t, previewRunes, len([]rune(p)))
	assert.True(t, strings.HasSuffix(p, "…"))
	assert.Equal(t, "short", preview("short"))
}

func TestTerminalNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewTerminalNotifier(&buf, "")
	assert.Equal(t, PermissionDefault, n.Permission())

	p, err := n.RequestPermission(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, PermissionDenied, p, "no prompt means denied")

	n.Ask = func(context.Context) (bool, error) { return true, nil }
	p, err = n.RequestPermission(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, PermissionGranted, p)

	assert.NoError(t, n.Show("Tour support", "hello"))
	assert.Contains(t, buf.String(), "hello")

	var bell bytes.Buffer
	assert.NoError(t, Bell{W: &bell}.Play())
	assert.Equal(t, "\a", bell.String())
}
