// Package notify alerts the user when an operator replies: an audible cue
// every time, plus a platform notification (or a toast when notifications are
// denied) while the chat view is hidden or unfocused.
package notify

import (
	"context"
	"sync"

	"tourbook-chat/internal/pkg/logger"
	"tourbook-chat/pkg/supportchat"
)

const module = "Notify"

// Permission follows the browser notification permission model.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Sound plays the audible cue.
type Sound interface {
	Play() error
}

// Notifier raises platform notifications.
type Notifier interface {
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Show(title, body string) error
}

// Toaster is the in-app fallback when platform notifications are denied.
type Toaster interface {
	Toast(text string)
}

// Visibility reports whether the chat view is out of the user's sight.
type Visibility interface {
	Hidden() bool
}

type Sink struct {
	sound      Sound
	notifier   Notifier
	toaster    Toaster
	visibility Visibility
	logger     logger.ILogger
	title      string

	askOnce sync.Once
}

type Option func(*Sink)

func WithNotifier(n Notifier) Option {
	return func(s *Sink) { s.notifier = n }
}

func WithToaster(t Toaster) Option {
	return func(s *Sink) { s.toaster = t }
}

func WithVisibility(v Visibility) Option {
	return func(s *Sink) { s.visibility = v }
}

func WithLogger(l logger.ILogger) Option {
	return func(s *Sink) { s.logger = l }
}

func WithTitle(title string) Option {
	return func(s *Sink) { s.title = title }
}

func NewSink(sound Sound, opts ...Option) *Sink {
	s := &Sink{
		sound:  sound,
		logger: logger.NewNopLogger(),
		title:  "Tour support",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsurePermission asks for notification permission the first time the chat
// opens, and only while the permission is still undecided.
func (s *Sink) EnsurePermission(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	s.askOnce.Do(func() {
		if s.notifier.Permission() != PermissionDefault {
			return
		}
		p, err := s.notifier.RequestPermission(ctx)
		if err != nil {
			s.logger.Warn(module, "Notification permission request failed", map[string]interface{}{"error": err.Error()})
			return
		}
		s.logger.Info(module, "Notification permission decided", map[string]interface{}{"permission": string(p)})
	})
}

// SupportMessageArrived implements channel.Alerter.
func (s *Sink) SupportMessageArrived(msg supportchat.Message) {
	if s.sound != nil {
		if err := s.sound.Play(); err != nil {
			s.logger.Debug(module, "Notification sound failed", map[string]interface{}{"error": err.Error()})
		}
	}

	if s.visibility == nil || !s.visibility.Hidden() {
		return
	}

	perm := PermissionDenied
	if s.notifier != nil {
		perm = s.notifier.Permission()
	}
	if perm == PermissionGranted {
		err := s.notifier.Show(s.title, preview(msg.Text))
		if err == nil {
			return
		}
		s.logger.Warn(module, "Platform notification failed", map[string]interface{}{"error": err.Error()})
	}
	if s.toaster != nil {
		s.toaster.Toast(preview(msg.Text))
	}
}

const previewRunes = 120

func preview(text string) string {
	r := []rune(text)
	if len(r) <= previewRunes {
		return text
	}
	return string(r[:previewRunes-1]) + "…"
}
