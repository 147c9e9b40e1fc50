// Package channel owns the live subscription to a user's support channel.
//
// A Manager holds at most one connection and one subscription. Opening a new
// subscription always tears the previous one down first, and teardown never
// fails: handlers are unbound, then unsubscribe and disconnect are issued only
// when the connection state allows them (see Allows). Transport errors raised
// by a socket that is already going away are swallowed.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"tourbook-chat/internal/pkg/logger"
	"tourbook-chat/pkg/events"
	"tourbook-chat/pkg/supportchat"
)

const module = "Channel"

var (
	ErrNotConfigured = errors.New("realtime channel is not configured")
	ErrNoUser        = errors.New("no authenticated user for realtime channel")
)

// Listener receives decoded channel events.
type Listener interface {
	// MessageReceived reports whether the message was new to the listener.
	MessageReceived(msg supportchat.Message) bool
	SessionClosed(info *supportchat.SessionInfo)
	SessionDeleted(clearMessages bool)
	MessagesCleared()
	NewSessionCreated()
	MessageDeleted(id supportchat.ConfirmedID)
	MessagesDeleted(ids []supportchat.ConfirmedID)
}

// Alerter is told about every newly accepted support-authored message.
type Alerter interface {
	SupportMessageArrived(msg supportchat.Message)
}

type handler func(raw json.RawMessage) error

// binding is the handler table of one subscription. Unbinding it makes any
// envelope still in flight a no-op.
type binding struct {
	mu       sync.RWMutex
	handlers map[string]handler
}

func (b *binding) bind(event string, h handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[string]handler)
	}
	b.handlers[event] = h
}

func (b *binding) unbindAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = nil
}

func (b *binding) lookup(event string) (handler, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.handlers[event]
	return h, ok
}

type handle struct {
	conn    Connection
	sub     Subscription
	binding *binding
}

type Manager struct {
	mu      sync.Mutex
	dialer  Dialer
	prefix  string
	alerter Alerter
	logger  logger.ILogger
	dev     bool
	current *handle

	seenMu   sync.Mutex
	lastSeen string
}

type Option func(*Manager)

func WithPrefix(prefix string) Option {
	return func(m *Manager) { m.prefix = prefix }
}

func WithAlerter(a Alerter) Option {
	return func(m *Manager) { m.alerter = a }
}

func WithLogger(l logger.ILogger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithDevelopment enables logging of swallowed teardown errors.
func WithDevelopment(dev bool) Option {
	return func(m *Manager) { m.dev = dev }
}

// NewManager creates a manager. A nil dialer is allowed: Open then reports
// ErrNotConfigured and the caller keeps working without realtime updates.
func NewManager(dialer Dialer, opts ...Option) *Manager {
	m := &Manager{
		dialer: dialer,
		prefix: supportchat.DefaultChannelPrefix,
		logger: logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open tears down any live subscription, connects, subscribes to the channel
// of userID and binds every support channel event to l.
func (m *Manager) Open(ctx context.Context, userID string, l Listener) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked()

	if m.dialer == nil {
		return ErrNotConfigured
	}
	if userID == "" {
		return ErrNoUser
	}

	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("dial realtime channel: %w", err)
	}

	name := supportchat.ChannelName(m.prefix, userID)
	b := &binding{}
	m.bindAll(b, l)

	sub, err := conn.Subscribe(name, func(env events.Envelope) {
		m.dispatch(b, env)
	})
	if err != nil {
		b.unbindAll()
		m.disconnect(conn)
		return fmt.Errorf("subscribe %s: %w", name, err)
	}

	m.seenMu.Lock()
	m.lastSeen = ""
	m.seenMu.Unlock()

	m.current = &handle{conn: conn, sub: sub, binding: b}
	m.logger.Info(module, "Subscribed to support channel", map[string]interface{}{"channel": name})
	return nil
}

// Close tears down the live subscription, if any. It is safe to call any
// number of times.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

// Active reports whether a subscription is live.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Channel returns the name of the live channel, or "".
func (m *Manager) Channel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.sub == nil {
		return ""
	}
	return m.current.sub.Channel()
}

func (m *Manager) teardownLocked() {
	h := m.current
	if h == nil {
		return
	}
	m.current = nil

	h.binding.unbindAll()

	if h.sub != nil && Allows(h.conn.State(), OpUnsubscribe) {
		if err := guard(h.sub.Unsubscribe); err != nil {
			m.swallowed("unsubscribe", err)
		}
	}
	m.disconnect(h.conn)
}

func (m *Manager) disconnect(conn Connection) {
	if !Allows(conn.State(), OpDisconnect) {
		return
	}
	if err := guard(conn.Disconnect); err != nil {
		m.swallowed("disconnect", err)
	}
}

func (m *Manager) swallowed(op string, err error) {
	if !m.dev {
		return
	}
	m.logger.Debug(module, "Ignored transport error during teardown", map[string]interface{}{
		"operation": op,
		"error":     err.Error(),
	})
}

// guard turns a panicking transport call into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return fn()
}

func (m *Manager) dispatch(b *binding, env events.Envelope) {
	h, ok := b.lookup(env.Event)
	if !ok {
		return
	}
	if err := h(env.Data); err != nil {
		m.logger.Warn(module, "Dropped malformed channel event", map[string]interface{}{
			"event": env.Event,
			"error": err.Error(),
		})
	}
}

// markSeen reports whether id differs from the last delivered message id.
func (m *Manager) markSeen(id string) bool {
	m.seenMu.Lock()
	defer m.seenMu.Unlock()
	if id == m.lastSeen {
		return false
	}
	m.lastSeen = id
	return true
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func (m *Manager) bindAll(b *binding, l Listener) {
	b.bind(supportchat.EventNewMessage, func(raw json.RawMessage) error {
		var p supportchat.NewMessagePayload
		if err := decode(raw, &p); err != nil {
			return err
		}
		if p.Message.ID == "" {
			return errors.New("new-message without id")
		}
		// AI replies are delivered over request/response only
		if p.Message.AuthoredByAI {
			return nil
		}
		if !m.markSeen(p.Message.ID) {
			return nil
		}
		msg := p.Message.ToMessage()
		if l.MessageReceived(msg) && msg.AuthoredBySupport && m.alerter != nil {
			m.alerter.SupportMessageArrived(msg)
		}
		return nil
	})

	b.bind(supportchat.EventSessionClosed, func(raw json.RawMessage) error {
		var p supportchat.SessionClosedPayload
		if err := decode(raw, &p); err != nil {
			return err
		}
		l.SessionClosed(p.Session)
		return nil
	})

	b.bind(supportchat.EventSessionDeleted, func(raw json.RawMessage) error {
		var p supportchat.SessionDeletedPayload
		if err := decode(raw, &p); err != nil {
			return err
		}
		clearMessages := true
		if p.ClearMessages != nil {
			clearMessages = *p.ClearMessages
		}
		l.SessionDeleted(clearMessages)
		return nil
	})

	b.bind(supportchat.EventMessagesCleared, func(json.RawMessage) error {
		l.MessagesCleared()
		return nil
	})

	b.bind(supportchat.EventNewSessionCreated, func(json.RawMessage) error {
		l.NewSessionCreated()
		return nil
	})

	b.bind(supportchat.EventMessageDeleted, func(raw json.RawMessage) error {
		var p supportchat.MessageDeletedPayload
		if err := decode(raw, &p); err != nil {
			return err
		}
		if p.MessageID == "" {
			return errors.New("message-deleted without id")
		}
		l.MessageDeleted(supportchat.ConfirmedID(p.MessageID))
		return nil
	})

	b.bind(supportchat.EventMessagesDeleted, func(raw json.RawMessage) error {
		var p supportchat.MessagesDeletedPayload
		if err := decode(raw, &p); err != nil {
			return err
		}
		ids := make([]supportchat.ConfirmedID, 0, len(p.MessageIDs))
		for _, id := range p.MessageIDs {
			ids = append(ids, supportchat.ConfirmedID(id))
		}
		l.MessagesDeleted(ids)
		return nil
	})
}
