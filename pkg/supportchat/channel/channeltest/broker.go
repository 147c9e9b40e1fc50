// Package channeltest provides an in-memory realtime transport for tests and
// offline runs of the chat client.
package channeltest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"tourbook-chat/pkg/events"
	"tourbook-chat/pkg/supportchat/channel"
)

// Broker routes published envelopes to every live subscription of a channel.
// Delivery is synchronous, on the publisher's goroutine, in publish order.
type Broker struct {
	mu    sync.Mutex
	subs  map[string][]*Subscription
	conns []*Conn

	DialErr error
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string][]*Subscription)}
}

// Dial implements channel.Dialer.
func (b *Broker) Dial(ctx context.Context) (channel.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.DialErr != nil {
		return nil, b.DialErr
	}
	c := &Conn{broker: b, state: channel.StateConnected}
	b.conns = append(b.conns, c)
	return c, nil
}

// Publish marshals payload and delivers it as event on channelName.
func (b *Broker) Publish(channelName, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.PublishRaw(channelName, events.Envelope{Event: event, Data: data})
}

func (b *Broker) PublishRaw(channelName string, env events.Envelope) error {
	b.mu.Lock()
	subs := append([]*Subscription(nil), b.subs[channelName]...)
	b.mu.Unlock()

	for _, s := range subs {
		s.deliver(env)
	}
	return nil
}

// LiveSubscriptions counts subscriptions on channelName.
func (b *Broker) LiveSubscriptions(channelName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channelName])
}

// Conns returns every connection dialed so far.
func (b *Broker) Conns() []*Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Conn(nil), b.conns...)
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[s.name]
	for i, x := range list {
		if x == s {
			b.subs[s.name] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[s.name]) == 0 {
		delete(b.subs, s.name)
	}
}

// Conn is an in-memory channel.Connection.
type Conn struct {
	broker *Broker

	mu    sync.Mutex
	state channel.ConnectionState
	subs  []*Subscription

	UnsubscribeErr error
	DisconnectErr  error
	// PanicOnUnsubscribe mimics transports that throw on a half-closed socket.
	PanicOnUnsubscribe bool

	Unsubscribes int
	Disconnects  int
}

func (c *Conn) State() channel.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState forces the connection into s.
func (c *Conn) SetState(s channel.ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Conn) Subscribe(name string, deliver channel.Deliver) (channel.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !channel.Allows(c.state, channel.OpSubscribe) {
		return nil, errors.New("channeltest: connection not open")
	}
	s := &Subscription{conn: c, name: name, deliverFn: deliver}
	c.subs = append(c.subs, s)

	c.broker.mu.Lock()
	c.broker.subs[name] = append(c.broker.subs[name], s)
	c.broker.mu.Unlock()
	return s, nil
}

// Disconnect closes the connection. With DisconnectErr set it fails and
// leaves everything routed, like a socket stuck half-closed.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	c.Disconnects++
	if c.DisconnectErr != nil {
		err := c.DisconnectErr
		c.mu.Unlock()
		return err
	}
	c.state = channel.StateClosed
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, s := range subs {
		c.broker.remove(s)
	}
	return nil
}

type Subscription struct {
	conn      *Conn
	name      string
	deliverFn channel.Deliver

	mu     sync.Mutex
	closed bool
}

func (s *Subscription) Channel() string {
	return s.name
}

func (s *Subscription) Unsubscribe() error {
	s.conn.mu.Lock()
	s.conn.Unsubscribes++
	panicNow := s.conn.PanicOnUnsubscribe
	err := s.conn.UnsubscribeErr
	s.conn.mu.Unlock()

	if panicNow {
		panic("channeltest: socket already closing")
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.conn.broker.remove(s)
	return nil
}

func (s *Subscription) deliver(env events.Envelope) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.deliverFn(env)
}
