// Package nats carries support channel events over NATS: a JetStream
// publisher for the backend and a core NATS Dialer for chat clients.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"tourbook-chat/internal/pkg/logger"
	"tourbook-chat/pkg/events"
	"tourbook-chat/pkg/supportchat/channel"
)

// Dialer opens client connections for the channel manager.
type Dialer struct {
	URL    string
	Token  string
	Logger logger.ILogger
}

func NewDialer(url, token string, log logger.ILogger) *Dialer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Dialer{URL: url, Token: token, Logger: log}
}

// Dial implements channel.Dialer.
func (d *Dialer) Dial(ctx context.Context) (channel.Connection, error) {
	opts := []nats.Option{
		nats.Name("support-chat-client"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}
	if d.Token != "" {
		opts = append(opts, nats.Token(d.Token))
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(d.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Connection{nc: nc, logger: d.Logger}, nil
}

// Connection adapts a *nats.Conn to channel.Connection.
type Connection struct {
	nc     *nats.Conn
	logger logger.ILogger
}

// State maps the NATS client status onto the channel connection states.
func (c *Connection) State() channel.ConnectionState {
	return stateOf(c.nc.Status())
}

func stateOf(s nats.Status) channel.ConnectionState {
	switch s {
	case nats.CONNECTED:
		return channel.StateConnected
	case nats.CONNECTING, nats.RECONNECTING:
		return channel.StateConnecting
	case nats.DISCONNECTED:
		return channel.StateDisconnected
	case nats.DRAINING_SUBS, nats.DRAINING_PUBS:
		return channel.StateClosing
	case nats.CLOSED:
		return channel.StateClosed
	default:
		return channel.StateFailed
	}
}

// Subscribe listens on the subject named after the channel and hands every
// decodable envelope to deliver. NATS calls deliver from one goroutine per
// subscription, so envelopes keep their publish order.
func (c *Connection) Subscribe(name string, deliver channel.Deliver) (channel.Subscription, error) {
	sub, err := c.nc.Subscribe(name, func(msg *nats.Msg) {
		env, err := events.Decode(msg.Data)
		if err != nil {
			c.logger.Warn("NATS", "Dropped undecodable channel message", map[string]interface{}{
				"subject": msg.Subject,
				"error":   err.Error(),
			})
			return
		}
		deliver(env)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", name, err)
	}
	return &Subscription{sub: sub}, nil
}

func (c *Connection) Disconnect() error {
	c.nc.Close()
	return nil
}

type Subscription struct {
	sub *nats.Subscription
}

func (s *Subscription) Channel() string {
	return s.sub.Subject
}

func (s *Subscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}
