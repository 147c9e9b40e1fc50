package channel

import (
	"context"

	"tourbook-chat/pkg/events"
)

// Deliver receives every envelope published on a subscribed channel, in the
// order the transport delivers them.
type Deliver func(env events.Envelope)

// Dialer opens a connection to the realtime backbone.
type Dialer interface {
	Dial(ctx context.Context) (Connection, error)
}

// Connection is the parent of channel subscriptions.
type Connection interface {
	State() ConnectionState
	Subscribe(channel string, deliver Deliver) (Subscription, error)
	Disconnect() error
}

type Subscription interface {
	Channel() string
	Unsubscribe() error
}
