package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"tourbook-chat/internal/pkg/logger"
	"tourbook-chat/pkg/events"
)

const (
	// StreamName captures every support channel for audit and replay.
	StreamName = "SUPPORT_CHAT"
	streamAge  = 7 * 24 * time.Hour
)

// Publisher sends channel events to the NATS subject named after the channel.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger logger.ILogger
}

// NewPublisher connects to url and makes sure the stream for channelPrefix
// exists. A failure to create the stream is logged, not fatal: core NATS
// subscribers still receive every publish.
func NewPublisher(url, channelPrefix string, log logger.ILogger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("support-chat-publisher"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{channelPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    streamAge,
	})
	if err != nil {
		log.Warn("NATS", "Failed to ensure support chat stream", map[string]interface{}{
			"stream": StreamName,
			"error":  err.Error(),
		})
	}

	return &Publisher{nc: nc, js: js, logger: log}, nil
}

// Publish encodes e as a channel envelope and publishes it on e.Channel().
func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	data, err := events.Encode(e)
	if err != nil {
		return err
	}

	subject := e.Channel()
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}
	return nil
}

// Connected reports whether the connection is up. With RetryOnFailedConnect
// NewPublisher succeeds even when the server is unreachable.
func (p *Publisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
