package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"tourbook-chat/internal/pkg/logger"
	"tourbook-chat/pkg/events"
)

// EnvelopeHandler receives one channel envelope as it was published.
type EnvelopeHandler func(ctx context.Context, channel string, envelope []byte) error

// Consumer reads the support chat stream through a durable consumer so a
// restarted server resumes where it stopped.
type Consumer struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	cc     jetstream.ConsumeContext
	logger logger.ILogger
}

func NewConsumer(url string, log logger.ILogger) (*Consumer, error) {
	nc, err := nats.Connect(url,
		nats.Name("support-chat-consumer"),
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

	return &Consumer{nc: nc, js: js, logger: log}, nil
}

// Consume starts delivering every envelope published under subject. Malformed
// envelopes are terminated, handler failures are redelivered.
func (c *Consumer) Consume(ctx context.Context, subject, durableName string, handler EnvelopeHandler) error {
	if c.cc != nil {
		return errors.New("consumer already running")
	}

	consumer, err := c.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if _, err := events.Decode(msg.Data()); err != nil {
			c.logger.Warn("NATS", "Dropping malformed channel envelope", map[string]interface{}{
				"subject": msg.Subject(),
				"error":   err.Error(),
			})
			_ = msg.Term()
			return
		}

		if err := handler(ctx, msg.Subject(), msg.Data()); err != nil {
			c.logger.Error("NATS", "Envelope handler failed", map[string]interface{}{
				"subject": msg.Subject(),
				"error":   err.Error(),
			})
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	c.cc = cc

	c.logger.Info("NATS", "Consuming support chat stream", map[string]interface{}{
		"subject": subject,
		"durable": durableName,
	})
	return nil
}

// Close stops consumption and closes the connection.
func (c *Consumer) Close() {
	if c.cc != nil {
		c.cc.Stop()
		c.cc = nil
	}
	if c.nc != nil {
		c.nc.Close()
	}
}
