package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"tourbook-chat/internal/pkg/logger"
	"tourbook-chat/internal/pkg/metrics"
	"tourbook-chat/pkg/events"
)

const (
	maxRelayAttempts = 3
	relayBackoff     = 200 * time.Millisecond
)

// ChannelSink is where the relay hands channel events: the NATS publisher, or
// the websocket hub directly when the server runs without NATS.
type ChannelSink interface {
	Publish(ctx context.Context, e events.Event) error
}

type IRelayService interface {
	Start(ctx context.Context) error
}

type relayService struct {
	subscriber message.Subscriber
	topicName  string
	sink       ChannelSink
	logger     logger.ILogger
	backoff    time.Duration
}

func NewRelayService(subscriber message.Subscriber, topicName string, sink ChannelSink, log logger.ILogger) IRelayService {
	return &relayService{
		subscriber: subscriber,
		topicName:  topicName,
		sink:       sink,
		logger:     log,
		backoff:    relayBackoff,
	}
}

// Start subscribes to the bus and forwards until ctx is done.
func (rs *relayService) Start(ctx context.Context) error {
	messages, err := rs.subscriber.Subscribe(ctx, rs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			rs.forward(ctx, msg)
		}
	}()

	rs.logger.Info("RelayService", "Relaying channel events", map[string]interface{}{"topic": rs.topicName})
	return nil
}

// forward always acks: a channel event that cannot be delivered is lost, and
// clients recover it from history on their next load.
func (rs *relayService) forward(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var rec channelRecord
	if err := json.Unmarshal(msg.Payload, &rec); err != nil || rec.Type == "" || rec.Channel == "" {
		rs.logger.Error("RelayService", "Dropping malformed bus message", map[string]interface{}{"uuid": msg.UUID})
		metrics.ChannelEventsDropped.WithLabelValues("malformed").Inc()
		return
	}

	evt := events.ChannelEvent{
		Type:       rec.Type,
		Target:     rec.Channel,
		Data:       rec.Data,
		OccurredAt: rec.OccurredAt,
	}

	for attempt := 1; ; attempt++ {
		err := rs.sink.Publish(ctx, evt)
		if err == nil {
			metrics.ChannelEventsDelivered.WithLabelValues(rec.Type).Inc()
			return
		}
		if attempt == maxRelayAttempts || ctx.Err() != nil {
			rs.logger.Error("RelayService", "Failed to deliver channel event", map[string]interface{}{
				"event":    rec.Type,
				"channel":  rec.Channel,
				"attempts": attempt,
				"error":    err.Error(),
			})
			metrics.ChannelEventsDropped.WithLabelValues("sink").Inc()
			return
		}
		select {
		case <-ctx.Done():
		case <-time.After(rs.backoff * time.Duration(attempt)):
		}
	}
}
