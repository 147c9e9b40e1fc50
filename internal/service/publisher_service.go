package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"tourbook-chat/pkg/events"
)

// IPublisherService queues channel events on the in-process bus. The relay
// service picks them up and hands them to the realtime transport.
type IPublisherService interface {
	Publish(ctx context.Context, e events.Event) error
}

// channelRecord is the bus payload. Data stays raw so the relay can forward
// it without knowing the payload type.
type channelRecord struct {
	Type       string          `json:"type"`
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type publisherService struct {
	topicName string
	pubSub    message.Publisher
}

func NewPublisherService(topicName string, pubSub message.Publisher) IPublisherService {
	return &publisherService{
		topicName: topicName,
		pubSub:    pubSub,
	}
}

func (ps *publisherService) Publish(ctx context.Context, e events.Event) error {
	data, err := json.Marshal(e.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", e.EventType(), err)
	}
	payload, err := json.Marshal(channelRecord{
		Type:       e.EventType(),
		Channel:    e.Channel(),
		Data:       data,
		OccurredAt: e.Timestamp(),
	})
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return ps.pubSub.Publish(ps.topicName, msg)
}
