package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourbook-chat/internal/pkg/logger"
	"tourbook-chat/pkg/events"
	"tourbook-chat/pkg/supportchat"
)

type flakySink struct {
	mu       sync.Mutex
	failures int
	calls    int
	got      []events.Event
}

func (s *flakySink) Publish(_ context.Context, e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("transport down")
	}
	s.got = append(s.got, e)
	return nil
}

func (s *flakySink) snapshot() (int, []events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, append([]events.Event(nil), s.got...)
}

const topic = "support_chat_events"

func startRelay(t *testing.T, sink ChannelSink) IPublisherService {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })

	relay := NewRelayService(pubSub, topic, sink, logger.NewNopLogger()).(*relayService)
	relay.backoff = time.Millisecond
	require.NoError(t, relay.Start(ctx))
	return NewPublisherService(topic, pubSub)
}

func TestRelay_ForwardsEnvelopeUnchanged(t *testing.T) {
	sink := &flakySink{}
	pub := startRelay(t, sink)

	err := pub.Publish(context.Background(), events.ChannelEvent{
		Type:       supportchat.EventMessagesDeleted,
		Target:     "support-chat.u1",
		Data:       supportchat.MessagesDeletedPayload{MessageIDs: []string{"m1", "m2"}},
		OccurredAt: time.Now(),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, got := sink.snapshot()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	_, got := sink.snapshot()
	assert.Equal(t, supportchat.EventMessagesDeleted, got[0].EventType())
	assert.Equal(t, "support-chat.u1", got[0].Channel())

	raw, err := events.Encode(got[0])
	require.NoError(t, err)
	env, err := events.Decode(raw)
	require.NoError(t, err)
	var payload supportchat.MessagesDeletedPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, []string{"m1", "m2"}, payload.MessageIDs)
}

func TestRelay_EmptyPayloadBecomesObject(t *testing.T) {
	sink := &flakySink{}
	pub := startRelay(t, sink)

	require.NoError(t, pub.Publish(context.Background(), events.ChannelEvent{
		Type:   supportchat.EventMessagesCleared,
		Target: "support-chat.u1",
	}))

	require.Eventually(t, func() bool {
		_, got := sink.snapshot()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)
	_, got := sink.snapshot()
	raw, err := events.Encode(got[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"messages-cleared","data":{}}`, string(raw))
}

func TestRelay_RetriesThenGivesUp(t *testing.T) {
	sink := &flakySink{failures: 2}
	pub := startRelay(t, sink)

	require.NoError(t, pub.Publish(context.Background(), events.ChannelEvent{Type: "new-message", Target: "support-chat.u1", Data: struct{}{}}))
	require.Eventually(t, func() bool {
		_, got := sink.snapshot()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	sink.failures = maxRelayAttempts
	sink.mu.Unlock()
	require.NoError(t, pub.Publish(context.Background(), events.ChannelEvent{Type: "new-message", Target: "support-chat.u1", Data: struct{}{}}))
	require.Eventually(t, func() bool {
		calls, _ := sink.snapshot()
		return calls == 3+maxRelayAttempts
	}, time.Second, 5*time.Millisecond)

	// the relay keeps going after dropping an event
	require.NoError(t, pub.Publish(context.Background(), events.ChannelEvent{Type: "new-message", Target: "support-chat.u1", Data: struct{}{}}))
	require.Eventually(t, func() bool {
		_, got := sink.snapshot()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestRelay_DropsMalformedMessages(t *testing.T) {
	sink := &flakySink{}
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, NewRelayService(pubSub, topic, sink, logger.NewNopLogger()).Start(ctx))

	require.NoError(t, pubSub.Publish(topic, message.NewMessage(watermill.NewUUID(), []byte("not json"))))
	require.NoError(t, NewPublisherService(topic, pubSub).Publish(ctx, events.ChannelEvent{Type: "new-message", Target: "support-chat.u1", Data: struct{}{}}))

	require.Eventually(t, func() bool {
		calls, _ := sink.snapshot()
		return calls == 1
	}, time.Second, 5*time.Millisecond)
}
