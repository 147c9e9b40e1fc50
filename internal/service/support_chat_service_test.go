package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourbook-chat/internal/pkg/logger"
	"tourbook-chat/internal/repository/memory"
	"tourbook-chat/pkg/events"
	"tourbook-chat/pkg/llm"
	"tourbook-chat/pkg/supportchat"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

func (p *recordingPublisher) last(t *testing.T) events.Event {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.events)
	return p.events[len(p.events)-1]
}

type fakeLLM struct {
	reply   string
	err     error
	prompts [][]llm.Message
}

func (f *fakeLLM) Chat(_ context.Context, history []llm.Message, _ ...llm.Option) (string, error) {
	f.prompts = append(f.prompts, history)
	return f.reply, f.err
}

type harness struct {
	svc  ISupportChatService
	pub  *recordingPublisher
	llm  *fakeLLM
	user uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		pub:  &recordingPublisher{},
		llm:  &fakeLLM{reply: "Tours leave at 9am."},
		user: uuid.New(),
	}
	h.svc = NewSupportChatService(
		memory.NewRepositoryFactory(memory.NewDatabase()),
		h.pub,
		h.llm,
		nil,
		logger.NewNopLogger(),
		SupportChatOptions{ChannelPrefix: "support-chat", SystemPrompt: "be brief", ContextWindow: 4},
	)
	return h
}

func (h *harness) send(t *testing.T, mode supportchat.Mode, text string) *supportchat.SendResponse {
	t.Helper()
	res, err := h.svc.Send(context.Background(), h.user, &supportchat.SendRequest{Mode: mode, Text: text})
	require.NoError(t, err)
	return res
}

func wireTexts(msgs []supportchat.WireMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestSend_SupportOpensSessionAndBroadcasts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	info, err := h.svc.SessionStatus(ctx, h.user)
	require.NoError(t, err)
	assert.Nil(t, info)

	res := h.send(t, supportchat.ModeSupport, "  Hello  ")

	require.NotNil(t, res.Message)
	assert.Equal(t, "Hello", res.Message.Text)
	assert.False(t, res.Message.AuthoredBySupport)

	evt := h.pub.last(t)
	assert.Equal(t, supportchat.EventNewMessage, evt.EventType())
	assert.Equal(t, "support-chat."+h.user.String(), evt.Channel())
	assert.Equal(t, res.Message.ID, evt.Payload().(supportchat.NewMessagePayload).Message.ID)

	info, err = h.svc.SessionStatus(ctx, h.user)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, supportchat.SessionActive, info.Status)
}

func TestSend_RejectsEmptyText(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Send(context.Background(), h.user, &supportchat.SendRequest{Mode: supportchat.ModeSupport, Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Empty(t, h.pub.types())
}

func TestSend_RejectedOnTerminalSession(t *testing.T) {
	for _, tt := range []struct {
		name   string
		end    func(h *harness) error
		status supportchat.SessionStatus
		text   string
	}{
		{
			name: "closed",
			end: func(h *harness) error {
				_, err := h.svc.CloseSession(context.Background(), h.user)
				return err
			},
			status: supportchat.SessionClosed,
			text:   "This conversation was closed by support",
		},
		{
			name:   "deleted",
			end:    func(h *harness) error { return h.svc.DeleteSession(context.Background(), h.user, false) },
			status: supportchat.SessionDeleted,
			text:   "This conversation was deleted by support",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.send(t, supportchat.ModeSupport, "Hello")
			require.NoError(t, tt.end(h))

			_, err := h.svc.Send(context.Background(), h.user, &supportchat.SendRequest{Mode: supportchat.ModeSupport, Text: "anyone?"})

			var rejected *SessionRejectedError
			require.ErrorAs(t, err, &rejected)
			assert.Equal(t, tt.status, rejected.Status)
			assert.Equal(t, tt.text, rejected.Error())

			info, err := h.svc.SessionStatus(context.Background(), h.user)
			require.NoError(t, err)
			assert.Equal(t, tt.status, info.Status)
		})
	}
}

func TestHistory_SupportFollowsLatestSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.send(t, supportchat.ModeSupport, "old question")
	h.send(t, supportchat.ModeAI, "ai question")

	got, err := h.svc.History(ctx, h.user, supportchat.ModeSupport)
	require.NoError(t, err)
	assert.Equal(t, []string{"old question"}, wireTexts(got))

	require.NoError(t, h.svc.StartSession(ctx, h.user))
	assert.Equal(t, supportchat.EventNewSessionCreated, h.pub.last(t).EventType())

	got, err = h.svc.History(ctx, h.user, supportchat.ModeSupport)
	require.NoError(t, err)
	assert.Empty(t, got)

	h.send(t, supportchat.ModeSupport, "new question")
	got, err = h.svc.History(ctx, h.user, supportchat.ModeSupport)
	require.NoError(t, err)
	assert.Equal(t, []string{"new question"}, wireTexts(got))
}

func TestHistory_NoSessionIsEmpty(t *testing.T) {
	h := newHarness(t)
	got, err := h.svc.History(context.Background(), h.user, supportchat.ModeSupport)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = h.svc.History(context.Background(), h.user, supportchat.Mode("email"))
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestStartSession_ReopensAfterClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.send(t, supportchat.ModeSupport, "Hello")
	_, err := h.svc.CloseSession(ctx, h.user)
	require.NoError(t, err)

	require.NoError(t, h.svc.StartSession(ctx, h.user))

	info, err := h.svc.SessionStatus(ctx, h.user)
	require.NoError(t, err)
	assert.Equal(t, supportchat.SessionActive, info.Status)
	h.send(t, supportchat.ModeSupport, "back again")
}

func TestSend_AIStoresTheExchange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.send(t, supportchat.ModeAI, "When do tours leave?")

	require.Len(t, res.Messages, 2)
	assert.Nil(t, res.Message)
	assert.Equal(t, "When do tours leave?", res.Messages[0].Text)
	assert.False(t, res.Messages[0].AuthoredByAI)
	assert.Equal(t, "Tours leave at 9am.", res.Messages[1].Text)
	assert.True(t, res.Messages[1].AuthoredByAI)
	assert.Empty(t, h.pub.types(), "ai mode never uses the channel")

	h.llm.reply = "Bring a hat."
	h.send(t, supportchat.ModeAI, "What should I bring?")

	prompt := h.llm.prompts[1]
	require.Len(t, prompt, 4)
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: "be brief"}, prompt[0])
	assert.Equal(t, llm.RoleUser, prompt[1].Role)
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "Tours leave at 9am."}, prompt[2])
	assert.Equal(t, "What should I bring?", prompt[3].Content)

	got, err := h.svc.History(ctx, h.user, supportchat.ModeAI)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestSend_AIFailureStoresNothing(t *testing.T) {
	h := newHarness(t)
	h.llm.err = errors.New("model overloaded")

	_, err := h.svc.Send(context.Background(), h.user, &supportchat.SendRequest{Mode: supportchat.ModeAI, Text: "hi"})
	assert.ErrorIs(t, err, ErrAIUnavailable)

	got, err := h.svc.History(context.Background(), h.user, supportchat.ModeAI)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSend_AIDisabled(t *testing.T) {
	svc := NewSupportChatService(memory.NewRepositoryFactory(memory.NewDatabase()), nil, nil, nil, logger.NewNopLogger(), SupportChatOptions{})
	_, err := svc.Send(context.Background(), uuid.New(), &supportchat.SendRequest{Mode: supportchat.ModeAI, Text: "hi"})
	assert.ErrorIs(t, err, ErrAIDisabled)
}

func TestClearHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.send(t, supportchat.ModeAI, "hi")
	h.send(t, supportchat.ModeSupport, "human please")

	assert.ErrorIs(t, h.svc.ClearHistory(ctx, h.user, supportchat.ModeSupport), ErrClearNotAllowed)
	require.NoError(t, h.svc.ClearHistory(ctx, h.user, supportchat.ModeAI))

	ai, err := h.svc.History(ctx, h.user, supportchat.ModeAI)
	require.NoError(t, err)
	assert.Empty(t, ai)
	support, err := h.svc.History(ctx, h.user, supportchat.ModeSupport)
	require.NoError(t, err)
	assert.Len(t, support, 1)
}

func TestReply(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Reply(ctx, h.user, "hello?")
	assert.ErrorIs(t, err, ErrNoSession)

	h.send(t, supportchat.ModeSupport, "Hello")
	msg, err := h.svc.Reply(ctx, h.user, "Hi, how can I help?")
	require.NoError(t, err)
	assert.True(t, msg.AuthoredBySupport)

	payload := h.pub.last(t).Payload().(supportchat.NewMessagePayload)
	assert.Equal(t, msg.ID, payload.Message.ID)
	assert.True(t, payload.Message.AuthoredBySupport)

	_, err = h.svc.CloseSession(ctx, h.user)
	require.NoError(t, err)
	_, err = h.svc.Reply(ctx, h.user, "one more thing")
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestCloseSession_BroadcastsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.send(t, supportchat.ModeSupport, "Hello")

	info, err := h.svc.CloseSession(ctx, h.user)
	require.NoError(t, err)
	assert.Equal(t, supportchat.SessionClosed, info.Status)
	info, err = h.svc.CloseSession(ctx, h.user)
	require.NoError(t, err)
	assert.Equal(t, supportchat.SessionClosed, info.Status)

	assert.Equal(t, []string{supportchat.EventNewMessage, supportchat.EventSessionClosed}, h.pub.types())
	payload := h.pub.last(t).Payload().(supportchat.SessionClosedPayload)
	assert.Equal(t, supportchat.SessionClosed, payload.Session.Status)
}

func TestDeleteSession(t *testing.T) {
	for _, wipe := range []bool{true, false} {
		h := newHarness(t)
		ctx := context.Background()
		h.send(t, supportchat.ModeSupport, "Hello")

		require.NoError(t, h.svc.DeleteSession(ctx, h.user, wipe))

		payload := h.pub.last(t).Payload().(supportchat.SessionDeletedPayload)
		require.NotNil(t, payload.ClearMessages)
		assert.Equal(t, wipe, *payload.ClearMessages)

		got, err := h.svc.History(ctx, h.user, supportchat.ModeSupport)
		require.NoError(t, err)
		if wipe {
			assert.Empty(t, got)
		} else {
			assert.Len(t, got, 1)
		}
	}

	h := newHarness(t)
	assert.ErrorIs(t, h.svc.DeleteSession(context.Background(), h.user, true), ErrNoSession)
}

func TestDeleteMessages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.send(t, supportchat.ModeSupport, "a").Message
	b := h.send(t, supportchat.ModeSupport, "b").Message
	c := h.send(t, supportchat.ModeSupport, "c").Message

	require.NoError(t, h.svc.DeleteMessage(ctx, h.user, uuid.MustParse(a.ID)))
	assert.Equal(t, supportchat.MessageDeletedPayload{MessageID: a.ID}, h.pub.last(t).Payload())
	assert.ErrorIs(t, h.svc.DeleteMessage(ctx, h.user, uuid.MustParse(a.ID)), ErrMessageNotFound)

	deleted, err := h.svc.DeleteMessages(ctx, h.user, []uuid.UUID{uuid.MustParse(b.ID), uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{uuid.MustParse(b.ID)}, deleted)
	assert.Equal(t, supportchat.MessagesDeletedPayload{MessageIDs: []string{b.ID}}, h.pub.last(t).Payload())

	before := len(h.pub.types())
	deleted, err = h.svc.DeleteMessages(ctx, h.user, []uuid.UUID{uuid.New()})
	require.NoError(t, err)
	assert.Empty(t, deleted)
	assert.Len(t, h.pub.types(), before, "nothing removed, nothing broadcast")

	got, err := h.svc.History(ctx, h.user, supportchat.ModeSupport)
	require.NoError(t, err)
	assert.Equal(t, []string{c.Text}, wireTexts(got))
}

func TestDeleteMessage_OtherUsersMessage(t *testing.T) {
	h := newHarness(t)
	msg := h.send(t, supportchat.ModeSupport, "mine").Message

	err := h.svc.DeleteMessage(context.Background(), uuid.New(), uuid.MustParse(msg.ID))
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestClearSupportMessages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.send(t, supportchat.ModeSupport, "Hello")
	h.send(t, supportchat.ModeAI, "hi bot")

	require.NoError(t, h.svc.ClearSupportMessages(ctx, h.user))

	assert.Equal(t, supportchat.EventMessagesCleared, h.pub.last(t).EventType())
	support, err := h.svc.History(ctx, h.user, supportchat.ModeSupport)
	require.NoError(t, err)
	assert.Empty(t, support)
	ai, err := h.svc.History(ctx, h.user, supportchat.ModeAI)
	require.NoError(t, err)
	assert.Len(t, ai, 2)
}

func TestChannelEventsEncodeLikeTheClientExpects(t *testing.T) {
	h := newHarness(t)
	h.send(t, supportchat.ModeSupport, "Hello")

	raw, err := events.Encode(h.pub.last(t))
	require.NoError(t, err)
	env, err := events.Decode(raw)
	require.NoError(t, err)

	var payload supportchat.NewMessagePayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "Hello", payload.Message.Text)
}
