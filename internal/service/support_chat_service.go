package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tourbook-chat/internal/entity"
	"tourbook-chat/internal/mapper"
	"tourbook-chat/internal/pkg/logger"
	"tourbook-chat/internal/pkg/metrics"
	"tourbook-chat/internal/repository/memory"
	"tourbook-chat/internal/repository/specification"
	"tourbook-chat/internal/repository/unitofwork"
	"tourbook-chat/pkg/events"
	"tourbook-chat/pkg/llm"
	"tourbook-chat/pkg/supportchat"
)

type ISupportChatService interface {
	History(ctx context.Context, userId uuid.UUID, mode supportchat.Mode) ([]supportchat.WireMessage, error)
	Send(ctx context.Context, userId uuid.UUID, req *supportchat.SendRequest) (*supportchat.SendResponse, error)
	ClearHistory(ctx context.Context, userId uuid.UUID, mode supportchat.Mode) error
	SessionStatus(ctx context.Context, userId uuid.UUID) (*supportchat.SessionInfo, error)
	StartSession(ctx context.Context, userId uuid.UUID) error

	// Operator side. Every call broadcasts the matching channel event.
	Reply(ctx context.Context, userId uuid.UUID, text string) (*supportchat.WireMessage, error)
	CloseSession(ctx context.Context, userId uuid.UUID) (*supportchat.SessionInfo, error)
	DeleteSession(ctx context.Context, userId uuid.UUID, clearMessages bool) error
	DeleteMessage(ctx context.Context, userId uuid.UUID, messageId uuid.UUID) error
	DeleteMessages(ctx context.Context, userId uuid.UUID, messageIds []uuid.UUID) ([]uuid.UUID, error)
	ClearSupportMessages(ctx context.Context, userId uuid.UUID) error
}

type SupportChatOptions struct {
	ChannelPrefix string
	HistoryLimit  int
	SystemPrompt  string
	ContextWindow int
}

type supportChatService struct {
	uowFactory  unitofwork.RepositoryFactory
	publisher   IPublisherService
	llm         llm.LLMProvider
	statusCache *memory.SessionStatusCache
	mapper      *mapper.SupportChatMapper
	logger      logger.ILogger
	opts        SupportChatOptions
	now         func() time.Time
}

// NewSupportChatService wires the chat backend. A nil llmProvider disables ai
// mode sends; a nil publisher disables channel events.
func NewSupportChatService(
	uowFactory unitofwork.RepositoryFactory,
	publisher IPublisherService,
	llmProvider llm.LLMProvider,
	statusCache *memory.SessionStatusCache,
	log logger.ILogger,
	opts SupportChatOptions,
) ISupportChatService {
	if statusCache == nil {
		statusCache = memory.NewSessionStatusCache(0)
	}
	if opts.ChannelPrefix == "" {
		opts.ChannelPrefix = supportchat.DefaultChannelPrefix
	}
	return &supportChatService{
		uowFactory:  uowFactory,
		publisher:   publisher,
		llm:         llmProvider,
		statusCache: statusCache,
		mapper:      mapper.NewSupportChatMapper(),
		logger:      log,
		opts:        opts,
		now:         time.Now,
	}
}

func (s *supportChatService) History(ctx context.Context, userId uuid.UUID, mode supportchat.Mode) ([]supportchat.WireMessage, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	specs := []specification.Specification{
		specification.UserOwnedBy{UserID: userId},
		specification.ByMode{Mode: mode},
		specification.Recent{Limit: s.opts.HistoryLimit},
	}

	switch mode {
	case supportchat.ModeAI:
	case supportchat.ModeSupport:
		session, err := uow.SupportSessionRepository().FindLatestByUser(ctx, userId)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return []supportchat.WireMessage{}, nil
		}
		specs = append(specs, specification.BySessionID{SessionID: session.Id})
	default:
		return nil, ErrInvalidMode
	}

	msgs, err := uow.SupportMessageRepository().FindAll(ctx, specs...)
	if err != nil {
		return nil, err
	}
	return s.mapper.MessagesToWire(msgs), nil
}

func (s *supportChatService) Send(ctx context.Context, userId uuid.UUID, req *supportchat.SendRequest) (*supportchat.SendResponse, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}

	switch req.Mode {
	case supportchat.ModeSupport:
		msg, err := s.sendSupport(ctx, userId, text)
		if err != nil {
			return nil, err
		}
		return &supportchat.SendResponse{Success: true, Message: msg}, nil
	case supportchat.ModeAI:
		msgs, err := s.sendAI(ctx, userId, text)
		if err != nil {
			return nil, err
		}
		return &supportchat.SendResponse{Success: true, Messages: msgs}, nil
	default:
		return nil, ErrInvalidMode
	}
}

// sendSupport stores a user message in the current session, opening one on
// the first write.
func (s *supportChatService) sendSupport(ctx context.Context, userId uuid.UUID, text string) (*supportchat.WireMessage, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	session, err := uow.SupportSessionRepository().FindLatestByUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	if session == nil {
		session = &entity.SupportSession{
			Id:        uuid.New(),
			UserId:    userId,
			Status:    supportchat.SessionActive,
			CreatedAt: s.now(),
		}
		if err := uow.SupportSessionRepository().Create(ctx, session); err != nil {
			return nil, err
		}
		s.statusCache.Delete(userId.String())
	}
	if !session.Writable() {
		return nil, &SessionRejectedError{Status: session.Status}
	}

	msg := &entity.SupportMessage{
		Id:        uuid.New(),
		UserId:    userId,
		Mode:      supportchat.ModeSupport,
		SessionId: &session.Id,
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := uow.SupportMessageRepository().Create(ctx, msg); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	wire := s.mapper.MessageToWire(msg)
	s.publish(ctx, userId, supportchat.EventNewMessage, supportchat.NewMessagePayload{Message: wire})
	return &wire, nil
}

// sendAI asks the model and stores the exchange only once it answered, so a
// failed call leaves no orphan user message behind.
func (s *supportChatService) sendAI(ctx context.Context, userId uuid.UUID, text string) ([]supportchat.WireMessage, error) {
	if s.llm == nil {
		return nil, ErrAIDisabled
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	recent, err := uow.SupportMessageRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.ByMode{Mode: supportchat.ModeAI},
		specification.Recent{Limit: s.opts.ContextWindow},
	)
	if err != nil {
		return nil, err
	}

	prompt := make([]llm.Message, 0, len(recent)+2)
	if s.opts.SystemPrompt != "" {
		prompt = append(prompt, llm.Message{Role: llm.RoleSystem, Content: s.opts.SystemPrompt})
	}
	for _, m := range recent {
		role := llm.RoleUser
		if m.AuthoredByAI {
			role = llm.RoleAssistant
		}
		prompt = append(prompt, llm.Message{Role: role, Content: m.Text})
	}
	prompt = append(prompt, llm.Message{Role: llm.RoleUser, Content: text})

	asked := s.now()
	started := time.Now()
	reply, err := s.llm.Chat(ctx, prompt)
	if err != nil {
		metrics.LLMRequestDuration.WithLabelValues("error").Observe(time.Since(started).Seconds())
		s.logger.Warn("SupportChatService", "LLM call failed", map[string]interface{}{
			"user_id": userId.String(),
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrAIUnavailable, err)
	}
	metrics.LLMRequestDuration.WithLabelValues("ok").Observe(time.Since(started).Seconds())

	question := &entity.SupportMessage{
		Id:        uuid.New(),
		UserId:    userId,
		Mode:      supportchat.ModeAI,
		Text:      text,
		CreatedAt: asked,
	}
	answer := &entity.SupportMessage{
		Id:           uuid.New(),
		UserId:       userId,
		Mode:         supportchat.ModeAI,
		Text:         reply,
		AuthoredByAI: true,
		CreatedAt:    s.now(),
	}

	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()
	for _, m := range []*entity.SupportMessage{question, answer} {
		if err := uow.SupportMessageRepository().Create(ctx, m); err != nil {
			return nil, err
		}
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	return s.mapper.MessagesToWire([]*entity.SupportMessage{question, answer}), nil
}

func (s *supportChatService) ClearHistory(ctx context.Context, userId uuid.UUID, mode supportchat.Mode) error {
	if mode != supportchat.ModeAI {
		return ErrClearNotAllowed
	}
	uow := s.uowFactory.NewUnitOfWork(ctx)
	deleted, err := uow.SupportMessageRepository().Delete(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.ByMode{Mode: supportchat.ModeAI},
	)
	if err != nil {
		return err
	}
	s.logger.Info("SupportChatService", "AI history cleared", map[string]interface{}{
		"user_id": userId.String(),
		"deleted": len(deleted),
	})
	return nil
}

func (s *supportChatService) SessionStatus(ctx context.Context, userId uuid.UUID) (*supportchat.SessionInfo, error) {
	if status, ok := s.statusCache.Get(userId.String()); ok {
		if status == nil {
			return nil, nil
		}
		return &supportchat.SessionInfo{Status: *status}, nil
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := uow.SupportSessionRepository().FindLatestByUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	if session == nil {
		s.statusCache.Save(userId.String(), nil)
		return nil, nil
	}
	status := session.Status
	s.statusCache.Save(userId.String(), &status)
	return s.mapper.SessionToInfo(session), nil
}

// StartSession closes whatever session is still active and opens a fresh one.
func (s *supportChatService) StartSession(ctx context.Context, userId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	current, err := uow.SupportSessionRepository().FindLatestByUser(ctx, userId)
	if err != nil {
		return err
	}
	if current != nil && current.Status == supportchat.SessionActive {
		closedAt := s.now()
		current.Status = supportchat.SessionClosed
		current.ClosedAt = &closedAt
		if err := uow.SupportSessionRepository().Update(ctx, current); err != nil {
			return err
		}
	}

	fresh := &entity.SupportSession{
		Id:        uuid.New(),
		UserId:    userId,
		Status:    supportchat.SessionActive,
		CreatedAt: s.now(),
	}
	if err := uow.SupportSessionRepository().Create(ctx, fresh); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}
	s.statusCache.Delete(userId.String())

	s.publish(ctx, userId, supportchat.EventNewSessionCreated, supportchat.NewSessionCreatedPayload{})
	return nil
}

func (s *supportChatService) Reply(ctx context.Context, userId uuid.UUID, text string) (*supportchat.WireMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := uow.SupportSessionRepository().FindLatestByUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoSession
	}
	if !session.Writable() {
		return nil, ErrSessionNotActive
	}

	msg := &entity.SupportMessage{
		Id:                uuid.New(),
		UserId:            userId,
		Mode:              supportchat.ModeSupport,
		SessionId:         &session.Id,
		Text:              text,
		AuthoredBySupport: true,
		CreatedAt:         s.now(),
	}
	if err := uow.SupportMessageRepository().Create(ctx, msg); err != nil {
		return nil, err
	}

	wire := s.mapper.MessageToWire(msg)
	s.publish(ctx, userId, supportchat.EventNewMessage, supportchat.NewMessagePayload{Message: wire})
	return &wire, nil
}

// CloseSession is idempotent: closing a terminal session reports its status
// without broadcasting again.
func (s *supportChatService) CloseSession(ctx context.Context, userId uuid.UUID) (*supportchat.SessionInfo, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := uow.SupportSessionRepository().FindLatestByUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoSession
	}
	if session.Status.Terminal() {
		return s.mapper.SessionToInfo(session), nil
	}

	closedAt := s.now()
	session.Status = supportchat.SessionClosed
	session.ClosedAt = &closedAt
	if err := uow.SupportSessionRepository().Update(ctx, session); err != nil {
		return nil, err
	}
	s.statusCache.Delete(userId.String())

	info := s.mapper.SessionToInfo(session)
	s.publish(ctx, userId, supportchat.EventSessionClosed, supportchat.SessionClosedPayload{Session: info})
	return info, nil
}

func (s *supportChatService) DeleteSession(ctx context.Context, userId uuid.UUID, clearMessages bool) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	session, err := uow.SupportSessionRepository().FindLatestByUser(ctx, userId)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrNoSession
	}

	if session.ClosedAt == nil {
		closedAt := s.now()
		session.ClosedAt = &closedAt
	}
	session.Status = supportchat.SessionDeleted
	if err := uow.SupportSessionRepository().Update(ctx, session); err != nil {
		return err
	}
	if clearMessages {
		if _, err := uow.SupportMessageRepository().Delete(ctx,
			specification.UserOwnedBy{UserID: userId},
			specification.BySessionID{SessionID: session.Id},
		); err != nil {
			return err
		}
	}
	if err := uow.Commit(); err != nil {
		return err
	}
	s.statusCache.Delete(userId.String())

	s.publish(ctx, userId, supportchat.EventSessionDeleted, supportchat.SessionDeletedPayload{ClearMessages: &clearMessages})
	return nil
}

func (s *supportChatService) DeleteMessage(ctx context.Context, userId uuid.UUID, messageId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	deleted, err := uow.SupportMessageRepository().Delete(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.ByMode{Mode: supportchat.ModeSupport},
		specification.ByID{ID: messageId},
	)
	if err != nil {
		return err
	}
	if len(deleted) == 0 {
		return ErrMessageNotFound
	}

	s.publish(ctx, userId, supportchat.EventMessageDeleted, supportchat.MessageDeletedPayload{MessageID: messageId.String()})
	return nil
}

// DeleteMessages skips ids that do not exist and broadcasts only the ones it
// removed.
func (s *supportChatService) DeleteMessages(ctx context.Context, userId uuid.UUID, messageIds []uuid.UUID) ([]uuid.UUID, error) {
	if len(messageIds) == 0 {
		return nil, nil
	}
	uow := s.uowFactory.NewUnitOfWork(ctx)
	deleted, err := uow.SupportMessageRepository().Delete(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.ByMode{Mode: supportchat.ModeSupport},
		specification.ByIDs{IDs: messageIds},
	)
	if err != nil {
		return nil, err
	}
	if len(deleted) == 0 {
		return deleted, nil
	}

	ids := make([]string, len(deleted))
	for i, id := range deleted {
		ids[i] = id.String()
	}
	s.publish(ctx, userId, supportchat.EventMessagesDeleted, supportchat.MessagesDeletedPayload{MessageIDs: ids})
	return deleted, nil
}

func (s *supportChatService) ClearSupportMessages(ctx context.Context, userId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := uow.SupportMessageRepository().Delete(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.ByMode{Mode: supportchat.ModeSupport},
	); err != nil {
		return err
	}

	s.publish(ctx, userId, supportchat.EventMessagesCleared, supportchat.MessagesClearedPayload{})
	return nil
}

// publish logs failures instead of failing the request: the write already
// happened and clients resync from history.
func (s *supportChatService) publish(ctx context.Context, userId uuid.UUID, eventType string, data any) {
	if s.publisher == nil {
		return
	}
	evt := events.ChannelEvent{
		Type:       eventType,
		Target:     supportchat.ChannelName(s.opts.ChannelPrefix, userId.String()),
		UserID:     userId.String(),
		Data:       data,
		OccurredAt: s.now(),
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("SupportChatService", "Failed to publish channel event", map[string]interface{}{
			"event":   eventType,
			"user_id": userId.String(),
			"error":   err.Error(),
		})
	}
}
