// Package conversation is the façade the chat view talks to. A Controller
// owns the message store, the session tracker and the channel subscription of
// one chat instance and coordinates them around the persistence API.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tourbook-chat/internal/pkg/logger"
	"tourbook-chat/pkg/supportchat"
	"tourbook-chat/pkg/supportchat/api"
	"tourbook-chat/pkg/supportchat/channel"
	"tourbook-chat/pkg/supportchat/session"
	"tourbook-chat/pkg/supportchat/store"
)

const module = "Conversation"

// ownRestartWindow bounds how long the broadcast of this controller's own
// session restart is expected.
const ownRestartWindow = 30 * time.Second

var (
	ErrSendInFlight     = errors.New("a message is already being sent")
	ErrWrongMode        = errors.New("operation is not available in this mode")
	ErrBusy             = errors.New("operation already in progress")
	ErrDisposed         = errors.New("conversation is disposed")
	ErrNotAuthenticated = errors.New("not signed in")
	ErrNotConfigured    = errors.New("persistence api is not configured")
)

// SendError carries the text of a failed send so the caller can put it back
// into the input.
type SendError struct {
	Text string
	Err  error
}

func (e *SendError) Error() string { return e.Err.Error() }

func (e *SendError) Unwrap() error { return e.Err }

type AuthLookup interface {
	CurrentUser(ctx context.Context) (*supportchat.User, error)
}

type MessageAPI interface {
	History(ctx context.Context, mode supportchat.Mode) ([]supportchat.Message, error)
	Send(ctx context.Context, mode supportchat.Mode, text string) (api.SendResult, error)
	ClearHistory(ctx context.Context, mode supportchat.Mode) error
}

type SessionAPI interface {
	SessionStatus(ctx context.Context) (*supportchat.SessionInfo, error)
	StartSession(ctx context.Context) error
}

// Subscriber is the realtime side, normally a *channel.Manager.
type Subscriber interface {
	Open(ctx context.Context, userID string, l channel.Listener) error
	Close()
}

// PermissionAsker asks for notification permission on first open.
type PermissionAsker interface {
	EnsurePermission(ctx context.Context)
}

type Deps struct {
	Auth        AuthLookup
	Messages    MessageAPI
	Sessions    SessionAPI
	Channel     Subscriber
	Permissions PermissionAsker
}

// Busy lists the actions in flight for the current mode.
type Busy struct {
	Loading  bool
	Sending  bool
	Clearing bool
	Starting bool
}

type Controller struct {
	deps    Deps
	store   *store.Store
	tracker *session.Tracker
	logger  logger.ILogger
	notify  func()

	mu       sync.Mutex
	mode     supportchat.Mode
	epoch    uint64
	loadSeq  uint64
	storeGen uint64
	loading  map[supportchat.Mode]int
	sending  map[supportchat.Mode]bool
	clearing bool
	starting bool
	degraded bool
	disposed bool
	runCtx   context.Context
	cancel   context.CancelFunc

	// ownRestartUntil is set while the new-session-created broadcast of a
	// restart issued here has not arrived yet.
	ownRestartUntil time.Time
}

var _ channel.Listener = (*Controller)(nil)

type Option func(*Controller)

func WithLogger(l logger.ILogger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithOnChange registers a callback run after every visible state change.
// It is called without any controller lock held.
func WithOnChange(fn func()) Option {
	return func(c *Controller) { c.notify = fn }
}

// WithMode sets the initial mode. Unknown modes keep the support default.
func WithMode(mode supportchat.Mode) Option {
	return func(c *Controller) {
		if mode.Valid() {
			c.mode = mode
		}
	}
}

func WithStore(s *store.Store) Option {
	return func(c *Controller) { c.store = s }
}

func WithTracker(t *session.Tracker) Option {
	return func(c *Controller) { c.tracker = t }
}

func New(deps Deps, opts ...Option) *Controller {
	c := &Controller{
		deps:    deps,
		store:   store.New(),
		tracker: session.NewTracker(),
		logger:  logger.NewNopLogger(),
		mode:    supportchat.ModeSupport,
		loading: make(map[supportchat.Mode]int),
		sending: make(map[supportchat.Mode]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.runCtx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Init runs when the chat view mounts: it asks for notification permission
// once, enters the initial mode and loads its history.
func (c *Controller) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	mode := c.mode
	c.mu.Unlock()

	if c.deps.Permissions != nil {
		c.deps.Permissions.EnsurePermission(ctx)
	}
	c.enter(ctx, mode)
	return c.LoadMessages(ctx, mode)
}

// Dispose tears down the subscription and discards every result still in
// flight. It is safe to call more than once.
func (c *Controller) Dispose() {
	c.mu.Lock()
	c.disposed = true
	c.epoch++
	c.loadSeq++
	c.cancel()
	c.mu.Unlock()

	if c.deps.Channel != nil {
		c.deps.Channel.Close()
	}
}

// SwitchMode clears the store, moves the realtime subscription and loads the
// history of mode. Switching to the current mode is a no-op.
func (c *Controller) SwitchMode(ctx context.Context, mode supportchat.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q", mode)
	}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.mode == mode {
		c.mu.Unlock()
		return nil
	}
	c.mode = mode
	c.epoch++
	c.mu.Unlock()

	c.store.Clear()
	c.changed()
	c.enter(ctx, mode)
	return c.LoadMessages(ctx, mode)
}

// enter binds the realtime channel for support mode and drops it for ai mode.
func (c *Controller) enter(ctx context.Context, mode supportchat.Mode) {
	if c.deps.Channel == nil {
		c.setDegraded(mode == supportchat.ModeSupport)
		return
	}
	if mode != supportchat.ModeSupport {
		c.deps.Channel.Close()
		c.setDegraded(false)
		return
	}

	c.tracker.Reset()

	user, err := c.currentUser(ctx)
	if err != nil {
		c.deps.Channel.Close()
		c.setDegraded(true)
		c.logger.Warn(module, "Realtime updates unavailable", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := c.deps.Channel.Open(ctx, user.ID, c); err != nil {
		c.setDegraded(true)
		c.logger.Warn(module, "Realtime updates unavailable", map[string]interface{}{"error": err.Error()})
		return
	}
	c.setDegraded(false)
}

// LoadMessages fetches the history of mode and, for support mode, the session
// status. A result for a mode that is no longer current, or one overtaken by a
// newer load, is discarded.
func (c *Controller) LoadMessages(ctx context.Context, mode supportchat.Mode) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.deps.Messages == nil {
		c.mu.Unlock()
		return ErrNotConfigured
	}
	c.loadSeq++
	seq := c.loadSeq
	c.loading[mode]++
	c.mu.Unlock()
	c.changed()

	defer func() {
		c.mu.Lock()
		c.loading[mode]--
		c.mu.Unlock()
		c.changed()
	}()

	msgs, err := c.deps.Messages.History(ctx, mode)
	if !c.currentLoad(mode, seq) {
		c.logger.Debug(module, "Discarded stale history", map[string]interface{}{"mode": string(mode)})
		return nil
	}

	switch {
	case errors.Is(err, api.ErrUnauthorized):
		c.store.Clear()
		return nil
	case errors.Is(err, api.ErrMalformedResponse):
		c.store.Clear()
		c.logger.Error(module, "Malformed history response", map[string]interface{}{
			"mode":  string(mode),
			"error": err,
		})
		return nil
	case err != nil:
		return fmt.Errorf("load %s history: %w", mode, err)
	}

	c.store.Load(msgs)
	c.changed()

	if mode == supportchat.ModeSupport {
		c.refreshSession(ctx, seq)
	}
	return nil
}

func (c *Controller) refreshSession(ctx context.Context, seq uint64) {
	if c.deps.Sessions == nil {
		return
	}
	info, err := c.deps.Sessions.SessionStatus(ctx)
	if !c.currentLoad(supportchat.ModeSupport, seq) {
		return
	}
	if err != nil {
		if !errors.Is(err, api.ErrUnauthorized) {
			c.logger.Warn(module, "Failed to fetch session status", map[string]interface{}{"error": err.Error()})
		}
		return
	}
	if c.tracker.Observe(info) {
		c.changed()
	}
}

// Send submits text in the current mode. Blank text is ignored. A second send
// while one is in flight for the same mode returns ErrSendInFlight without
// touching the network.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.deps.Messages == nil {
		c.mu.Unlock()
		return &SendError{Text: text, Err: ErrNotConfigured}
	}
	mode := c.mode
	if c.sending[mode] {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	if mode == supportchat.ModeSupport {
		if err := c.tracker.CheckWritable(); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	c.sending[mode] = true
	at := stamp{epoch: c.epoch, gen: c.storeGen}
	c.mu.Unlock()
	c.changed()

	defer func() {
		c.mu.Lock()
		c.sending[mode] = false
		c.mu.Unlock()
		c.changed()
	}()

	if _, err := c.currentUser(ctx); err != nil {
		return &SendError{Text: text, Err: err}
	}

	if mode == supportchat.ModeAI {
		return c.sendAI(ctx, text, at)
	}
	return c.sendSupport(ctx, text, at)
}

func (c *Controller) sendSupport(ctx context.Context, text string, at stamp) error {
	pending := c.store.InsertOptimistic(text)
	c.changed()

	res, err := c.deps.Messages.Send(ctx, supportchat.ModeSupport, text)
	if err != nil {
		c.store.Discard(pending)
		var rejected *api.WriteRejectedError
		if errors.As(err, &rejected) && c.currentEpoch(at.epoch) {
			c.tracker.Observe(&supportchat.SessionInfo{Status: rejected.Status})
		}
		return &SendError{Text: text, Err: err}
	}
	if !c.current(at) {
		// the mode changed or the store was cleared meanwhile
		c.store.Discard(pending)
		return nil
	}

	switch {
	case res.Message != nil:
		c.store.Reconcile(*res.Message)
	case len(res.Messages) > 0:
		c.store.Reconcile(res.Messages[0])
		for _, m := range res.Messages[1:] {
			c.store.Insert(m)
		}
	default:
		// the channel echo delivers the confirmed copy
		c.store.DropPending()
	}
	return nil
}

func (c *Controller) sendAI(ctx context.Context, text string, at stamp) error {
	res, err := c.deps.Messages.Send(ctx, supportchat.ModeAI, text)
	if !c.current(at) {
		return nil
	}
	if err != nil {
		return &SendError{Text: text, Err: err}
	}
	if res.Message != nil {
		c.store.Insert(*res.Message)
	}
	for _, m := range res.Messages {
		c.store.Insert(m)
	}
	return nil
}

// ClearHistory deletes the AI conversation server side, then locally.
func (c *Controller) ClearHistory(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.disposed:
		c.mu.Unlock()
		return ErrDisposed
	case c.mode != supportchat.ModeAI:
		c.mu.Unlock()
		return ErrWrongMode
	case c.clearing:
		c.mu.Unlock()
		return ErrBusy
	case c.deps.Messages == nil:
		c.mu.Unlock()
		return ErrNotConfigured
	}
	c.clearing = true
	epoch := c.epoch
	c.mu.Unlock()
	c.changed()

	defer func() {
		c.mu.Lock()
		c.clearing = false
		c.mu.Unlock()
		c.changed()
	}()

	if err := c.deps.Messages.ClearHistory(ctx, supportchat.ModeAI); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	if c.currentEpoch(epoch) {
		c.resetStore()
	}
	return nil
}

// StartNewSession clears the conversation locally, asks for a new support
// session and reloads on success. On failure the status stays unknown.
func (c *Controller) StartNewSession(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.disposed:
		c.mu.Unlock()
		return ErrDisposed
	case c.mode != supportchat.ModeSupport:
		c.mu.Unlock()
		return ErrWrongMode
	case c.starting:
		c.mu.Unlock()
		return ErrBusy
	case c.deps.Sessions == nil:
		c.mu.Unlock()
		return ErrNotConfigured
	}
	c.starting = true
	c.ownRestartUntil = time.Now().Add(ownRestartWindow)
	epoch := c.epoch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
		c.changed()
	}()

	c.resetStore()
	c.tracker.Reset()
	c.changed()

	if err := c.deps.Sessions.StartSession(ctx); err != nil {
		c.mu.Lock()
		c.ownRestartUntil = time.Time{}
		c.mu.Unlock()
		return fmt.Errorf("start new session: %w", err)
	}
	if !c.currentEpoch(epoch) {
		return nil
	}
	c.tracker.Restart()
	return c.LoadMessages(ctx, supportchat.ModeSupport)
}

func (c *Controller) Messages() []supportchat.Message {
	return c.store.Snapshot()
}

func (c *Controller) Mode() supportchat.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SessionStatus is the support session status, or unknown in ai mode.
func (c *Controller) SessionStatus() supportchat.SessionStatus {
	if c.Mode() != supportchat.ModeSupport {
		return supportchat.SessionUnknown
	}
	return c.tracker.Status()
}

func (c *Controller) Busy() Busy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Busy{
		Loading:  c.loading[c.mode] > 0,
		Sending:  c.sending[c.mode],
		Clearing: c.clearing,
		Starting: c.starting,
	}
}

// Degraded reports that support mode runs without realtime updates.
func (c *Controller) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// MessageReceived implements channel.Listener.
func (c *Controller) MessageReceived(msg supportchat.Message) bool {
	if !c.inSupport() {
		return false
	}
	added := c.store.Insert(msg)
	if added {
		c.changed()
	}
	return added
}

func (c *Controller) SessionClosed(*supportchat.SessionInfo) {
	if !c.inSupport() {
		return
	}
	c.tracker.Close()
	c.changed()
}

// SessionDeleted clears the store whatever the payload says about messages.
func (c *Controller) SessionDeleted(clearMessages bool) {
	if !c.inSupport() {
		return
	}
	c.tracker.Delete()
	c.resetStore()
	c.logger.Info(module, "Support session deleted", map[string]interface{}{"clear_messages": clearMessages})
	c.changed()
}

func (c *Controller) MessagesCleared() {
	if !c.inSupport() {
		return
	}
	c.resetStore()
	c.changed()
}

// NewSessionCreated handles a session started elsewhere, for example from
// another tab. A restart issued by this controller reloads on its own, so the
// first broadcast after it is ignored.
func (c *Controller) NewSessionCreated() {
	c.mu.Lock()
	own := c.starting || time.Now().Before(c.ownRestartUntil)
	if own {
		c.ownRestartUntil = time.Time{}
	}
	skip := own || c.disposed || c.mode != supportchat.ModeSupport
	ctx := c.runCtx
	c.mu.Unlock()
	if skip {
		return
	}

	c.resetStore()
	c.tracker.Restart()
	c.changed()
	if err := c.LoadMessages(ctx, supportchat.ModeSupport); err != nil && !errors.Is(err, ErrDisposed) {
		c.logger.Warn(module, "Reload after new session failed", map[string]interface{}{"error": err.Error()})
	}
}

func (c *Controller) MessageDeleted(id supportchat.ConfirmedID) {
	if !c.inSupport() {
		return
	}
	if c.store.RemoveByID(id) {
		c.changed()
	}
}

func (c *Controller) MessagesDeleted(ids []supportchat.ConfirmedID) {
	if !c.inSupport() {
		return
	}
	if c.store.RemoveByIDs(ids) > 0 {
		c.changed()
	}
}

func (c *Controller) currentUser(ctx context.Context) (*supportchat.User, error) {
	if c.deps.Auth == nil {
		return nil, ErrNotAuthenticated
	}
	user, err := c.deps.Auth.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	if user == nil || user.ID == "" {
		return nil, ErrNotAuthenticated
	}
	return user, nil
}

func (c *Controller) inSupport() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disposed && c.mode == supportchat.ModeSupport
}

func (c *Controller) currentLoad(mode supportchat.Mode, seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disposed && c.mode == mode && c.loadSeq == seq
}

// stamp records the mode epoch and store generation an operation started in.
type stamp struct {
	epoch uint64
	gen   uint64
}

func (c *Controller) current(at stamp) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disposed && c.epoch == at.epoch && c.storeGen == at.gen
}

// resetStore clears the store and invalidates the sends and history loads
// still in flight against it.
func (c *Controller) resetStore() {
	c.mu.Lock()
	c.storeGen++
	c.loadSeq++
	c.mu.Unlock()
	c.store.Clear()
}

func (c *Controller) currentEpoch(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disposed && c.epoch == epoch
}

func (c *Controller) setDegraded(v bool) {
	c.mu.Lock()
	c.degraded = v
	c.mu.Unlock()
}

func (c *Controller) changed() {
	if c.notify != nil {
		c.notify()
	}
}
