package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"vn.io.arda/storefront-notifier/internal/domain"
	"vn.io.arda/storefront-notifier/internal/events/registry"
	"vn.io.arda/storefront-notifier/internal/notifystore"
	"vn.io.arda/storefront-notifier/internal/polling"
	"vn.io.arda/storefront-notifier/internal/push"
	"vn.io.arda/storefront-notifier/internal/stream"
	"vn.io.arda/storefront-notifier/internal/tokenstore"
)

// Deps are the collaborators of an Agent. Push and Hub are optional.
type Deps struct {
	Store   *notifystore.Store
	Tokens  *tokenstore.Store
	KV      domain.KV
	Backend Backend
	Push    *push.Registrar
	Hub     SSEHub
}

// Options tune the delivery channels. Zero values select the defaults.
type Options struct {
	Stream           stream.Config
	PollInterval     time.Duration
	DegradedInterval time.Duration
}

// Agent owns one signed-in session: it keeps the stream open, falls back to
// order polling when the stream gives up, and syncs read state to the server.
type Agent struct {
	store   *notifystore.Store
	tokens  *tokenstore.Store
	backend Backend
	push    *push.Registrar
	hub     SSEHub
	stream  *stream.Client
	poller  *polling.Poller
	opts    Options

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

// NewAgent wires the stream and polling channels into the store.
func NewAgent(deps Deps, opts Options) *Agent {
	if opts.PollInterval <= 0 {
		opts.PollInterval = polling.DefaultInterval
	}
	if opts.DegradedInterval <= 0 {
		opts.DegradedInterval = polling.DegradedInterval
	}
	a := &Agent{
		store:   deps.Store,
		tokens:  deps.Tokens,
		backend: deps.Backend,
		push:    deps.Push,
		hub:     deps.Hub,
		opts:    opts,
	}
	a.poller = polling.New(deps.Backend, deps.KV, deps.Store.UserID(), deps.Store)
	a.stream = stream.New(opts.Stream, deps.Store, stream.Hooks{
		OnOpen:        a.streamOpened,
		OnExhausted:   a.streamExhausted,
		OnStateChange: a.stateChanged,
	})
	return a
}

// Start begins delivery. With a valid auth token the stream is opened;
// otherwise orders are polled at the normal interval.
func (a *Agent) Start(ctx context.Context) error {
	a.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.ctx, a.cancel = runCtx, cancel
	if a.hub != nil {
		a.unsubscribe = a.store.Subscribe(a.hub.BroadcastList)
	}
	a.mu.Unlock()

	token, err := a.tokens.AuthToken(ctx)
	switch {
	case err == nil:
		log.Info().Str("user", a.store.UserID()).Msg("starting notification stream")
		a.stream.Start(runCtx, token)
	case errors.Is(err, tokenstore.ErrNoToken), errors.Is(err, tokenstore.ErrTokenExpired):
		log.Info().Err(err).Msg("no usable auth token, polling orders instead of streaming")
		a.poller.Start(runCtx, a.opts.PollInterval)
	default:
		return fmt.Errorf("load auth token: %w", err)
	}
	return nil
}

// Stop closes the stream, stops polling and cancels pending timers.
func (a *Agent) Stop() {
	a.mu.Lock()
	cancel, unsubscribe := a.cancel, a.unsubscribe
	a.cancel, a.unsubscribe = nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.stream.Stop()
	a.poller.Stop()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// ErrUserMismatch is returned by SignIn for a token issued to another user.
// The log and push registration are scoped to one user, so switching accounts
// needs a new agent.
var ErrUserMismatch = errors.New("auth token belongs to another user")

// SignIn stores a new auth token and opens the stream with it. A running
// poller keeps going until the stream is open.
func (a *Agent) SignIn(ctx context.Context, token string) error {
	if sub := tokenstore.Subject(token); sub != "" && sub != a.store.UserID() {
		return fmt.Errorf("sign in as %q on session of %q: %w", sub, a.store.UserID(), ErrUserMismatch)
	}
	if err := a.tokens.SaveAuthToken(ctx, token); err != nil {
		return fmt.Errorf("save auth token: %w", err)
	}

	runCtx := a.runContext()
	if runCtx == nil || runCtx.Err() != nil {
		return a.Start(context.WithoutCancel(ctx))
	}
	log.Info().Str("user", a.store.UserID()).Msg("signed in, starting notification stream")
	a.stream.Start(runCtx, token)
	return nil
}

// SignOut unregisters push, forgets the auth token and stops delivery.
func (a *Agent) SignOut(ctx context.Context) error {
	a.Stop()
	if a.push != nil {
		if err := a.push.DeleteToken(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to clear push token on sign-out")
		}
	}
	return a.tokens.ClearAuthToken(ctx)
}

func (a *Agent) runContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx
}

// streamOpened hands delivery back to the stream.
func (a *Agent) streamOpened() {
	if a.poller.Active() {
		log.Info().Msg("stream recovered, stopping order polling")
		a.poller.Stop()
	}
}

// streamExhausted switches to degraded polling once the stream gives up.
func (a *Agent) streamExhausted() {
	ctx := a.runContext()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	log.Warn().Dur("interval", a.opts.DegradedInterval).Msg("stream unavailable, falling back to order polling")
	a.poller.Start(ctx, a.opts.DegradedInterval)
}

func (a *Agent) stateChanged(s domain.ConnectionState) {
	log.Debug().Str("state", string(s)).Msg("stream state changed")
	if a.hub != nil {
		a.hub.BroadcastState(s)
	}
}

// InitPush runs push registration. Without a registrar push is unavailable.
func (a *Agent) InitPush(ctx context.Context) (push.Result, error) {
	if a.push == nil {
		return push.ResultUnavailable, nil
	}
	return a.push.Init(ctx)
}

// DeletePushToken unregisters this device from push delivery.
func (a *Agent) DeletePushToken(ctx context.Context) error {
	if a.push == nil {
		return nil
	}
	return a.push.DeleteToken(ctx)
}

// HandlePush stores a foreground push message.
func (a *Agent) HandlePush(ctx context.Context, msg push.Message) (domain.Record, bool, error) {
	if a.push == nil {
		rec := push.Normalize(msg)
		inserted, err := a.store.Append(ctx, rec)
		return rec, inserted, err
	}
	return a.push.HandleForeground(ctx, msg)
}

// Deliver maps an event from an auxiliary channel (e.g. the event bus) and stores it.
func (a *Agent) Deliver(ctx context.Context, event string, payload json.RawMessage, source string) (bool, error) {
	rec, err := registry.Dispatch(event, payload)
	if err != nil {
		return false, err
	}
	if source != "" {
		if rec.Meta == nil {
			rec.Meta = map[string]any{}
		}
		rec.Meta["source"] = source
	}
	inserted, err := a.store.Append(ctx, *rec)
	if err != nil {
		return false, fmt.Errorf("store %s: %w", event, err)
	}
	if inserted {
		log.Info().
			Str("id", rec.ID).
			Str("type", string(rec.Type)).
			Str("source", source).
			Msg("notification delivered")
	}
	return inserted, nil
}

// Records returns the whole local log, newest first.
func (a *Agent) Records() []domain.Record {
	return a.store.List()
}

// List returns a page of the local log, newest first.
func (a *Agent) List(filter ListFilter) []domain.Record {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var out []domain.Record
	skipped := 0
	for _, r := range a.store.List() {
		if filter.IsRead != nil && r.Read != *filter.IsRead {
			continue
		}
		if filter.Type != "" && r.Type != filter.Type {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, r)
		if len(out) == filter.Limit {
			break
		}
	}
	return out
}

// UnreadCount returns the local unread badge count.
func (a *Agent) UnreadCount() int {
	return a.store.UnreadCount()
}

// ServerUnreadCount returns the unread count as the server sees it.
func (a *Agent) ServerUnreadCount(ctx context.Context) (int64, error) {
	n, err := a.backend.UnreadCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("server unread count: %w", err)
	}
	return n, nil
}

// MarkRead marks id read locally, then syncs it to the server.
// A sync failure is logged and the local change kept.
func (a *Agent) MarkRead(ctx context.Context, id string) error {
	changed, err := a.store.MarkRead(ctx, id)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := a.backend.MarkRead(ctx, id); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("failed to sync read state")
	}
	return nil
}

// MarkAllRead marks every record read locally, then syncs to the server.
func (a *Agent) MarkAllRead(ctx context.Context) (int, error) {
	n, err := a.store.MarkAllRead(ctx)
	if err != nil {
		return 0, err
	}
	if err := a.backend.MarkAllRead(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to sync read-all")
	}
	return n, nil
}

// Status reports the state of every delivery channel.
func (a *Agent) Status() Status {
	st := Status{
		UserID:       a.store.UserID(),
		Connection:   a.stream.State(),
		Failures:     a.stream.Failures(),
		Polling:      a.poller.Active(),
		PollInterval: a.poller.Interval(),
		Unread:       a.store.UnreadCount(),
		Push:         push.ResultUnavailable,
	}
	if a.push != nil {
		st.Push = a.push.Result()
	}
	return st
}

// PurgeTTL drops local records older than maxAge. Called by a background scheduler.
func (a *Agent) PurgeTTL(ctx context.Context, maxAge time.Duration) {
	count, err := a.store.Prune(ctx, maxAge)
	if err != nil {
		log.Error().Err(err).Msg("notification TTL purge failed")
		return
	}
	log.Info().Int("deleted", count).Dur("older_than", maxAge).Msg("notification TTL purge completed")
}
