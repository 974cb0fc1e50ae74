// Package stream maintains the long-lived notification stream from the
// storefront backend, reconnecting with exponential backoff and giving up
// after a bounded number of consecutive failures.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"vn.io.arda/storefront-notifier/internal/backend"
	"vn.io.arda/storefront-notifier/internal/domain"
	"vn.io.arda/storefront-notifier/internal/events/registry"

	// Blank import triggers init() in each handler file,
	// registering all storefront event handlers into the registry.
	_ "vn.io.arda/storefront-notifier/internal/events/handlers"
)

// Config holds stream settings. Zero values select the defaults.
type Config struct {
	BaseURL        string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxRetries     int
	// HTTPClient must not set a Timeout, which would cut the stream.
	HTTPClient *http.Client
}

// Hooks are invoked from the stream goroutine. They must not call Stop.
type Hooks struct {
	// OnOpen fires after every successful handshake.
	OnOpen func()
	// OnExhausted fires once when MaxRetries consecutive failures are reached.
	OnExhausted func()
	// OnRetry fires before waiting delay for reconnect attempt n (1-based).
	OnRetry func(attempt int, delay time.Duration)
	// OnStateChange reports every state transition.
	OnStateChange func(domain.ConnectionState)
}

// Client is a reconnecting server-sent events consumer.
type Client struct {
	cfg     Config
	sink    domain.Sink
	hooks   Hooks
	backoff *Backoff

	mu       sync.Mutex
	state    domain.ConnectionState
	failures int
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates an idle Client that appends decoded records to sink.
func New(cfg Config, sink domain.Sink, hooks Hooks) *Client {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		cfg:     cfg,
		sink:    sink,
		hooks:   hooks,
		backoff: NewBackoff(cfg.InitialBackoff, cfg.MaxBackoff),
		state:   domain.StateIdle,
	}
}

// State returns the current connection state.
func (c *Client) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Failures returns the number of consecutive failed attempts.
func (c *Client) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// Start opens the stream with authToken passed as query parameter.
// A running stream is stopped first. Start does not block.
func (c *Client) Start(ctx context.Context, authToken string) {
	c.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.failures = 0
	c.backoff.Reset()
	c.mu.Unlock()

	c.setState(domain.StateConnecting)
	go c.run(ctx, authToken, done)
}

// Stop closes the connection, cancels any pending reconnect and waits for the
// stream goroutine to exit.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.setState(domain.StateClosed)
}

func (c *Client) run(ctx context.Context, token string, done chan struct{}) {
	defer close(done)

	for {
		err := c.connect(ctx, token)
		if ctx.Err() != nil {
			c.setState(domain.StateClosed)
			return
		}

		c.mu.Lock()
		c.failures++
		attempt := c.failures
		c.mu.Unlock()
		c.setState(domain.StateError)

		if attempt >= c.cfg.MaxRetries {
			log.Warn().Err(err).Int("failures", attempt).Msg("notification stream giving up, falling back to polling")
			c.setState(domain.StateClosed)
			if c.hooks.OnExhausted != nil {
				c.hooks.OnExhausted()
			}
			return
		}

		delay := c.backoff.Next()
		log.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("notification stream reconnect scheduled")
		if c.hooks.OnRetry != nil {
			c.hooks.OnRetry(attempt, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setState(domain.StateClosed)
			return
		case <-timer.C:
		}
		c.setState(domain.StateConnecting)
	}
}

// connect performs one connection attempt and consumes the stream until it ends.
// It always returns a non-nil error describing why the stream stopped.
func (c *Client) connect(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, backend.StreamURL(c.cfg.BaseURL, token), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &backend.StatusError{Method: http.MethodGet, Path: "/notifications/stream", Code: resp.StatusCode}
	}

	c.opened()

	reader := NewReader(resp.Body)
	for {
		ev, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("stream closed by server")
			}
			return fmt.Errorf("read stream: %w", err)
		}
		c.handle(ctx, ev)
	}
}

func (c *Client) opened() {
	c.mu.Lock()
	c.failures = 0
	c.backoff.Reset()
	c.mu.Unlock()

	c.setState(domain.StateOpen)
	log.Info().Msg("notification stream open")
	if c.hooks.OnOpen != nil {
		c.hooks.OnOpen()
	}
}

// handle decodes one event and appends the resulting record. Bad events are
// logged and dropped; they never stop the stream.
func (c *Client) handle(ctx context.Context, ev Event) {
	switch ev.Name {
	case "connected", "ping", "heartbeat":
		log.Debug().Str("event", ev.Name).Msg("stream keepalive")
		return
	}

	fallback := ev.Name
	if fallback == "message" {
		fallback = ""
	}
	env, err := registry.Decode(ev.Data, fallback)
	if err != nil {
		log.Warn().Err(err).Str("sse_event", ev.Name).Msg("dropping malformed stream message")
		return
	}

	rec, err := registry.Dispatch(env.Event, env.Payload)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownEvent) {
			log.Info().Str("event", env.Event).Msg("ignoring unknown stream event")
		} else {
			log.Warn().Err(err).Str("event", env.Event).Msg("dropping stream event")
		}
		return
	}
	if rec.Meta == nil {
		rec.Meta = map[string]any{}
	}
	rec.Meta["source"] = "stream"

	if _, err := c.sink.Append(ctx, *rec); err != nil {
		log.Error().Err(err).Str("id", rec.ID).Msg("failed to store stream notification")
	}
}

func (c *Client) setState(s domain.ConnectionState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	if c.hooks.OnStateChange != nil {
		c.hooks.OnStateChange(s)
	}
}
