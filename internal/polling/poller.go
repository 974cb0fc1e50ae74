// Package polling periodically fetches the user's orders and turns status
// changes into notifications while the stream is unavailable.
package polling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"vn.io.arda/storefront-notifier/internal/domain"
	"vn.io.arda/storefront-notifier/internal/events/handlers"
)

const (
	DefaultInterval  = 60 * time.Second
	DegradedInterval = 30 * time.Second
)

// OrderSource fetches the current order list.
type OrderSource interface {
	Orders(ctx context.Context) ([]domain.Order, error)
}

// Poller diffs successive order snapshots. The snapshot is persisted per user.
type Poller struct {
	source OrderSource
	kv     domain.KV
	userID string
	sink   domain.Sink

	mu       sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates an inactive Poller.
func New(source OrderSource, kv domain.KV, userID string, sink domain.Sink) *Poller {
	if userID == "" {
		userID = domain.AnonymousUser
	}
	return &Poller{source: source, kv: kv, userID: userID, sink: sink}
}

func (p *Poller) snapshotKey() string { return "order_snapshot:" + p.userID }

// Start polls immediately and then every interval (DefaultInterval when <= 0).
// An active poller is restarted with the new interval.
func (p *Poller) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel, p.done, p.interval = cancel, done, interval
	p.mu.Unlock()

	log.Info().Dur("interval", interval).Msg("order polling started")
	go p.loop(ctx, interval, done)
}

// Stop cancels polling and waits for an in-flight tick to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done, p.interval = nil, nil, 0
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Info().Msg("order polling stopped")
}

// Active reports whether polling is running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Interval returns the current polling interval, zero when inactive.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

func (p *Poller) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.Tick(ctx); err != nil && ctx.Err() == nil {
			// Transient; the next tick retries.
			log.Debug().Err(err).Msg("order poll failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one poll: fetch, diff against the stored snapshot, emit one record
// per changed order, then store the new snapshot. It returns the number of
// records emitted.
func (p *Poller) Tick(ctx context.Context) (int, error) {
	orders, err := p.source.Orders(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch orders: %w", err)
	}
	next := BuildSnapshot(orders)

	prev, err := p.Snapshot(ctx)
	if err != nil {
		return 0, err
	}

	changes := next.Diff(prev)
	sort.Slice(changes, func(i, j int) bool { return changes[i].OrderID < changes[j].OrderID })

	emitted := 0
	for _, c := range changes {
		inserted, err := p.sink.Append(ctx, handlers.OrderStatusChanged(c))
		if err != nil {
			log.Error().Err(err).Str("order", c.OrderID).Msg("failed to store order status change")
		}
		if inserted {
			emitted++
		}
	}

	if err := p.kv.Set(ctx, p.snapshotKey(), next); err != nil {
		return emitted, fmt.Errorf("save order snapshot: %w", err)
	}
	if len(changes) > 0 {
		log.Info().Int("changes", len(changes)).Int("emitted", emitted).Msg("order status changes detected")
	}
	return emitted, nil
}

// Snapshot returns the persisted snapshot, or nil when none exists yet.
func (p *Poller) Snapshot(ctx context.Context) (domain.OrderSnapshot, error) {
	var snap domain.OrderSnapshot
	if err := p.kv.Get(ctx, p.snapshotKey(), &snap); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load order snapshot: %w", err)
	}
	return snap, nil
}

// BuildSnapshot maps order id to normalized status. Orders missing either are skipped.
func BuildSnapshot(orders []domain.Order) domain.OrderSnapshot {
	snap := make(domain.OrderSnapshot, len(orders))
	for _, o := range orders {
		id, status := o.Key(), o.State()
		if id == "" || status == "" {
			continue
		}
		snap[id] = status
	}
	return snap
}
