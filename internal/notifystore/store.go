// Package notifystore keeps the per-user notification log: deduplicated by
// record id, newest first, persisted through a domain.KV and observable by subscribers.
package notifystore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"vn.io.arda/storefront-notifier/internal/domain"
)

// LastSeenKeyPrefix prefixes the per-user last-seen stamp, which is written rarely
// and must survive storage purges.
const LastSeenKeyPrefix = "last_seen:"

// DefaultMaxRecords caps the log when Options.MaxRecords is zero.
const DefaultMaxRecords = 200

// Options tune retention.
type Options struct {
	// MaxRecords keeps only the most recent N records. Negative disables the cap.
	MaxRecords int
	// MaxAge drops records older than this on Prune. Zero disables it.
	MaxAge time.Duration
}

// Listener receives a copy of the full list after every mutation.
type Listener func([]domain.Record)

// Store is the notification log for one user.
type Store struct {
	kv     domain.KV
	userID string
	opts   Options
	now    func() time.Time

	mu       sync.Mutex
	records  []domain.Record
	index    map[string]int
	lastSeen time.Time
	seq      uint64

	notifyMu  sync.Mutex
	turn      *sync.Cond
	delivered uint64

	subMu  sync.RWMutex
	nextID int
	subs   map[int]Listener
}

// New creates a store scoped to userID. An empty userID selects the anonymous bucket.
func New(kv domain.KV, userID string, opts Options) *Store {
	if userID == "" {
		userID = domain.AnonymousUser
	}
	if opts.MaxRecords == 0 {
		opts.MaxRecords = DefaultMaxRecords
	}
	s := &Store{
		kv:     kv,
		userID: userID,
		opts:   opts,
		now:    time.Now,
		index:  make(map[string]int),
		subs:   make(map[int]Listener),
	}
	s.turn = sync.NewCond(&s.notifyMu)
	return s
}

// UserID returns the scope of the store.
func (s *Store) UserID() string { return s.userID }

func (s *Store) logKey() string      { return "notifications:" + s.userID }
func (s *Store) lastSeenKey() string { return LastSeenKeyPrefix + s.userID }

// Load restores the persisted log. A missing log is not an error.
func (s *Store) Load(ctx context.Context) error {
	var records []domain.Record
	if err := s.kv.Get(ctx, s.logKey(), &records); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("load notifications: %w", err)
	}
	var lastSeen time.Time
	if err := s.kv.Get(ctx, s.lastSeenKey(), &lastSeen); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("load last seen: %w", err)
	}

	s.mu.Lock()
	s.records = s.records[:0]
	s.index = make(map[string]int, len(records))
	for _, r := range records {
		if _, dup := s.index[r.ID]; dup || r.ID == "" {
			continue
		}
		s.index[r.ID] = len(s.records)
		s.records = append(s.records, r)
	}
	s.lastSeen = lastSeen
	s.trimLocked()
	s.reindexLocked()
	snapshot := s.copyLocked()
	s.release(snapshot)
	return nil
}

// Append inserts rec at the head of the log unless a record with the same id exists,
// here or in the persisted log written by another session.
// It reports whether the record was inserted.
func (s *Store) Append(ctx context.Context, rec domain.Record) (bool, error) {
	if rec.ID == "" {
		return false, errors.New("append: record id is required")
	}
	if rec.Type == "" {
		rec.Type = domain.TypeGeneric
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	s.mu.Lock()
	if _, exists := s.index[rec.ID]; exists {
		s.mu.Unlock()
		log.Debug().Str("id", rec.ID).Msg("duplicate notification suppressed")
		return false, nil
	}
	inserted, err := s.commit(ctx, func() bool {
		if _, exists := s.index[rec.ID]; exists {
			return false
		}
		s.records = append([]domain.Record{rec}, s.records...)
		return true
	})
	return inserted, err
}

// MarkRead sets read=true on exactly one record. It reports whether the record changed.
func (s *Store) MarkRead(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	if i, ok := s.index[id]; ok && s.records[i].Read {
		s.mu.Unlock()
		return false, nil
	}
	found := false
	changed, err := s.commit(ctx, func() bool {
		i, ok := s.index[id]
		found = ok
		if !ok || s.records[i].Read {
			return false
		}
		s.records[i].Read = true
		return true
	})
	if !found {
		return false, fmt.Errorf("mark read %q: %w", id, domain.ErrNotFound)
	}
	return changed, err
}

// MarkAllRead marks every record read and stamps the last-seen time.
// It returns the number of records that changed.
func (s *Store) MarkAllRead(ctx context.Context) (int, error) {
	s.mu.Lock()
	changed := 0
	seen := s.now()
	_, errLog := s.commit(ctx, func() bool {
		changed = 0
		for i := range s.records {
			if !s.records[i].Read {
				s.records[i].Read = true
				changed++
			}
		}
		s.lastSeen = seen
		return true
	})
	errSeen := s.kv.Set(ctx, s.lastSeenKey(), seen)
	if err := errors.Join(errLog, errSeen); err != nil {
		return changed, fmt.Errorf("persist read state: %w", err)
	}
	return changed, nil
}

// Prune drops records older than maxAge (Options.MaxAge when maxAge is zero).
// It returns the number of records removed.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = s.opts.MaxAge
	}
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	removed := 0
	_, err := s.commit(ctx, func() bool {
		kept := make([]domain.Record, 0, len(s.records))
		for _, r := range s.records {
			if !r.CreatedAt.Before(cutoff) {
				kept = append(kept, r)
			}
		}
		removed = len(s.records) - len(kept)
		s.records = kept
		return removed > 0
	})
	return removed, err
}

// errUnchanged aborts a KV update whose mutation was a no-op.
var errUnchanged = errors.New("notification log unchanged")

// commit is called with s.mu held and releases it. It folds in the records
// other sessions persisted under the same key, applies mutate, and writes the
// merged log back, atomically when the KV is a domain.Updater. Listeners are
// notified when the visible list changed. mutate may run more than once.
func (s *Store) commit(ctx context.Context, mutate func() bool) (bool, error) {
	base := s.copyLocked()
	baseSeen := s.lastSeen
	var changed, merged, ran bool

	apply := func(load func(dest any) error) (any, error) {
		ran = true
		s.records = append(s.records[:0:0], base...)
		s.lastSeen = baseSeen
		s.reindexLocked()

		var persisted []domain.Record
		if err := load(&persisted); err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Str("user", s.userID).Msg("failed to read shared notification log, writing local copy")
			persisted = nil
		}
		merged = s.mergeLocked(persisted)
		changed = mutate()
		if !changed {
			return nil, errUnchanged
		}
		s.trimLocked()
		s.reindexLocked()
		return s.copyLocked(), nil
	}

	var err error
	if u, ok := s.kv.(domain.Updater); ok {
		err = u.Update(ctx, s.logKey(), apply)
	} else {
		var value any
		value, err = apply(func(dest any) error { return s.kv.Get(ctx, s.logKey(), dest) })
		if err == nil {
			err = s.kv.Set(ctx, s.logKey(), value)
		}
	}
	if err != nil && !ran {
		// The KV failed before reading; keep the change in memory.
		_, _ = apply(func(any) error { return domain.ErrNotFound })
	}
	if errors.Is(err, errUnchanged) {
		err = nil
	}
	if err != nil {
		err = fmt.Errorf("persist notifications: %w", err)
	}

	if changed || merged {
		s.release(s.copyLocked())
	} else {
		s.mu.Unlock()
	}
	return changed, err
}

// mergeLocked adds records persisted by other sessions and carries over their
// read flags. It reports whether the in-memory log changed.
func (s *Store) mergeLocked(persisted []domain.Record) bool {
	changed, added := false, false
	for _, p := range persisted {
		if p.ID == "" {
			continue
		}
		if i, ok := s.index[p.ID]; ok {
			if p.Read && !s.records[i].Read {
				s.records[i].Read = true
				changed = true
			}
			continue
		}
		s.index[p.ID] = len(s.records)
		s.records = append(s.records, p)
		added = true
	}
	if added {
		sort.SliceStable(s.records, func(i, j int) bool {
			return s.records[i].CreatedAt.After(s.records[j].CreatedAt)
		})
		s.trimLocked()
		s.reindexLocked()
	}
	return changed || added
}

// List returns a copy of the log, most recent first.
func (s *Store) List() []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (domain.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return domain.Record{}, false
	}
	return s.records[i], true
}

// UnreadCount counts records that are unread and not older than the last-seen stamp.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if r.Read || r.CreatedAt.Before(s.lastSeen) {
			continue
		}
		n++
	}
	return n
}

// LastSeen returns the time of the last MarkAllRead.
func (s *Store) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Subscribe registers fn and returns a function that removes it.
// fn is called synchronously after every mutation with the full list.
func (s *Store) Subscribe(fn Listener) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// release drops the data lock and delivers snapshot once every earlier
// mutation has been delivered, so listeners observe mutations in order.
// Listeners may read the store but must not mutate it.
func (s *Store) release(snapshot []domain.Record) {
	s.seq++
	turn := s.seq
	s.mu.Unlock()

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	for s.delivered != turn-1 {
		s.turn.Wait()
	}
	s.notify(snapshot)
	s.delivered = turn
	s.turn.Broadcast()
}

// notify runs listeners on the caller's goroutine.
func (s *Store) notify(snapshot []domain.Record) {
	s.subMu.RLock()
	listeners := make([]Listener, 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range listeners {
		list := make([]domain.Record, len(snapshot))
		copy(list, snapshot)
		fn(list)
	}
}

func (s *Store) trimLocked() {
	if s.opts.MaxRecords > 0 && len(s.records) > s.opts.MaxRecords {
		s.records = s.records[:s.opts.MaxRecords]
	}
}

func (s *Store) reindexLocked() {
	s.index = make(map[string]int, len(s.records))
	for i, r := range s.records {
		s.index[r.ID] = i
	}
}

func (s *Store) copyLocked() []domain.Record {
	out := make([]domain.Record, len(s.records))
	copy(out, s.records)
	return out
}
