package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"contenthub/internal/domain"
	"contenthub/internal/logging"
	"contenthub/internal/metrics"
)

// KV is the local durable key-value storage the store mirrors itself into.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Change describes one committed state transition. Commit hooks receive it
// after the state has been persisted and listeners notified.
type Change struct {
	Version    int64
	Op         string
	EntityKind string
	EntityID   string
	Actor      string
	Payload    map[string]any
	At         time.Time
}

// Store is the in-memory authoritative cache of items, members and checkins.
// All mutations are copy-on-write: collections handed out by snapshot methods
// are never modified afterwards and must be treated as read-only.
type Store struct {
	kv      KV
	now     func() time.Time
	newID   func() string
	loc     *time.Location
	log     logging.Logger
	metrics *metrics.Collector
	hooks   []func(Change)

	mu         sync.Mutex
	items      []domain.ContentItem
	members    []domain.TeamMember
	checkins   []domain.Checkin
	version    int64
	byType     map[domain.ItemType][]domain.ContentItem
	persistErr error

	lmu          sync.Mutex
	listeners    []listener
	nextListener int
}

type listener struct {
	id int
	fn func()
}

type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithLocation sets the zone used for calendar boundaries such as "this
// month". Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Store) { s.metrics = m }
}

// WithCommitHook registers fn to run after every commit.
func WithCommitHook(fn func(Change)) Option {
	return func(s *Store) { s.hooks = append(s.hooks, fn) }
}

// New returns an empty store backed by kv. Call Load to restore persisted
// state.
func New(kv KV, opts ...Option) *Store {
	s := &Store{
		kv:    kv,
		now:   time.Now,
		newID: uuid.NewString,
		loc:   time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	return s
}

// Subscribe registers a zero-argument listener invoked after every committed
// change. The returned function removes it; calling it twice is harmless.
func (s *Store) Subscribe(fn func()) func() {
	s.lmu.Lock()
	s.nextListener++
	id := s.nextListener
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.lmu.Unlock()
	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) notify() {
	s.lmu.Lock()
	ls := make([]listener, len(s.listeners))
	copy(ls, s.listeners)
	s.lmu.Unlock()
	for _, l := range ls {
		s.call(l)
	}
}

func (s *Store) call(l listener) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logging.Fields{"listener": l.id, "panic": r}).Error("store listener panicked")
		}
	}()
	l.fn()
}

// Version returns the dataset version counter.
func (s *Store) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// AllItems returns every item. The slice identity only changes when a commit
// happens.
func (s *Store) AllItems() []domain.ContentItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items
}

// Items returns the items of one type, or all items when t is empty. The
// filtered slice is cached until the next commit.
func (s *Store) Items(t domain.ItemType) []domain.ContentItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t == "" {
		return s.items
	}
	if cached, ok := s.byType[t]; ok {
		return cached
	}
	res := []domain.ContentItem{}
	for _, it := range s.items {
		if it.Type == t {
			res = append(res, it)
		}
	}
	if s.byType == nil {
		s.byType = map[domain.ItemType][]domain.ContentItem{}
	}
	s.byType[t] = res
	return res
}

func (s *Store) Members() []domain.TeamMember {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members
}

func (s *Store) Checkins() []domain.Checkin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkins
}

// GetItem looks an item up by id.
func (s *Store) GetItem(id string) (domain.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return domain.ContentItem{}, notFound("item", id)
	}
	return s.items[idx], nil
}

func (s *Store) indexOf(id string) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func notFound(kind, id string) error {
	return &notFoundError{kind: kind, id: id}
}

type notFoundError struct {
	kind, id string
}

func (e *notFoundError) Error() string { return e.kind + " " + e.id + " not found" }

func (e *notFoundError) Unwrap() error { return ErrNotFound }

// commitLocked bumps the version, persists and invalidates the snapshot
// cache. The caller holds s.mu and must call publish after unlocking.
func (s *Store) commitLocked(ctx context.Context, ch Change) Change {
	s.version++
	return s.finishLocked(ctx, ch)
}

// finishLocked persists the current state without touching the version.
func (s *Store) finishLocked(ctx context.Context, ch Change) Change {
	s.byType = nil
	s.persistLocked(ctx)
	ch.Version = s.version
	if ch.At.IsZero() {
		ch.At = s.now()
	}
	s.metrics.Mutation(ch.Op)
	s.metrics.Observe(s.version, countByType(s.items))
	return ch
}

// publish notifies listeners, then hooks. It must run without s.mu held so
// listeners can read snapshots.
func (s *Store) publish(ch Change) {
	s.log.WithFields(logging.Fields{
		"op":      ch.Op,
		"entity":  ch.EntityID,
		"version": ch.Version,
	}).Debug("store commit")
	s.notify()
	for _, h := range s.hooks {
		s.runHook(h, ch)
	}
}

func (s *Store) runHook(h func(Change), ch Change) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logging.Fields{"op": ch.Op, "panic": r}).Error("commit hook panicked")
		}
	}()
	h(ch)
}

func countByType(items []domain.ContentItem) map[string]int {
	res := map[string]int{}
	for _, it := range items {
		res[string(it.Type)]++
	}
	return res
}
