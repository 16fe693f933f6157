package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("record not found")

// Entity is implemented by every record kept in a DualWriteStore
type Entity[T any] interface {
	EntityID() string
	WithID(id string) T
}

// stamper is implemented by records that carry created_at/updated_at
type stamper[T any] interface {
	Stamp(now time.Time) T
}

// Remote is the hosted backend for one entity type. Every call may fail transiently.
type Remote[T any] interface {
	GetAll(ctx context.Context) ([]T, error)
	Create(ctx context.Context, record T) (T, error)
	Update(ctx context.Context, record T) error
	Delete(ctx context.Context, id string) error
}

// Cache is the local copy of a whole collection
type Cache[T any] interface {
	Load(ctx context.Context) ([]T, error)
	Save(ctx context.Context, records []T) error
}

type Options struct {
	// RemoteEnabled replaces the old global "use hosted backend" switch
	RemoteEnabled bool
	// WriteTimeout bounds each background remote write
	WriteTimeout time.Duration
	Now          func() time.Time
	NewID        func() string
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 15 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = newID
	}
	return o
}

// newID returns a time-ordered random id (UUIDv7) so offline clients never collide
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// DualWriteStore keeps one entity collection in memory, mirrors it into a
// local cache and syncs it to the remote backend on a best-effort basis.
// Local state is the source of truth for the running process.
type DualWriteStore[T Entity[T]] struct {
	name   string
	remote Remote[T]
	cache  Cache[T]
	opts   Options

	mu    sync.RWMutex
	items []T

	// createMu serializes creates so CreateUnique sees every earlier record
	createMu sync.Mutex

	saveMu   sync.Mutex
	inflight sync.WaitGroup
}

func NewDualWriteStore[T Entity[T]](name string, remote Remote[T], cache Cache[T], opts Options) *DualWriteStore[T] {
	if cache == nil {
		cache = NewMemoryCache[T]()
	}
	return &DualWriteStore[T]{
		name:   name,
		remote: remote,
		cache:  cache,
		opts:   opts.withDefaults(),
	}
}

func (s *DualWriteStore[T]) remoteOn() bool {
	return s.opts.RemoteEnabled && s.remote != nil
}

// LoadAll prefers the remote collection and mirrors it into the cache. An
// empty remote result replaces the cache; only a remote error falls back to it.
func (s *DualWriteStore[T]) LoadAll(ctx context.Context) []T {
	if s.remoteOn() {
		records, err := s.remote.GetAll(ctx)
		if err == nil {
			if records == nil {
				records = []T{}
			}
			s.replace(records)
			s.persist(ctx)
			log.Printf("✅ [%s] loaded %d records from remote", s.name, len(records))
			return s.List()
		}
		log.Printf("⚠️  [%s] remote load failed, falling back to local cache: %v", s.name, err)
	}

	cached, err := s.cache.Load(ctx)
	if err != nil {
		log.Printf("❌ [%s] local cache load failed, keeping in-memory state: %v", s.name, err)
		return s.List()
	}
	if cached == nil {
		cached = []T{}
	}
	s.replace(cached)
	log.Printf("📦 [%s] loaded %d records from local cache", s.name, len(cached))
	return s.List()
}

// Create assigns a local id, tries the remote write and always keeps the
// record locally, even when the remote is unavailable.
func (s *DualWriteStore[T]) Create(ctx context.Context, draft T) T {
	s.createMu.Lock()
	defer s.createMu.Unlock()
	return s.create(ctx, draft)
}

// CreateUnique builds the draft from the current collection and inserts it
// before any other create can run. An error from build aborts the create.
func (s *DualWriteStore[T]) CreateUnique(ctx context.Context, build func(existing []T) (T, error)) (T, error) {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	draft, err := build(s.List())
	if err != nil {
		var zero T
		return zero, err
	}
	return s.create(ctx, draft), nil
}

func (s *DualWriteStore[T]) create(ctx context.Context, draft T) T {
	record := s.stamp(draft.WithID(s.opts.NewID()))

	if s.remoteOn() {
		wctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
		created, err := s.remote.Create(wctx, record)
		cancel()
		if err != nil {
			log.Printf("⚠️  [%s] remote create failed, kept locally (id=%s): %v", s.name, record.EntityID(), err)
		} else if remoteID := created.EntityID(); remoteID != "" && remoteID != record.EntityID() {
			log.Printf("🔄 [%s] adopting remote id %s for local id %s", s.name, remoteID, record.EntityID())
			record = record.WithID(remoteID)
		}
	}

	s.mu.Lock()
	s.items = append(s.items, record)
	s.mu.Unlock()
	s.persist(ctx)

	return record
}

// Update applies mutate locally right away and syncs the result in the background
func (s *DualWriteStore[T]) Update(ctx context.Context, id string, mutate func(*T)) (T, error) {
	_, next, err := s.ApplyLocal(ctx, id, mutate)
	if err != nil {
		return next, err
	}
	s.Push(ctx, next)
	return next, nil
}

// Delete removes the record locally right away and deletes it remotely in the background
func (s *DualWriteStore[T]) Delete(ctx context.Context, id string) error {
	if _, _, err := s.DeleteLocal(ctx, id); err != nil {
		return err
	}
	s.PushDelete(ctx, id)
	return nil
}

// ApplyLocal mutates the local copy only and returns the record before and
// after. Callers that batch several local writes dispatch them with Push.
func (s *DualWriteStore[T]) ApplyLocal(ctx context.Context, id string, mutate func(*T)) (prev T, next T, err error) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return prev, next, fmt.Errorf("%s %s: %w", s.name, id, ErrNotFound)
	}
	prev = s.items[idx]
	next = prev
	mutate(&next)
	next = s.stamp(next.WithID(id))
	s.items[idx] = next
	s.mu.Unlock()

	s.persist(ctx)
	return prev, next, nil
}

// DeleteLocal removes the local copy only and returns it with its position
// so InsertLocal can put it back where it was
func (s *DualWriteStore[T]) DeleteLocal(ctx context.Context, id string) (removed T, at int, err error) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return removed, -1, fmt.Errorf("%s %s: %w", s.name, id, ErrNotFound)
	}
	removed = s.items[idx]
	s.items = append(s.items[:idx:idx], s.items[idx+1:]...)
	s.mu.Unlock()

	s.persist(ctx)
	return removed, idx, nil
}

// InsertLocal puts record back at position at, or replaces the copy with the
// same id if one is present. Positions past the end append.
func (s *DualWriteStore[T]) InsertLocal(ctx context.Context, record T, at int) {
	s.mu.Lock()
	if idx := s.indexOf(record.EntityID()); idx >= 0 {
		s.items[idx] = record
	} else {
		at = max(0, min(at, len(s.items)))
		s.items = append(s.items[:at:at], append([]T{record}, s.items[at:]...)...)
	}
	s.mu.Unlock()
	s.persist(ctx)
}

// RestoreLocal puts record back into local state, replacing any copy with the same id
func (s *DualWriteStore[T]) RestoreLocal(ctx context.Context, record T) {
	s.mu.Lock()
	if idx := s.indexOf(record.EntityID()); idx >= 0 {
		s.items[idx] = record
	} else {
		s.items = append(s.items, record)
	}
	s.mu.Unlock()
	s.persist(ctx)
}

// Push sends record to the remote backend without blocking the caller
func (s *DualWriteStore[T]) Push(ctx context.Context, record T) {
	s.dispatch(ctx, "update", record.EntityID(), func(wctx context.Context) error {
		return s.remote.Update(wctx, record)
	})
}

// PushDelete deletes id on the remote backend without blocking the caller
func (s *DualWriteStore[T]) PushDelete(ctx context.Context, id string) {
	s.dispatch(ctx, "delete", id, func(wctx context.Context) error {
		return s.remote.Delete(wctx, id)
	})
}

// Get returns a copy of the record with the given id
func (s *DualWriteStore[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexOf(id); idx >= 0 {
		return s.items[idx], true
	}
	var zero T
	return zero, false
}

// List returns a copy of the local collection in insertion order
func (s *DualWriteStore[T]) List() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Wait blocks until every background remote write has settled
func (s *DualWriteStore[T]) Wait() {
	s.inflight.Wait()
}

func (s *DualWriteStore[T]) dispatch(ctx context.Context, op, id string, write func(context.Context) error) {
	if !s.remoteOn() {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("❌ [%s] remote %s %s panicked: %v", s.name, op, id, r)
			}
		}()

		// The write outlives the request that triggered it
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.WriteTimeout)
		defer cancel()

		if err := write(wctx); err != nil {
			log.Printf("⚠️  [%s] remote %s %s failed, local state kept: %v", s.name, op, id, err)
		}
	}()
}

// persist writes the latest local collection to the cache. saveMu makes sure
// an older snapshot can never overwrite a newer one.
func (s *DualWriteStore[T]) persist(ctx context.Context) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if err := s.cache.Save(context.WithoutCancel(ctx), s.List()); err != nil {
		log.Printf("⚠️  [%s] local cache save failed: %v", s.name, err)
	}
}

func (s *DualWriteStore[T]) replace(records []T) {
	s.mu.Lock()
	s.items = make([]T, len(records))
	copy(s.items, records)
	s.mu.Unlock()
}

func (s *DualWriteStore[T]) stamp(record T) T {
	if st, ok := any(record).(stamper[T]); ok {
		return st.Stamp(s.opts.Now())
	}
	return record
}

// indexOf must be called with mu held
func (s *DualWriteStore[T]) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].EntityID() == id {
			return i
		}
	}
	return -1
}
