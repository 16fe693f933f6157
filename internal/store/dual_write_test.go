package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type widget struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UpdatedAt int64  `json:"updated_at"`
}

func (w widget) EntityID() string { return w.ID }

func (w widget) WithID(id string) widget {
	w.ID = id
	return w
}

func (w widget) Stamp(now time.Time) widget {
	w.UpdatedAt = now.Unix()
	return w
}

// fakeRemote records every call; fail makes each call return an error
type fakeRemote struct {
	mu       sync.Mutex
	records  []widget
	fail     bool
	remoteID string
	updates  []widget
	deletes  []string
}

var errRemoteDown = errors.New("remote down")

func (r *fakeRemote) GetAll(ctx context.Context) ([]widget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return nil, errRemoteDown
	}
	return append([]widget(nil), r.records...), nil
}

func (r *fakeRemote) Create(ctx context.Context, record widget) (widget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return widget{}, errRemoteDown
	}
	if r.remoteID != "" {
		record.ID = r.remoteID
	}
	r.records = append(r.records, record)
	return record, nil
}

func (r *fakeRemote) Update(ctx context.Context, record widget) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errRemoteDown
	}
	r.updates = append(r.updates, record)
	return nil
}

func (r *fakeRemote) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errRemoteDown
	}
	r.deletes = append(r.deletes, id)
	return nil
}

func fixedOptions() Options {
	n := 0
	return Options{
		RemoteEnabled: true,
		Now:           func() time.Time { return time.Unix(1_700_000_000, 0) },
		NewID: func() string {
			n++
			return "local-" + strconv.Itoa(n)
		},
	}
}

func TestCreateKeepsRecordWhenRemoteFails(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{fail: true}
	cache := NewMemoryCache[widget]()
	s := NewDualWriteStore[widget]("widgets", remote, cache, fixedOptions())

	created := s.Create(ctx, widget{Name: "first"})

	if created.ID != "local-1" {
		t.Fatalf("id = %q, want local-1", created.ID)
	}
	if created.UpdatedAt != 1_700_000_000 {
		t.Fatalf("record was not stamped: %+v", created)
	}
	if got, ok := s.Get("local-1"); !ok || got.Name != "first" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}
	cached, _ := cache.Load(ctx)
	if len(cached) != 1 || cached[0].ID != "local-1" {
		t.Fatalf("cache = %+v, want the new record", cached)
	}
}

func TestCreateAdoptsRemoteID(t *testing.T) {
	remote := &fakeRemote{remoteID: "server-7"}
	s := NewDualWriteStore[widget]("widgets", remote, nil, fixedOptions())

	created := s.Create(context.Background(), widget{Name: "x"})

	if created.ID != "server-7" {
		t.Fatalf("id = %q, want server-7", created.ID)
	}
	if _, ok := s.Get("local-1"); ok {
		t.Fatalf("local id should have been replaced")
	}
}

func TestLoadAllFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache[widget]()
	cache.Save(ctx, []widget{{ID: "cached", Name: "from disk"}})
	s := NewDualWriteStore[widget]("widgets", &fakeRemote{fail: true}, cache, fixedOptions())

	got := s.LoadAll(ctx)

	if len(got) != 1 || got[0].ID != "cached" {
		t.Fatalf("LoadAll = %+v, want the cached record", got)
	}
}

func TestLoadAllEmptyRemoteReplacesCache(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache[widget]()
	cache.Save(ctx, []widget{{ID: "stale"}})
	s := NewDualWriteStore[widget]("widgets", &fakeRemote{}, cache, fixedOptions())

	if got := s.LoadAll(ctx); len(got) != 0 {
		t.Fatalf("LoadAll = %+v, want empty", got)
	}
	if cached, _ := cache.Load(ctx); len(cached) != 0 {
		t.Fatalf("cache = %+v, want it cleared", cached)
	}
}

func TestLoadAllWithRemoteDisabledUsesCache(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache[widget]()
	cache.Save(ctx, []widget{{ID: "a"}, {ID: "b"}})
	remote := &fakeRemote{records: []widget{{ID: "remote"}}}
	opts := fixedOptions()
	opts.RemoteEnabled = false
	s := NewDualWriteStore[widget]("widgets", remote, cache, opts)

	if got := s.LoadAll(ctx); len(got) != 2 {
		t.Fatalf("LoadAll = %+v, want the two cached records", got)
	}
	s.Create(ctx, widget{Name: "offline"})
	if len(remote.records) != 1 {
		t.Fatalf("remote was written while disabled")
	}
}

func TestUpdateAndDeleteSyncInBackground(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{}
	s := NewDualWriteStore[widget]("widgets", remote, nil, fixedOptions())
	created := s.Create(ctx, widget{Name: "old"})

	updated, err := s.Update(ctx, created.ID, func(w *widget) { w.Name = "new" })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "new" || updated.ID != created.ID {
		t.Fatalf("updated = %+v", updated)
	}
	if err := s.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	s.Wait()

	if len(remote.updates) != 1 || remote.updates[0].Name != "new" {
		t.Fatalf("remote updates = %+v", remote.updates)
	}
	if len(remote.deletes) != 1 || remote.deletes[0] != created.ID {
		t.Fatalf("remote deletes = %v", remote.deletes)
	}
	if len(s.List()) != 0 {
		t.Fatalf("record still listed after delete")
	}
}

func TestUpdateSurvivesRemoteFailure(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{}
	s := NewDualWriteStore[widget]("widgets", remote, nil, fixedOptions())
	created := s.Create(ctx, widget{Name: "old"})

	remote.mu.Lock()
	remote.fail = true
	remote.mu.Unlock()

	if _, err := s.Update(ctx, created.ID, func(w *widget) { w.Name = "new" }); err != nil {
		t.Fatalf("Update should not surface a remote failure: %v", err)
	}
	s.Wait()

	if got, _ := s.Get(created.ID); got.Name != "new" {
		t.Fatalf("local state = %+v, want the update kept", got)
	}
}

func TestUpdateMissingRecord(t *testing.T) {
	s := NewDualWriteStore[widget]("widgets", nil, nil, fixedOptions())

	if _, err := s.Update(context.Background(), "nope", func(w *widget) {}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete err = %v, want ErrNotFound", err)
	}
}

func TestApplyLocalAndRestoreLocal(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{}
	s := NewDualWriteStore[widget]("widgets", remote, nil, fixedOptions())
	created := s.Create(ctx, widget{Name: "before"})

	prev, next, err := s.ApplyLocal(ctx, created.ID, func(w *widget) { w.Name = "after" })
	if err != nil {
		t.Fatalf("ApplyLocal: %v", err)
	}
	if prev.Name != "before" || next.Name != "after" {
		t.Fatalf("prev/next = %+v / %+v", prev, next)
	}

	s.RestoreLocal(ctx, prev)
	s.Wait()

	if got, _ := s.Get(created.ID); got.Name != "before" {
		t.Fatalf("restored = %+v", got)
	}
	if len(remote.updates) != 0 {
		t.Fatalf("local-only writes reached the remote: %+v", remote.updates)
	}
}

func TestListReturnsCopy(t *testing.T) {
	s := NewDualWriteStore[widget]("widgets", nil, nil, fixedOptions())
	s.Create(context.Background(), widget{Name: "a"})

	list := s.List()
	list[0].Name = "mutated"

	if got := s.List(); got[0].Name != "a" {
		t.Fatalf("List leaked internal state: %+v", got)
	}
}

func TestCreateUniqueSerializesConcurrentCreates(t *testing.T) {
	ctx := context.Background()
	s := NewDualWriteStore[widget]("widgets", &fakeRemote{}, nil, fixedOptions())

	nextName := func(existing []widget) (widget, error) {
		return widget{Name: "w" + strconv.Itoa(len(existing)+1)}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.CreateUnique(ctx, nextName); err != nil {
				t.Errorf("CreateUnique: %v", err)
			}
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, w := range s.List() {
		if seen[w.Name] {
			t.Fatalf("name %s handed out twice", w.Name)
		}
		seen[w.Name] = true
	}
	if len(seen) != 20 {
		t.Fatalf("created %d widgets, want 20", len(seen))
	}
}

func TestCreateUniqueBuildErrorCreatesNothing(t *testing.T) {
	remote := &fakeRemote{}
	s := NewDualWriteStore[widget]("widgets", remote, nil, fixedOptions())
	errTaken := errors.New("taken")

	_, err := s.CreateUnique(context.Background(), func(existing []widget) (widget, error) {
		return widget{}, errTaken
	})
	if !errors.Is(err, errTaken) {
		t.Fatalf("err = %v, want errTaken", err)
	}
	if len(s.List()) != 0 || len(remote.records) != 0 {
		t.Fatalf("a rejected create left records behind")
	}
}

func TestDeleteLocalThenInsertLocalKeepsPosition(t *testing.T) {
	ctx := context.Background()
	s := NewDualWriteStore[widget]("widgets", nil, nil, fixedOptions())
	for _, name := range []string{"a", "b", "c"} {
		s.Create(ctx, widget{Name: name})
	}

	removed, at, err := s.DeleteLocal(ctx, "local-2")
	if err != nil {
		t.Fatalf("DeleteLocal: %v", err)
	}
	if at != 1 {
		t.Fatalf("removed at %d, want 1", at)
	}

	s.InsertLocal(ctx, removed, at)

	var names []string
	for _, w := range s.List() {
		names = append(names, w.Name)
	}
	if got := strings.Join(names, ""); got != "abc" {
		t.Fatalf("order after restore = %s, want abc", got)
	}

	// Out-of-range positions append
	s.InsertLocal(ctx, widget{ID: "x", Name: "d"}, 99)
	if got := s.List(); got[len(got)-1].ID != "x" {
		t.Fatalf("last = %+v, want x", got[len(got)-1])
	}
}
