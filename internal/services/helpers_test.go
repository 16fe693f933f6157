package services

import (
	"context"
	"sync"
	"testing"

	"binfleet-backend/internal/models"
	"binfleet-backend/internal/store"
)

func strPtr(s string) *string {
	return &s
}

func floatPtr(f float64) *float64 {
	return &f
}

func newBinStore(t *testing.T, bins ...models.Bin) *store.DualWriteStore[models.Bin] {
	t.Helper()
	s := store.NewDualWriteStore[models.Bin]("bins", nil, nil, store.Options{})
	for _, b := range bins {
		s.RestoreLocal(context.Background(), b)
	}
	return s
}

func newDriverStore(t *testing.T, drivers ...models.Driver) *store.DualWriteStore[models.Driver] {
	t.Helper()
	s := store.NewDualWriteStore[models.Driver]("drivers", nil, nil, store.Options{})
	for _, d := range drivers {
		s.RestoreLocal(context.Background(), d)
	}
	return s
}

// staticSource returns a fixed set of readings and records what it was asked for
type staticSource struct {
	mu           sync.Mutex
	measurements map[string]models.Measurement
	err          error
	requested    [][]string
}

func (s *staticSource) FetchBulkMeasurements(ctx context.Context, ids []string) (map[string]models.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requested = append(s.requested, append([]string(nil), ids...))
	if s.err != nil {
		return nil, s.err
	}
	// Every reading comes back, including sensors nobody asked about
	out := make(map[string]models.Measurement, len(s.measurements))
	for id, m := range s.measurements {
		out[id] = m
	}
	return out, nil
}

func (s *staticSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requested)
}

type recordingNotifier struct {
	mu       sync.Mutex
	assigned map[string][]string
	full     []string
	sent     chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		assigned: make(map[string][]string),
		sent:     make(chan struct{}, 16),
	}
}

func (n *recordingNotifier) SendBinsAssignedNotification(ctx context.Context, token string, binNumbers []string) error {
	n.mu.Lock()
	n.assigned[token] = append(n.assigned[token], binNumbers...)
	n.mu.Unlock()
	n.sent <- struct{}{}
	return nil
}

func (n *recordingNotifier) SendBinFullNotification(ctx context.Context, token string, bin models.Bin) error {
	n.mu.Lock()
	n.full = append(n.full, token+":"+bin.BinNumber)
	n.mu.Unlock()
	n.sent <- struct{}{}
	return nil
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []map[string]interface{}
	toUser map[string][]map[string]interface{}
}

func (b *recordingBroadcaster) BroadcastToUser(userID string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.toUser == nil {
		b.toUser = make(map[string][]map[string]interface{})
	}
	if event, ok := data.(map[string]interface{}); ok {
		b.toUser[userID] = append(b.toUser[userID], event)
	}
}

func (b *recordingBroadcaster) BroadcastToRole(role string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if event, ok := data.(map[string]interface{}); ok && role == "admin" {
		b.events = append(b.events, event)
	}
}

func (b *recordingBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i], _ = e["type"].(string)
	}
	return out
}
