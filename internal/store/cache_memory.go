package store

import (
	"context"
	"sync"
)

// MemoryCache keeps the collection for the lifetime of the process only
type MemoryCache[T any] struct {
	mu      sync.Mutex
	records []T
}

func NewMemoryCache[T any]() *MemoryCache[T] {
	return &MemoryCache[T]{}
}

func (c *MemoryCache[T]) Load(ctx context.Context) ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.records))
	copy(out, c.records)
	return out, nil
}

func (c *MemoryCache[T]) Save(ctx context.Context, records []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = make([]T, len(records))
	copy(c.records, records)
	return nil
}
