// Package dedupe keeps the first result seen per guild within a collection run.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records seen keys so later results for the same guild are dropped.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Size is the number of distinct keys recorded.
	Size() int

	// Duplicates is the number of calls that found an existing key.
	Duplicates() int

	// Reset forgets all keys, starting a new run.
	Reset()
}

type inMemoryDeduper struct {
	mu         sync.Mutex
	seen       map[string]struct{}
	duplicates int
	capacity   int
}

// Option applies a configuration option to the deduper.
type Option func(*inMemoryDeduper)

// WithCapacity pre-sizes the key set, usually to the guild list length.
func WithCapacity(n int) Option {
	return func(d *inMemoryDeduper) {
		if n > 0 {
			d.capacity = n
		}
	}
}

// NewInMemoryDeduper creates an in-memory deduper. Keys live until Reset.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]struct{}, d.capacity)
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		d.duplicates++
		return true
	}
	d.seen[key] = struct{}{}
	return false
}

func (d *inMemoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *inMemoryDeduper) Duplicates() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.duplicates
}

func (d *inMemoryDeduper) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{}, d.capacity)
	d.duplicates = 0
}
