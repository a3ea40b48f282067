package repository

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	count     int
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCodeStore is the in-process CodeStore. Expired entries are dropped
// lazily on access.
type MemoryCodeStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (r *MemoryCodeStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = r.now().Add(ttl)
	}
	r.entries[key] = entry
	return nil
}

func (r *MemoryCodeStore) TakeIfValid(_ context.Context, key, value string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.live(key)
	if !ok || entry.value != value {
		return false, nil
	}
	delete(r.entries, key)
	return true, nil
}

func (r *MemoryCodeStore) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
	return nil
}

func (r *MemoryCodeStore) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.live(key)
	if !ok {
		entry = &memoryEntry{expiresAt: r.now().Add(window)}
		r.entries[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}

// live returns the entry for key, evicting it first if it has expired.
// Callers hold r.mu.
func (r *MemoryCodeStore) live(key string) (*memoryEntry, bool) {
	entry, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	if entry.expired(r.now()) {
		delete(r.entries, key)
		return nil, false
	}
	return entry, true
}
