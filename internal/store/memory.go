package store

import (
	"context"
	"sync"
)

// DefaultHistory is the number of records a [MemoryStore] keeps by default.
const DefaultHistory = 256

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore keeps the most recent records in a fixed-size ring; older
// records are overwritten. It is the short rolling window an orchestrator
// can smooth over without changing the pairwise comparison primitive.
type MemoryStore struct {
	*hub

	mu    sync.RWMutex
	ring  []CycleRecord
	next  int
	count int
}

// NewMemoryStore creates a [MemoryStore] holding up to history records.
// A non-positive history uses [DefaultHistory].
func NewMemoryStore(history int) *MemoryStore {
	if history <= 0 {
		history = DefaultHistory
	}
	return &MemoryStore{
		hub:  newHub(),
		ring: make([]CycleRecord, history),
	}
}

// Append stores rec, evicting the oldest record when full, and notifies
// subscribers.
func (m *MemoryStore) Append(_ context.Context, rec CycleRecord) error {
	m.mu.Lock()
	m.ring[m.next] = rec
	m.next = (m.next + 1) % len(m.ring)
	if m.count < len(m.ring) {
		m.count++
	}
	m.mu.Unlock()

	m.publish(rec)
	return nil
}

// Recent returns up to n records, newest first. The slice is a copy.
func (m *MemoryStore) Recent(_ context.Context, n int) ([]CycleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n <= 0 || n > m.count {
		n = m.count
	}
	out := make([]CycleRecord, 0, n)
	for i := 1; i <= n; i++ {
		idx := (m.next - i + len(m.ring)) % len(m.ring)
		out = append(out, m.ring[idx])
	}
	return out, nil
}

// Latest returns the newest record.
func (m *MemoryStore) Latest(ctx context.Context) (CycleRecord, bool, error) {
	recs, err := m.Recent(ctx, 1)
	if err != nil || len(recs) == 0 {
		return CycleRecord{}, false, err
	}
	return recs[0], true, nil
}

// Len returns the number of records held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// Close closes all subscriber channels.
func (m *MemoryStore) Close() error {
	m.closeAll()
	return nil
}
