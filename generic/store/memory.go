// Package store provides in-process RecordStore and AuditLog implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/workforce-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records map[string]generic.Record
	clock   generic.Clock

	subMu  sync.Mutex
	nextID int
	subs   map[int]subscription
}

type subscription struct {
	path string
	fn   func(generic.ChangeEvent)
}

var _ generic.RecordStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]generic.Record),
		subs:    make(map[int]subscription),
	}
}

// WithClock pins the UpdatedAt stamp for tests.
func (m *Memory) WithClock(c generic.Clock) *Memory {
	m.clock = c
	return m
}

func (m *Memory) Read(_ context.Context, path string) (generic.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[path]
	return copyRecord(rec), ok, nil
}

func (m *Memory) Write(_ context.Context, path string, value []byte) (generic.Record, error) {
	m.mu.Lock()
	rec := m.writeLocked(path, value)
	m.mu.Unlock()

	m.notify(generic.ChangeEvent{Path: path, Kind: generic.ChangeWritten, Version: rec.Version})
	return rec, nil
}

func (m *Memory) CompareAndWrite(_ context.Context, path string, value []byte, version int64) (generic.Record, error) {
	m.mu.Lock()
	current := m.records[path].Version
	if current != version {
		m.mu.Unlock()
		return generic.Record{}, &generic.ConflictError{Path: path, Expected: version, Actual: current}
	}
	rec := m.writeLocked(path, value)
	m.mu.Unlock()

	m.notify(generic.ChangeEvent{Path: path, Kind: generic.ChangeWritten, Version: rec.Version})
	return rec, nil
}

func (m *Memory) writeLocked(path string, value []byte) generic.Record {
	rec := generic.Record{
		Path:      path,
		Value:     append([]byte(nil), value...),
		Version:   m.records[path].Version + 1,
		UpdatedAt: m.clock.Now(),
	}
	m.records[path] = rec
	return copyRecord(rec)
}

func (m *Memory) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	rec, ok := m.records[path]
	delete(m.records, path)
	m.mu.Unlock()

	if ok {
		m.notify(generic.ChangeEvent{Path: path, Kind: generic.ChangeDeleted, Version: rec.Version})
	}
	return nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]generic.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Record
	for p, rec := range m.records {
		if under(p, prefix) {
			result = append(result, copyRecord(rec))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result, nil
}

// Subscribe delivers events synchronously on the writing goroutine.
func (m *Memory) Subscribe(path string, fn func(generic.ChangeEvent)) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = subscription{path: path, fn: fn}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
		})
	}
}

func (m *Memory) notify(ev generic.ChangeEvent) {
	m.subMu.Lock()
	var targets []func(generic.ChangeEvent)
	for _, s := range m.subs {
		if s.path == ev.Path || under(ev.Path, s.path) {
			targets = append(targets, s.fn)
		}
	}
	m.subMu.Unlock()

	for _, fn := range targets {
		fn(ev)
	}
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func under(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/")
}

func copyRecord(rec generic.Record) generic.Record {
	if rec.Value != nil {
		rec.Value = append([]byte(nil), rec.Value...)
	}
	return rec
}

// =============================================================================
// MEMORY AUDIT LOG
// =============================================================================

// MemoryAuditLog keeps entries in append order.
type MemoryAuditLog struct {
	mu      sync.RWMutex
	entries []generic.AuditEntry
}

var _ generic.AuditLog = (*MemoryAuditLog)(nil)

func NewMemoryAuditLog() *MemoryAuditLog { return &MemoryAuditLog{} }

func (l *MemoryAuditLog) Append(_ context.Context, entry generic.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *MemoryAuditLog) Query(_ context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []generic.AuditEntry
	for _, e := range l.entries {
		if !filter.Matches(e) {
			continue
		}
		result = append(result, e)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}
