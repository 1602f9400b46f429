// Package mirror holds the in-process editable copy of the remote inventory table.
//
// Rows are addressed by position. A position is only meaningful for the
// generation of the table it was read from; every Replace starts a new
// generation.
package mirror

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/pantry-pilot/internal/model"
)

// Row is a table row together with its position in the mirror.
type Row struct {
	Index int                 `json:"index"`
	Item  model.InventoryItem `json:"item"`
}

// Scope selects the rows DistinctCategories looks at.
type Scope struct {
	location string
	global   bool
}

// Global covers the whole table.
func Global() Scope { return Scope{global: true} }

// WithinLocation covers rows of a single location.
func WithinLocation(location string) Scope { return Scope{location: location} }

// IndexError is returned for a row index outside the table.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("row index %d out of range [0,%d)", e.Index, e.Len)
}

type Option func(*Mirror)

// WithClock overrides the clock used for date stamps.
func WithClock(now func() time.Time) Option {
	return func(m *Mirror) { m.now = now }
}

// Mirror is the local copy every mutation targets.
type Mirror struct {
	mu         sync.RWMutex
	table      model.Table
	version    uint64
	synced     uint64
	generation string
	loaded     bool
	now        func() time.Time
}

// New returns an empty, unloaded mirror.
func New(opts ...Option) *Mirror {
	m := &Mirror{now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Replace adopts t as the current state, discarding local changes. Invalid
// tables are refused and leave the mirror untouched.
func (m *Mirror) Replace(t model.Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	cp := t.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table = cp
	m.version++
	m.synced = m.version
	m.generation = uuid.NewString()
	m.loaded = true
	return nil
}

// Loaded reports whether a table has been adopted.
func (m *Mirror) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// Generation identifies the adopted table; it changes on every Replace.
func (m *Mirror) Generation() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.table.Rows)
}

// Item returns a copy of the row at index.
func (m *Mirror) Item(index int) (model.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkIndex(index); err != nil {
		return model.InventoryItem{}, err
	}
	return m.table.Rows[index], nil
}

func (m *Mirror) checkIndex(index int) error {
	if index < 0 || index >= len(m.table.Rows) {
		return &IndexError{Index: index, Len: len(m.table.Rows)}
	}
	return nil
}

// Filter returns the rows matching both location and category exactly, in table order.
func (m *Mirror) Filter(location, category string) []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Row
	for i, it := range m.table.Rows {
		if it.Location == location && it.Category == category {
			out = append(out, Row{Index: i, Item: it})
		}
	}
	return out
}

// DistinctLocations returns every non-empty location, sorted.
func (m *Mirror) DistinctLocations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := make(map[string]struct{})
	for _, it := range m.table.Rows {
		if it.Location != "" {
			set[it.Location] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// DistinctCategories returns every non-empty category in scope, sorted.
func (m *Mirror) DistinctCategories(scope Scope) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := make(map[string]struct{})
	for _, it := range m.table.Rows {
		if it.Category == "" {
			continue
		}
		if scope.global || it.Location != "" && it.Location == scope.location {
			set[it.Category] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a deep copy of the table, the version it reflects and
// whether that version had not been flushed, all read under one lock.
func (m *Mirror) Snapshot() (t model.Table, version uint64, dirty bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table.Clone(), m.version, m.version != m.synced
}

// Dirty reports whether mutations exist that no flush has written.
func (m *Mirror) Dirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version != m.synced
}

// Pending is the number of mutations since the last successful flush.
func (m *Mirror) Pending() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version - m.synced
}

// MarkSynced records that the snapshot taken at version v reached the store.
// Mutations applied after v keep the mirror dirty.
func (m *Mirror) MarkSynced(v uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v > m.synced && v <= m.version {
		m.synced = v
	}
}
