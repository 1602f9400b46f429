// Package remote defines the remote table store contract and its backends.
package remote

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fairyhunter13/pantry-pilot/internal/model"
)

// Store is a key-less tabular persistence service. Write overwrites the whole
// table; there is no partial update and no concurrency token.
type Store interface {
	Read(ctx context.Context) (model.Table, error)
	Write(ctx context.Context, t model.Table) error
}

// Memory is a Store held in process memory.
type Memory struct {
	mu     sync.RWMutex
	table  model.Table
	reads  int
	writes int
}

// NewMemory returns a Memory store seeded with t.
func NewMemory(t model.Table) *Memory {
	return &Memory{table: t.Clone()}
}

func (m *Memory) Read(ctx context.Context) (model.Table, error) {
	if err := ctx.Err(); err != nil {
		return model.Table{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	return m.table.Clone(), nil
}

func (m *Memory) Write(ctx context.Context, t model.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.table = t.Clone()
	return nil
}

// Counts returns how many reads and writes the store served.
func (m *Memory) Counts() (reads, writes int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads, m.writes
}

// LoadCSV reads a header + rows CSV export of the inventory sheet.
func LoadCSV(r io.Reader) (model.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return model.Table{}, fmt.Errorf("reading csv: %w", err)
	}
	if len(records) == 0 {
		return model.Table{}, errors.New("csv has no header row")
	}
	return model.FromRecords(records[0], records[1:])
}

// LoadCSVFile is LoadCSV for a path.
func LoadCSVFile(path string) (model.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Table{}, err
	}
	defer f.Close()
	return LoadCSV(f)
}
