package tablestore

import (
	"context"
	"sync"
)

// Memory implements Store with in-process concurrency safety. Used by tests
// and the -store=memory development mode; row order is insertion order.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]*memTable
}

type memTable struct {
	header []string
	rows   []Row
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]*memTable)}
}

func (m *Memory) EnsureTable(ctx context.Context, table string, header []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; ok {
		// A racing creator already won; that is success, not failure.
		return nil
	}
	h := make([]string, len(header))
	copy(h, header)
	m.tables[table] = &memTable{header: h}
	return nil
}

func (m *Memory) Rows(ctx context.Context, table string) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[table]
	if !ok {
		return nil, ErrTableNotFound
	}
	out := make([]Row, 0, len(t.rows))
	for _, row := range t.rows {
		out = append(out, row.Clone())
	}
	return out, nil
}

func (m *Memory) AppendRow(ctx context.Context, table string, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return ErrTableNotFound
	}
	t.rows = append(t.rows, row.Clone())
	return nil
}

func (m *Memory) UpdateRow(ctx context.Context, table, keyColumn, key string, fields Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return ErrTableNotFound
	}
	for _, row := range t.rows {
		if row[keyColumn] != key {
			continue
		}
		for k, v := range fields {
			row[k] = v
		}
		return nil
	}
	return ErrRowNotFound
}

// Header returns the header row the table was created with.
func (m *Memory) Header(table string) ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[table]
	if !ok {
		return nil, false
	}
	h := make([]string, len(t.header))
	copy(h, t.header)
	return h, true
}
