package warehouse

import (
	"context"
	"strconv"
	"sync"
)

// MemoryTable is an in-memory TableClient for tests.
//
// It mimics the external table's optimistic concurrency: every schema
// mutation bumps an etag and updates with a stale etag fail with
// ErrPreconditionFailed. FailUpdates injects artificial conflicts so the
// retry loop can be exercised deterministically.
type MemoryTable struct {
	mu       sync.Mutex
	exists   bool
	spec     TableSpec
	columns  []Column
	etag     int
	rows     []map[string]any
	failures int
	creates  int
	updates  int
}

// NewMemoryTable creates an empty in-memory table client. The table does
// not exist until Create is called (or Seed pre-populates it).
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{}
}

// Seed marks the table as pre-existing with the given columns, simulating
// a table created by an earlier process.
func (m *MemoryTable) Seed(columns []Column) *MemoryTable {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exists = true
	m.columns = append([]Column(nil), columns...)
	m.etag++
	return m
}

// FailUpdates makes the next n Update calls fail with
// ErrPreconditionFailed, as if concurrent writers kept winning the race.
func (m *MemoryTable) FailUpdates(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
}

// Metadata implements TableClient.
func (m *MemoryTable) Metadata(ctx context.Context) (*TableMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return nil, ErrTableNotFound
	}
	return &TableMetadata{
		Columns: append([]Column(nil), m.columns...),
		ETag:    strconv.Itoa(m.etag),
	}, nil
}

// Create implements TableClient.
func (m *MemoryTable) Create(ctx context.Context, spec *TableSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.exists {
		return ErrTableExists
	}
	m.exists = true
	m.spec = *spec
	m.columns = append([]Column(nil), spec.Columns...)
	m.etag++
	return nil
}

// Update implements TableClient.
func (m *MemoryTable) Update(ctx context.Context, columns []Column, etag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if !m.exists {
		return ErrTableNotFound
	}
	if m.failures > 0 {
		m.failures--
		// Simulate the concurrent writer that invalidated the etag.
		m.etag++
		return ErrPreconditionFailed
	}
	if etag != strconv.Itoa(m.etag) {
		return ErrPreconditionFailed
	}
	m.columns = append([]Column(nil), columns...)
	m.etag++
	return nil
}

// Insert implements TableClient. Fields without a matching column are
// dropped, mirroring the production sink's unknown-field tolerance.
func (m *MemoryTable) Insert(ctx context.Context, row map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return ErrTableNotFound
	}
	known := make(map[string]struct{}, len(m.columns))
	for _, col := range m.columns {
		known[col.Name] = struct{}{}
	}
	stored := make(map[string]any, len(row))
	for k, v := range row {
		if _, ok := known[k]; ok {
			stored[k] = v
		}
	}
	m.rows = append(m.rows, stored)
	return nil
}

// Columns returns the current column set.
func (m *MemoryTable) Columns() []Column {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Column(nil), m.columns...)
}

// Spec returns the spec used at creation.
func (m *MemoryTable) Spec() TableSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spec
}

// Rows returns the inserted rows.
func (m *MemoryTable) Rows() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.rows...)
}

// Updates returns the number of Update calls observed.
func (m *MemoryTable) Updates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

// Creates returns the number of Create calls observed.
func (m *MemoryTable) Creates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates
}
