// Package coretest provides in-memory fakes of the core persistence
// interfaces for tests that run without PostgreSQL.
package coretest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
	"github.com/jackc/pgx/v5/pgconn"
)

// StoredRow is an entity row committed by an import.
type StoredRow struct {
	ID     int64
	Entity core.Entity
}

// MemoryStore implements core.Store in memory. Imports stage their rows and
// only publish them when the import function returns nil, like a
// transaction commit.
type MemoryStore struct {
	// BeforeImport runs at the start of every ImportTx. Tests use it to
	// hold a batch in the running state or to fail the transaction begin.
	BeforeImport func(ctx context.Context) error

	// InsertErr, when it returns non-nil, fails that row's insert.
	InsertErr func(ent core.Entity) error

	// AuditErr fails every InsertAudit call while set.
	AuditErr error

	mu      sync.Mutex
	nextID  int64
	rows    map[string]map[string]StoredRow
	batches map[string]core.BatchStatus
	audit   []core.AuditEntry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:    make(map[string]map[string]StoredRow),
		batches: make(map[string]core.BatchStatus),
	}
}

// Seed commits rows directly, bypassing imports. Returns the new ids.
func (m *MemoryStore) Seed(entity string, keys ...string) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, len(keys))
	for i, key := range keys {
		m.nextID++
		m.table(entity)[key] = StoredRow{ID: m.nextID, Entity: core.Entity{Type: entity, Key: key}}
		ids[i] = m.nextID
	}
	return ids
}

// Rows returns the committed rows of an entity ordered by id.
func (m *MemoryStore) Rows(entity string) []StoredRow {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]StoredRow, 0, len(m.rows[entity]))
	for _, r := range m.rows[entity] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of committed rows of an entity.
func (m *MemoryStore) Count(entity string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows[entity])
}

// AuditEntries returns every stored audit entry in insertion order.
func (m *MemoryStore) AuditEntries() []core.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.AuditEntry(nil), m.audit...)
}

func (m *MemoryStore) table(entity string) map[string]StoredRow {
	t, ok := m.rows[entity]
	if !ok {
		t = make(map[string]StoredRow)
		m.rows[entity] = t
	}
	return t
}

// ImportTx implements core.BatchStore.
func (m *MemoryStore) ImportTx(ctx context.Context, fn func(w core.RowWriter) error) error {
	if m.BeforeImport != nil {
		if err := m.BeforeImport(ctx); err != nil {
			return err
		}
	}

	tx := &memTx{store: m, staged: make(map[string]map[string]StoredRow)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for entity, rows := range tx.staged {
		t := m.table(entity)
		for key, r := range rows {
			t[key] = r
		}
	}
	return nil
}

type memTx struct {
	store  *MemoryStore
	staged map[string]map[string]StoredRow
}

func (t *memTx) Lookup(_ context.Context, entity, key string) (int64, bool, error) {
	if r, ok := t.staged[entity][key]; ok {
		return r.ID, true, nil
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if r, ok := t.store.rows[entity][key]; ok {
		return r.ID, true, nil
	}
	return 0, false, nil
}

func (t *memTx) Insert(_ context.Context, ent core.Entity) (int64, error) {
	if t.store.InsertErr != nil {
		if err := t.store.InsertErr(ent); err != nil {
			return 0, err
		}
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	_, committed := t.store.rows[ent.Type][ent.Key]
	_, staged := t.staged[ent.Type][ent.Key]
	if committed || staged {
		return 0, &pgconn.PgError{
			Code:           "23505",
			ConstraintName: fmt.Sprintf("uq_%s_key", ent.Type),
			TableName:      ent.Type,
		}
	}

	t.store.nextID++
	if t.staged[ent.Type] == nil {
		t.staged[ent.Type] = make(map[string]StoredRow)
	}
	t.staged[ent.Type][ent.Key] = StoredRow{ID: t.store.nextID, Entity: ent}
	return t.store.nextID, nil
}

// CreateBatch implements core.BatchStore.
func (m *MemoryStore) CreateBatch(_ context.Context, b core.BatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.batches[b.BatchID]; exists {
		return fmt.Errorf("batch %s already exists", b.BatchID)
	}
	b.Errors = append([]core.RowError{}, b.Errors...)
	m.batches[b.BatchID] = b
	return nil
}

// StartBatch implements core.BatchStore.
func (m *MemoryStore) StartBatch(_ context.Context, batchID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok || b.State != core.StatePending {
		return nil
	}
	b.State = core.StateRunning
	b.StartedAt = &at
	m.batches[batchID] = b
	return nil
}

// FinishBatch implements core.BatchStore.
func (m *MemoryStore) FinishBatch(_ context.Context, b core.BatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[b.BatchID]; !ok {
		return core.ErrBatchNotFound
	}
	b.State = core.StateDone
	b.Errors = append([]core.RowError{}, b.Errors...)
	m.batches[b.BatchID] = b
	return nil
}

// GetBatch implements core.BatchStore.
func (m *MemoryStore) GetBatch(_ context.Context, batchID string) (core.BatchStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return core.BatchStatus{}, core.ErrBatchNotFound
	}
	b.Errors = append([]core.RowError{}, b.Errors...)
	return b, nil
}

// ListBatches implements core.BatchStore.
func (m *MemoryStore) ListBatches(_ context.Context, f core.BatchFilter) ([]core.BatchStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []core.BatchStatus
	for _, b := range m.batches {
		if f.EntityType != "" && b.EntityType != f.EntityType {
			continue
		}
		if f.State != "" && b.State != f.State {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return page(out, f.Limit, f.Offset), nil
}

// InsertAudit implements core.AuditStore.
func (m *MemoryStore) InsertAudit(_ context.Context, e core.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AuditErr != nil {
		return m.AuditErr
	}
	m.audit = append(m.audit, e)
	return nil
}

// SetAuditErr changes the audit failure while batches may be running.
func (m *MemoryStore) SetAuditErr(err error) {
	m.mu.Lock()
	m.AuditErr = err
	m.mu.Unlock()
}

// ListAudit implements core.AuditStore. Newest entries come first.
func (m *MemoryStore) ListAudit(_ context.Context, f core.AuditFilter) ([]core.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []core.AuditEntry{}
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.BatchID != "" && e.BatchID != f.BatchID {
			continue
		}
		out = append(out, e)
	}
	return page(out, f.Limit, f.Offset), nil
}

// GetAudit implements core.AuditStore.
func (m *MemoryStore) GetAudit(_ context.Context, id string) (core.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.audit {
		if e.ID == id {
			return e, nil
		}
	}
	return core.AuditEntry{}, core.ErrAuditNotFound
}

// Overview implements core.AnalyticsStore with row counts only.
func (m *MemoryStore) Overview(_ context.Context, _ time.Time) (core.Overview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var o core.Overview
	o.Totals.Customers = int64(len(m.rows["customers"]))
	o.Totals.Agents = int64(len(m.rows["agents"]))
	o.Totals.Policies = int64(len(m.rows["policies"]))
	o.Totals.Payments = int64(len(m.rows["payments"]))
	o.Totals.Receipts = int64(len(m.rows["receipts"]))
	o.Totals.Claims = int64(len(m.rows["claims"]))
	return o, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
