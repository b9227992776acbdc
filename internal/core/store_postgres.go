package core

// store_postgres.go implements Store on PostgreSQL.
//
// Each batch runs in one transaction. Every row insert is wrapped in a
// savepoint so a failing row (duplicate key, check violation) rolls back
// alone and the transaction stays usable for the rows after it.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	db "github.com/JonMunkholm/InsuranceDashboard/internal/database"
	"github.com/avast/retry-go/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the pgxpool-backed Store.
type PostgresStore struct {
	pool         *pgxpool.Pool
	registry     *Registry
	beginRetries int
}

// NewPostgresStore creates a store. beginRetries bounds how often a batch
// retries opening its transaction on transient errors.
func NewPostgresStore(pool *pgxpool.Pool, registry *Registry, beginRetries int) *PostgresStore {
	if beginRetries < 1 {
		beginRetries = 1
	}
	return &PostgresStore{pool: pool, registry: registry, beginRetries: beginRetries}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ImportTx implements BatchStore.
func (s *PostgresStore) ImportTx(ctx context.Context, fn func(w RowWriter) error) error {
	var tx pgx.Tx
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(uint(s.beginRetries)),
		retry.Delay(100*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsTransient),
	)
	err := r.Do(func() error {
		var err error
		tx, err = s.pool.Begin(ctx)
		return err
	})
	if err != nil {
		return &PersistenceError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := fn(&pgRowWriter{tx: tx, registry: s.registry}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return &PersistenceError{Op: "commit", Err: err}
	}
	return nil
}

// pgRowWriter is the RowWriter handed to ImportRows inside a transaction.
type pgRowWriter struct {
	tx       pgx.Tx
	registry *Registry
	seq      int
}

func (w *pgRowWriter) Lookup(ctx context.Context, entity, key string) (int64, bool, error) {
	def, ok := w.registry.Get(entity)
	if !ok {
		return 0, false, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}

	id, err := def.Lookup(ctx, w.tx, key)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (w *pgRowWriter) Insert(ctx context.Context, ent Entity) (int64, error) {
	def, ok := w.registry.Get(ent.Type)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownEntity, ent.Type)
	}

	w.seq++
	savepoint := fmt.Sprintf("sp_%d", w.seq)
	if _, err := w.tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
		return 0, &PersistenceError{Op: "create savepoint", Err: err}
	}

	id, err := def.Insert(ctx, w.tx, ent.Params)
	if err != nil {
		if _, rbErr := w.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
			return 0, &PersistenceError{Op: "rollback savepoint", Err: errors.Join(err, rbErr)}
		}
		return 0, &PersistenceError{Op: "insert " + ent.Type, Err: err}
	}

	if _, err := w.tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return 0, &PersistenceError{Op: "release savepoint", Err: err}
	}
	return id, nil
}

// CreateBatch implements BatchStore.
func (s *PostgresStore) CreateBatch(ctx context.Context, b BatchStatus) error {
	return db.New(s.pool).CreateImportBatch(ctx, db.CreateImportBatchParams{
		ID:          ToPgUUID(b.BatchID),
		EntityType:  b.EntityType,
		FileName:    b.FileName,
		StoredPath:  b.StoredPath,
		FileSize:    b.FileSize,
		Checksum:    b.Checksum,
		Actor:       ToPgText(b.Actor),
		SubmittedAt: ToPgTimestamptz(b.SubmittedAt),
	})
}

// StartBatch implements BatchStore.
func (s *PostgresStore) StartBatch(ctx context.Context, batchID string, at time.Time) error {
	return db.New(s.pool).StartImportBatch(ctx, ToPgUUID(batchID), ToPgTimestamptz(at))
}

// FinishBatch stores the final counts and replaces the batch's row errors.
func (s *PostgresStore) FinishBatch(ctx context.Context, b BatchStatus) error {
	id := ToPgUUID(b.BatchID)
	finished := time.Now().UTC()
	if b.FinishedAt != nil {
		finished = *b.FinishedAt
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		q := db.New(tx)
		if err := q.FinishImportBatch(ctx, db.FinishImportBatchParams{
			ID:         id,
			Outcome:    ToPgText(string(b.Outcome)),
			Inserted:   int32(b.Inserted),
			Rejected:   int32(b.Rejected),
			Error:      ToPgText(b.Error),
			FinishedAt: ToPgTimestamptz(finished),
		}); err != nil {
			return fmt.Errorf("finish batch: %w", err)
		}

		if err := q.DeleteImportRowErrors(ctx, id); err != nil {
			return fmt.Errorf("clear row errors: %w", err)
		}

		rows := make([]db.ImportRowError, len(b.Errors))
		for i, e := range b.Errors {
			rows[i] = db.ImportRowError{
				BatchID:  id,
				RowIndex: int32(e.RowIndex),
				Kind:     string(e.Kind),
				Reason:   e.Reason,
			}
		}
		if _, err := q.InsertImportRowErrors(ctx, tx, rows); err != nil {
			return fmt.Errorf("store row errors: %w", err)
		}
		return nil
	})
}

// GetBatch implements BatchStore.
func (s *PostgresStore) GetBatch(ctx context.Context, batchID string) (BatchStatus, error) {
	id := ToPgUUID(batchID)
	if !id.Valid {
		return BatchStatus{}, ErrBatchNotFound
	}

	q := db.New(s.pool)
	row, err := q.GetImportBatch(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return BatchStatus{}, ErrBatchNotFound
	}
	if err != nil {
		return BatchStatus{}, fmt.Errorf("get batch: %w", err)
	}

	st := batchFromRow(row)
	rowErrors, err := q.ListImportRowErrors(ctx, id)
	if err != nil {
		return BatchStatus{}, fmt.Errorf("list row errors: %w", err)
	}
	for _, e := range rowErrors {
		st.Errors = append(st.Errors, RowError{
			RowIndex: int(e.RowIndex),
			Kind:     RowErrorKind(e.Kind),
			Reason:   e.Reason,
		})
	}
	return st, nil
}

// ListBatches implements BatchStore. Row errors are not loaded.
func (s *PostgresStore) ListBatches(ctx context.Context, f BatchFilter) ([]BatchStatus, error) {
	rows, err := db.New(s.pool).ListImportBatches(ctx, db.ListImportBatchesParams{
		EntityType: f.EntityType,
		State:      string(f.State),
		Limit:      int32(f.Limit),
		Offset:     int32(f.Offset),
	})
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}

	list := make([]BatchStatus, len(rows))
	for i, row := range rows {
		list[i] = batchFromRow(row)
	}
	return list, nil
}

func batchFromRow(row db.ImportBatch) BatchStatus {
	st := BatchStatus{
		BatchID:     PgUUIDToString(row.ID),
		EntityType:  row.EntityType,
		FileName:    row.FileName,
		StoredPath:  row.StoredPath,
		FileSize:    row.FileSize,
		Checksum:    row.Checksum,
		Actor:       row.Actor.String,
		State:       BatchState(row.State),
		Outcome:     Outcome(row.Outcome.String),
		Inserted:    int(row.Inserted),
		Rejected:    int(row.Rejected),
		Errors:      []RowError{},
		Error:       row.Error.String,
		SubmittedAt: row.SubmittedAt.Time,
	}
	if row.StartedAt.Valid {
		t := row.StartedAt.Time
		st.StartedAt = &t
	}
	if row.FinishedAt.Valid {
		t := row.FinishedAt.Time
		st.FinishedAt = &t
	}
	return st
}

// InsertAudit implements AuditStore.
func (s *PostgresStore) InsertAudit(ctx context.Context, e AuditEntry) error {
	details := []byte("{}")
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = b
	}

	return db.New(s.pool).InsertAuditLog(ctx, db.InsertAuditLogParams{
		ID:          ToPgUUID(e.ID),
		Action:      string(e.Action),
		Severity:    string(e.Severity),
		EntityType:  e.EntityType,
		BatchID:     ToPgUUID(e.BatchID),
		Status:      ToPgText(e.Status),
		Description: e.Description,
		Details:     details,
		Actor:       ToPgText(e.Actor),
		IpAddress:   ToPgText(e.IPAddress),
		UserAgent:   ToPgText(e.UserAgent),
		CreatedAt:   ToPgTimestamptz(e.CreatedAt),
	})
}

// ListAudit implements AuditStore.
func (s *PostgresStore) ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	batchID := pgtype.UUID{}
	if f.BatchID != "" {
		if batchID = ToPgUUID(f.BatchID); !batchID.Valid {
			return []AuditEntry{}, nil
		}
	}

	rows, err := db.New(s.pool).ListAuditLog(ctx, db.ListAuditLogParams{
		EntityType: f.EntityType,
		Action:     string(f.Action),
		BatchID:    batchID,
		Limit:      int32(f.Limit),
		Offset:     int32(f.Offset),
	})
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}

	entries := make([]AuditEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, auditFromRow(row))
	}
	return entries, nil
}

// GetAudit implements AuditStore.
func (s *PostgresStore) GetAudit(ctx context.Context, id string) (AuditEntry, error) {
	pgID := ToPgUUID(id)
	if !pgID.Valid {
		return AuditEntry{}, ErrAuditNotFound
	}

	row, err := db.New(s.pool).GetAuditLogByID(ctx, pgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return AuditEntry{}, ErrAuditNotFound
	}
	if err != nil {
		return AuditEntry{}, fmt.Errorf("get audit entry: %w", err)
	}
	return auditFromRow(row), nil
}

func auditFromRow(row db.AuditLog) AuditEntry {
	e := AuditEntry{
		ID:          PgUUIDToString(row.ID),
		Action:      AuditAction(row.Action),
		Severity:    AuditSeverity(row.Severity),
		EntityType:  row.EntityType,
		BatchID:     PgUUIDToString(row.BatchID),
		Status:      row.Status.String,
		Description: row.Description,
		Actor:       row.Actor.String,
		IPAddress:   row.IpAddress.String,
		UserAgent:   row.UserAgent.String,
		CreatedAt:   row.CreatedAt.Time,
	}
	if len(row.Details) > 0 {
		_ = json.Unmarshal(row.Details, &e.Details)
	}
	return e
}

// Overview implements AnalyticsStore.
func (s *PostgresStore) Overview(ctx context.Context, since time.Time) (Overview, error) {
	row, err := db.New(s.pool).GetOverview(ctx, ToPgDate(since))
	if err != nil {
		return Overview{}, fmt.Errorf("overview: %w", err)
	}

	var o Overview
	o.Totals.Customers = row.Customers
	o.Totals.Agents = row.Agents
	o.Totals.Policies = row.Policies
	o.Totals.Payments = row.Payments
	o.Totals.Receipts = row.Receipts
	o.Totals.Claims = row.Claims
	o.Active.Policies = row.ActivePolicies
	o.Active.Customers = row.ActiveCustomers
	o.Active.Agents = row.ActiveAgents
	o.Financial.TotalPremium = NumericFloat(row.TotalPremium)
	o.Financial.TotalCoverage = NumericFloat(row.TotalCoverage)
	o.Financial.TotalPayments = NumericFloat(row.TotalPayments)
	o.Financial.TotalClaims = NumericFloat(row.TotalClaims)
	o.RecentActivity.Payments30d = row.RecentPayments
	o.RecentActivity.Claims30d = row.RecentClaims
	return o, nil
}
