package core

import (
	"context"
	"time"
)

// RowWriter persists entities inside one batch transaction.
// Insert must be isolated per row: when it fails nothing of that row remains
// and the transaction stays usable for the next row.
type RowWriter interface {
	Lookup(ctx context.Context, entity, key string) (id int64, found bool, err error)
	Insert(ctx context.Context, ent Entity) (int64, error)
}

// BatchStore tracks import batches and runs their transactions.
type BatchStore interface {
	CreateBatch(ctx context.Context, b BatchStatus) error
	StartBatch(ctx context.Context, batchID string, at time.Time) error
	FinishBatch(ctx context.Context, b BatchStatus) error
	GetBatch(ctx context.Context, batchID string) (BatchStatus, error)
	ListBatches(ctx context.Context, f BatchFilter) ([]BatchStatus, error)

	// ImportTx runs fn inside one transaction, committing when fn returns nil
	// and rolling back otherwise. The RowWriter is only valid inside fn.
	ImportTx(ctx context.Context, fn func(w RowWriter) error) error
}

// AuditStore is the append-only audit log. There is deliberately no update
// or delete method.
type AuditStore interface {
	InsertAudit(ctx context.Context, e AuditEntry) error
	ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
	GetAudit(ctx context.Context, id string) (AuditEntry, error)
}

// AnalyticsStore answers dashboard aggregate queries.
type AnalyticsStore interface {
	Overview(ctx context.Context, since time.Time) (Overview, error)
}

// Store is the full persistence surface used by Service.
type Store interface {
	BatchStore
	AuditStore
	AnalyticsStore
}
