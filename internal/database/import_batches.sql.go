package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const importBatchColumns = `id, entity_type, file_name, stored_path, file_size, checksum, actor, state, outcome,
    inserted, rejected, error, submitted_at, started_at, finished_at`

func scanImportBatch(row pgx.Row) (ImportBatch, error) {
	var i ImportBatch
	err := row.Scan(
		&i.ID,
		&i.EntityType,
		&i.FileName,
		&i.StoredPath,
		&i.FileSize,
		&i.Checksum,
		&i.Actor,
		&i.State,
		&i.Outcome,
		&i.Inserted,
		&i.Rejected,
		&i.Error,
		&i.SubmittedAt,
		&i.StartedAt,
		&i.FinishedAt,
	)
	return i, err
}

const createImportBatch = `
INSERT INTO import_batches (id, entity_type, file_name, stored_path, file_size, checksum, actor, state, submitted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8)
`

type CreateImportBatchParams struct {
	ID          pgtype.UUID
	EntityType  string
	FileName    string
	StoredPath  string
	FileSize    int64
	Checksum    string
	Actor       pgtype.Text
	SubmittedAt pgtype.Timestamptz
}

func (q *Queries) CreateImportBatch(ctx context.Context, arg CreateImportBatchParams) error {
	_, err := q.db.Exec(ctx, createImportBatch,
		arg.ID,
		arg.EntityType,
		arg.FileName,
		arg.StoredPath,
		arg.FileSize,
		arg.Checksum,
		arg.Actor,
		arg.SubmittedAt,
	)
	return err
}

const startImportBatch = `
UPDATE import_batches SET state = 'running', started_at = $2
WHERE id = $1 AND state = 'pending'
`

func (q *Queries) StartImportBatch(ctx context.Context, id pgtype.UUID, startedAt pgtype.Timestamptz) error {
	_, err := q.db.Exec(ctx, startImportBatch, id, startedAt)
	return err
}

const finishImportBatch = `
UPDATE import_batches
SET state = 'done', outcome = $2, inserted = $3, rejected = $4, error = $5, finished_at = $6
WHERE id = $1
`

type FinishImportBatchParams struct {
	ID         pgtype.UUID
	Outcome    pgtype.Text
	Inserted   int32
	Rejected   int32
	Error      pgtype.Text
	FinishedAt pgtype.Timestamptz
}

func (q *Queries) FinishImportBatch(ctx context.Context, arg FinishImportBatchParams) error {
	_, err := q.db.Exec(ctx, finishImportBatch,
		arg.ID,
		arg.Outcome,
		arg.Inserted,
		arg.Rejected,
		arg.Error,
		arg.FinishedAt,
	)
	return err
}

const getImportBatch = `SELECT ` + importBatchColumns + ` FROM import_batches WHERE id = $1`

func (q *Queries) GetImportBatch(ctx context.Context, id pgtype.UUID) (ImportBatch, error) {
	return scanImportBatch(q.db.QueryRow(ctx, getImportBatch, id))
}

const listImportBatches = `SELECT ` + importBatchColumns + ` FROM import_batches
WHERE ($1::text = '' OR entity_type = $1)
  AND ($2::text = '' OR state = $2)
ORDER BY submitted_at DESC
LIMIT $3 OFFSET $4
`

type ListImportBatchesParams struct {
	EntityType string
	State      string
	Limit      int32
	Offset     int32
}

func (q *Queries) ListImportBatches(ctx context.Context, arg ListImportBatchesParams) ([]ImportBatch, error) {
	rows, err := q.db.Query(ctx, listImportBatches, arg.EntityType, arg.State, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ImportBatch
	for rows.Next() {
		i, err := scanImportBatch(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const deleteImportRowErrors = `DELETE FROM import_row_errors WHERE batch_id = $1`

func (q *Queries) DeleteImportRowErrors(ctx context.Context, batchID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, deleteImportRowErrors, batchID)
	return err
}

// InsertImportRowErrors bulk-loads rejected rows with COPY.
func (q *Queries) InsertImportRowErrors(ctx context.Context, db CopyFromer, rowErrors []ImportRowError) (int64, error) {
	if len(rowErrors) == 0 {
		return 0, nil
	}
	return db.CopyFrom(ctx,
		pgx.Identifier{"import_row_errors"},
		[]string{"batch_id", "row_index", "kind", "reason"},
		pgx.CopyFromSlice(len(rowErrors), func(i int) ([]any, error) {
			e := rowErrors[i]
			return []any{e.BatchID, e.RowIndex, e.Kind, e.Reason}, nil
		}),
	)
}

const listImportRowErrors = `
SELECT batch_id, row_index, kind, reason FROM import_row_errors
WHERE batch_id = $1
ORDER BY row_index
`

func (q *Queries) ListImportRowErrors(ctx context.Context, batchID pgtype.UUID) ([]ImportRowError, error) {
	rows, err := q.db.Query(ctx, listImportRowErrors, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ImportRowError
	for rows.Next() {
		var i ImportRowError
		if err := rows.Scan(&i.BatchID, &i.RowIndex, &i.Kind, &i.Reason); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
