package core

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWriter is a RowWriter over fixed lookup tables that records inserts.
type fakeWriter struct {
	known     map[string]map[string]int64
	lookups   int
	lookupErr error
	insertErr func(Entity) error
	inserted  []Entity
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{known: make(map[string]map[string]int64)}
}

func (w *fakeWriter) add(entity, key string, id int64) {
	if w.known[entity] == nil {
		w.known[entity] = make(map[string]int64)
	}
	w.known[entity][key] = id
}

func (w *fakeWriter) Lookup(_ context.Context, entity, key string) (int64, bool, error) {
	w.lookups++
	if w.lookupErr != nil {
		return 0, false, w.lookupErr
	}
	id, ok := w.known[entity][key]
	return id, ok, nil
}

func (w *fakeWriter) Insert(_ context.Context, ent Entity) (int64, error) {
	if w.insertErr != nil {
		if err := w.insertErr(ent); err != nil {
			return 0, err
		}
	}
	w.inserted = append(w.inserted, ent)
	return int64(len(w.inserted)), nil
}

type builtRow struct {
	Key     string
	Refs    ResolvedRefs
	BatchID pgtype.UUID
}

func policyDefinition() EntityDefinition {
	return EntityDefinition{
		Info: EntityInfo{Key: "policies", NaturalKey: "policy_number", Required: []string{"policy_number", "customer_id"}},
		Fields: []FieldSpec{
			{Name: "policy_number", Type: FieldText, Required: true},
			{Name: "customer_id", Type: FieldText, Required: true},
			{Name: "agent_id", Type: FieldText},
			{Name: "premium_amount", Type: FieldNumeric, Positive: true},
		},
		References: []ReferenceSpec{
			{Field: "customer_id", Entity: "customers"},
			{Field: "agent_id", Entity: "agents", Optional: true},
		},
		Build: func(rec Record, refs ResolvedRefs, batchID pgtype.UUID) (any, error) {
			return builtRow{Key: rec.Text("policy_number"), Refs: refs, BatchID: batchID}, nil
		},
		Insert: func(context.Context, DBTX, any) (int64, error) { return 0, nil },
		Lookup: func(context.Context, DBTX, string) (int64, error) { return 0, nil },
	}
}

func TestEntityMapper_ResolvesReferences(t *testing.T) {
	w := newFakeWriter()
	w.add("customers", "C-1", 11)
	w.add("agents", "A-1", 7)
	batchID := ToPgUUID("6f1c2a8e-3b4d-4e5f-8a9b-0c1d2e3f4a5b")

	ent, err := NewEntityMapper(false).Map(context.Background(), w, policyDefinition(),
		Record{"policy_number": "P-1", "customer_id": "C-1", "agent_id": "A-1"}, batchID)
	require.NoError(t, err)

	assert.Equal(t, "policies", ent.Type)
	assert.Equal(t, "P-1", ent.Key)
	built := ent.Params.(builtRow)
	assert.Equal(t, pgtype.Int8{Int64: 11, Valid: true}, built.Refs.ID("customer_id"))
	assert.Equal(t, pgtype.Int8{Int64: 7, Valid: true}, built.Refs.ID("agent_id"))
	assert.Equal(t, batchID, built.BatchID)
}

func TestEntityMapper_MissingMandatoryReference(t *testing.T) {
	w := newFakeWriter()

	_, err := NewEntityMapper(false).Map(context.Background(), w, policyDefinition(),
		Record{"policy_number": "P-1", "customer_id": "C-404"}, pgtype.UUID{})
	require.Error(t, err)

	var ref *ReferenceNotFound
	require.True(t, errors.As(err, &ref))
	assert.Equal(t, "customer_id", ref.Field)
	assert.Equal(t, "customers", ref.Entity)
	assert.Equal(t, "C-404", ref.Key)
	assert.True(t, errors.Is(err, ErrReferenceNotFound))
}

func TestEntityMapper_OptionalReference(t *testing.T) {
	rec := Record{"policy_number": "P-1", "customer_id": "C-1", "agent_id": "A-404"}

	t.Run("lenient stores NULL", func(t *testing.T) {
		w := newFakeWriter()
		w.add("customers", "C-1", 11)

		ent, err := NewEntityMapper(false).Map(context.Background(), w, policyDefinition(), rec, pgtype.UUID{})
		require.NoError(t, err)
		assert.False(t, ent.Params.(builtRow).Refs.ID("agent_id").Valid)
	})

	t.Run("strict rejects", func(t *testing.T) {
		w := newFakeWriter()
		w.add("customers", "C-1", 11)

		_, err := NewEntityMapper(true).Map(context.Background(), w, policyDefinition(), rec, pgtype.UUID{})
		assert.True(t, errors.Is(err, ErrReferenceNotFound))
	})

	t.Run("empty cell is NULL without lookup", func(t *testing.T) {
		w := newFakeWriter()
		w.add("customers", "C-1", 11)

		ent, err := NewEntityMapper(true).Map(context.Background(), w, policyDefinition(),
			Record{"policy_number": "P-1", "customer_id": "C-1"}, pgtype.UUID{})
		require.NoError(t, err)
		assert.False(t, ent.Params.(builtRow).Refs.ID("agent_id").Valid)
		assert.Equal(t, 1, w.lookups)
	})
}

func TestEntityMapper_CachesFoundReferences(t *testing.T) {
	w := newFakeWriter()
	w.add("customers", "C-1", 11)
	m := NewEntityMapper(false)

	for _, key := range []string{"P-1", "P-2", "P-3"} {
		_, err := m.Map(context.Background(), w, policyDefinition(),
			Record{"policy_number": key, "customer_id": "C-1"}, pgtype.UUID{})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, w.lookups)
}

func TestEntityMapper_DoesNotCacheMisses(t *testing.T) {
	w := newFakeWriter()
	m := NewEntityMapper(false)
	rec := Record{"policy_number": "P-1", "customer_id": "C-1"}

	_, err := m.Map(context.Background(), w, policyDefinition(), rec, pgtype.UUID{})
	require.Error(t, err)

	// Inserted earlier in the same batch
	w.add("customers", "C-1", 12)
	_, err = m.Map(context.Background(), w, policyDefinition(), rec, pgtype.UUID{})
	assert.NoError(t, err)
}

func TestEntityMapper_LookupFailure(t *testing.T) {
	w := newFakeWriter()
	w.lookupErr = &pgconn.PgError{Code: "57014"}

	_, err := NewEntityMapper(false).Map(context.Background(), w, policyDefinition(),
		Record{"policy_number": "P-1", "customer_id": "C-1"}, pgtype.UUID{})
	assert.True(t, errors.Is(err, ErrPersistence))
}

func TestEntityMapper_BuildFailure(t *testing.T) {
	def := policyDefinition()
	def.References = nil
	def.Build = func(Record, ResolvedRefs, pgtype.UUID) (any, error) {
		return nil, errors.New("bad params")
	}

	_, err := NewEntityMapper(false).Map(context.Background(), newFakeWriter(), def, Record{"policy_number": "P-1"}, pgtype.UUID{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Contains(t, err.Error(), "build policies")
}
