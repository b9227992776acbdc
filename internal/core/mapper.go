package core

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// ResolvedRefs maps a reference column to the id of the row it names.
// Unresolved optional references are present with Valid=false.
type ResolvedRefs map[string]pgtype.Int8

// ID returns the resolved id for a reference column.
func (r ResolvedRefs) ID(field string) pgtype.Int8 {
	return r[field]
}

type refKey struct {
	entity string
	key    string
}

// EntityMapper turns validated records into persistable entities, resolving
// natural-key references to row ids. Create one per batch: it caches
// successful lookups for the lifetime of the batch transaction.
type EntityMapper struct {
	strict bool
	found  map[refKey]int64
}

// NewEntityMapper creates a mapper. With strict set, optional references
// that do not resolve are rejected instead of stored as NULL.
func NewEntityMapper(strict bool) *EntityMapper {
	return &EntityMapper{strict: strict, found: make(map[refKey]int64)}
}

// Map resolves the record's references through w and builds insert params.
// A missing mandatory target yields *ReferenceNotFound; lookup failures
// yield *PersistenceError.
func (m *EntityMapper) Map(ctx context.Context, w RowWriter, def EntityDefinition, rec Record, batchID pgtype.UUID) (Entity, error) {
	refs := make(ResolvedRefs, len(def.References))

	for _, ref := range def.References {
		key := rec.Text(ref.Field)
		if key == "" {
			refs[ref.Field] = pgtype.Int8{}
			continue
		}

		id, err := m.resolve(ctx, w, ref, key)
		if err != nil {
			return Entity{}, err
		}
		refs[ref.Field] = ToPgInt8(id)
	}

	params, err := def.Build(rec, refs, batchID)
	if err != nil {
		return Entity{}, &PersistenceError{Op: "build " + def.Info.Key, Err: err}
	}

	return Entity{
		Type:   def.Info.Key,
		Key:    rec.Text(def.Info.NaturalKey),
		Params: params,
	}, nil
}

func (m *EntityMapper) resolve(ctx context.Context, w RowWriter, ref ReferenceSpec, key string) (int64, error) {
	rk := refKey{entity: ref.Entity, key: key}
	if id, ok := m.found[rk]; ok {
		return id, nil
	}

	id, ok, err := w.Lookup(ctx, ref.Entity, key)
	if err != nil {
		return 0, &PersistenceError{Op: "lookup " + ref.Entity, Err: err}
	}
	if !ok {
		if ref.Optional && !m.strict {
			return 0, nil
		}
		return 0, &ReferenceNotFound{Field: ref.Field, Entity: ref.Entity, Key: key}
	}

	m.found[rk] = id
	return id, nil
}
