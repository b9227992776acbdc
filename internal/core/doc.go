// Package core implements bulk spreadsheet ingestion for the insurance
// dashboard: upload, parse, validate, persist and audit.
//
// The package has no HTTP dependencies and can be driven by web handlers,
// CLI tools or tests.
//
// # Entity Registry
//
// Each importable entity is an [EntityDefinition] registered on a [Registry]:
// its column specs, the references it carries by natural key, and the
// functions that build, insert and look up rows.
//
//	reg := core.NewRegistry()
//	reg.Register(core.EntityDefinition{
//	    Info:       core.EntityInfo{Key: "claims", NaturalKey: "claim_number"},
//	    Fields:     []core.FieldSpec{{Name: "claim_number", Type: core.FieldText, Required: true}},
//	    References: []core.ReferenceSpec{{Field: "policy_number", Entity: "policies"}},
//	    Build:      buildClaim, Insert: insertClaim, Lookup: lookupClaim,
//	})
//
// # Pipeline
//
//  1. [Service.Submit] spools the file, records a pending batch and queues it
//  2. A [BatchQueue] worker opens a [RowSource] (XLSX or CSV)
//  3. [ImportRows] runs each row through the [RowValidator] and
//     [EntityMapper], then inserts it through a [RowWriter] inside one
//     transaction, isolating each row with a savepoint
//  4. The [AuditRecorder] writes one entry for the batch
//  5. The batch becomes done and [Service.Status] reports the result
//
// A bad row never aborts a batch: it is counted as rejected with its
// 1-based row index and reason. File-level problems ([ParseError]) and
// cancellation roll the whole batch back.
//
// # Error Handling
//
// Failures use the taxonomy in errors.go ([ParseError], [ValidationError],
// [ReferenceNotFound], [PersistenceError]), each matching a sentinel with
// errors.Is. [MapError] turns any error into a user message with a support code.
package core
