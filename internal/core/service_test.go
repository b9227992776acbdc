package core_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
	"github.com/JonMunkholm/InsuranceDashboard/internal/core/coretest"
	"github.com/JonMunkholm/InsuranceDashboard/internal/core/entities"
	db "github.com/JonMunkholm/InsuranceDashboard/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newTestService(t *testing.T, store *coretest.MemoryStore, tweak func(*core.Options)) *core.Service {
	t.Helper()
	opts := core.Options{
		UploadDir: t.TempDir(),
		Workers:   2,
		QueueSize: 8,
	}
	if tweak != nil {
		tweak(&opts)
	}

	svc, err := core.NewService(store, entities.NewRegistry(), opts)
	require.NoError(t, err)
	svc.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc
}

func submitAndWait(t *testing.T, svc *core.Service, entity, name, data string) core.BatchStatus {
	t.Helper()
	accepted, err := svc.Submit(context.Background(), entity, name, strings.NewReader(data))
	require.NoError(t, err)
	return waitFor(t, svc, accepted.BatchID)
}

func waitFor(t *testing.T, svc *core.Service, batchID string) core.BatchStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := svc.Wait(ctx, batchID)
	require.NoError(t, err)
	require.True(t, st.Done(), "batch %s not done", batchID)
	return st
}

func batchAudit(store *coretest.MemoryStore, batchID string) []core.AuditEntry {
	var out []core.AuditEntry
	for _, e := range store.AuditEntries() {
		if e.BatchID == batchID && e.Action == core.ActionFileImport {
			out = append(out, e)
		}
	}
	return out
}

const customersCSV = "Customer ID,First Name,Last Name,Email\n" +
	"C-1,Ann,Lee,ann@example.com\n" +
	"C-2,Bob,Ray,\n" +
	"C-3,Cy,Fox,cy@example.com\n"

func TestService_PartialCustomerImport(t *testing.T) {
	store := coretest.NewMemoryStore()
	svc := newTestService(t, store, nil)

	accepted, err := svc.Submit(context.Background(), "customers", "customers.csv", strings.NewReader(customersCSV))
	require.NoError(t, err)
	assert.Equal(t, core.StatePending, accepted.State)
	assert.Equal(t, "customers.csv", accepted.FileName)
	assert.Len(t, accepted.Checksum, 64)

	st := waitFor(t, svc, accepted.BatchID)

	assert.Equal(t, core.OutcomePartial, st.Outcome)
	assert.Equal(t, 2, st.Inserted)
	assert.Equal(t, 1, st.Rejected)
	require.Len(t, st.Errors, 1)
	assert.Equal(t, 2, st.Errors[0].RowIndex)
	assert.Equal(t, "missing field: email", st.Errors[0].Reason)
	assert.NotNil(t, st.StartedAt)
	assert.NotNil(t, st.FinishedAt)

	assert.Equal(t, 2, store.Count("customers"))
	rows := store.Rows("customers")
	assert.Equal(t, "C-1", rows[0].Entity.Key)
	assert.Equal(t, "C-3", rows[1].Entity.Key)

	entries := batchAudit(store, st.BatchID)
	require.Len(t, entries, 1)
	assert.Equal(t, "partial", entries[0].Status)
	assert.Equal(t, core.SeverityWarning, entries[0].Severity)

	stored, err := store.GetBatch(context.Background(), st.BatchID)
	require.NoError(t, err)
	assert.Equal(t, core.StateDone, stored.State)
	assert.Len(t, stored.Errors, 1)
}

func TestService_ResubmitSameFileIsNewBatch(t *testing.T) {
	store := coretest.NewMemoryStore()
	svc := newTestService(t, store, nil)

	first := submitAndWait(t, svc, "customers", "customers.csv", customersCSV)
	second := submitAndWait(t, svc, "customers", "customers.csv", customersCSV)

	assert.NotEqual(t, first.BatchID, second.BatchID)
	assert.Equal(t, first.Checksum, second.Checksum)

	assert.Equal(t, core.OutcomePartial, first.Outcome)
	assert.Equal(t, core.OutcomeFailed, second.Outcome)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, 3, second.Rejected)

	require.Len(t, second.Errors, 3)
	for _, i := range []int{0, 2} {
		assert.Equal(t, core.RowErrorPersistence, second.Errors[i].Kind)
		assert.Contains(t, second.Errors[i].Reason, "uq_customers_key")
	}
	assert.Equal(t, 1, second.Errors[0].RowIndex)
	assert.Equal(t, 3, second.Errors[2].RowIndex)
	assert.Equal(t, "missing field: email", second.Errors[1].Reason)

	assert.Equal(t, 2, store.Count("customers"))
	assert.Len(t, batchAudit(store, first.BatchID), 1)
	assert.Len(t, batchAudit(store, second.BatchID), 1)
}

func customersWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	cells := map[string]any{
		"A1": "Customer ID", "B1": "First Name", "C1": "Last Name", "D1": "Email", "E1": "Date of Birth", "F1": "Credit Score",
		"A2": "C-1", "B2": "Ann", "C2": "Lee", "D2": "ann@example.com", "E2": time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC), "F2": 700,
		"A3": "C-2", "B3": "Bob", "C3": "Ray",
		// row 4 left empty
		"A5": "C-3", "B5": "Cy", "C5": "Fox", "D5": "cy@example.com", "F5": 1.5,
	}
	for cell, v := range cells {
		require.NoError(t, f.SetCellValue(sheet, cell, v))
	}

	// mm-dd-yy
	style, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle(sheet, "E2", "E2", style))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestService_WorkbookImport(t *testing.T) {
	store := coretest.NewMemoryStore()
	svc := newTestService(t, store, nil)

	accepted, err := svc.Submit(context.Background(), "customers", "customers.xlsx", bytes.NewReader(customersWorkbook(t)))
	require.NoError(t, err)
	st := waitFor(t, svc, accepted.BatchID)

	assert.Equal(t, core.OutcomePartial, st.Outcome)
	assert.Equal(t, 1, st.Inserted)
	assert.Equal(t, 2, st.Rejected)

	require.Len(t, st.Errors, 2)
	assert.Equal(t, 2, st.Errors[0].RowIndex)
	assert.Equal(t, "missing field: email", st.Errors[0].Reason)
	// The empty sheet row still counts, so C-3 on sheet row 5 is data row 4.
	assert.Equal(t, 4, st.Errors[1].RowIndex)
	assert.Equal(t, core.RowErrorValidation, st.Errors[1].Kind)
	assert.Contains(t, st.Errors[1].Reason, "credit_score")

	rows := store.Rows("customers")
	require.Len(t, rows, 1)
	params, ok := rows[0].Entity.Params.(db.InsertCustomerParams)
	require.True(t, ok)
	assert.Equal(t, "C-1", params.CustomerID)
	require.True(t, params.DateOfBirth.Valid)
	assert.Equal(t, "1990-05-17", params.DateOfBirth.Time.Format("2006-01-02"))
	assert.Equal(t, int64(700), params.CreditScore.Int64)

	assert.Len(t, batchAudit(store, st.BatchID), 1)
}

func TestService_PaymentWithMissingPolicy(t *testing.T) {
	store := coretest.NewMemoryStore()
	store.Seed("policies", "POL-1")
	svc := newTestService(t, store, nil)

	data := "payment_id,policy_number,amount,payment_method\n" +
		"PAY-1,POL-1,100.00,card\n" +
		"PAY-2,POL-404,50,card\n" +
		"PAY-3,POL-1,$25.50,Credit Card\n"

	st := submitAndWait(t, svc, "payments", "payments.csv", data)

	assert.Equal(t, core.OutcomePartial, st.Outcome)
	assert.Equal(t, 2, st.Inserted)
	require.Len(t, st.Errors, 1)
	assert.Equal(t, 2, st.Errors[0].RowIndex)
	assert.Equal(t, core.RowErrorReference, st.Errors[0].Kind)
	assert.Contains(t, st.Errors[0].Reason, "POL-404")
	assert.Equal(t, 2, store.Count("payments"))
}

func TestService_AllRowsRejectedFails(t *testing.T) {
	store := coretest.NewMemoryStore()
	svc := newTestService(t, store, nil)

	data := "payment_id,policy_number,amount,payment_method\nPAY-1,POL-9,10,card\n"
	st := submitAndWait(t, svc, "payments", "payments.csv", data)

	assert.Equal(t, core.OutcomeFailed, st.Outcome)
	assert.Zero(t, st.Inserted)
	assert.Equal(t, 1, st.Rejected)
	assert.Len(t, batchAudit(store, st.BatchID), 1)
}

func TestService_HeaderOnlyCompletes(t *testing.T) {
	store := coretest.NewMemoryStore()
	svc := newTestService(t, store, nil)

	st := submitAndWait(t, svc, "agents", "agents.csv", "agent_id,first_name,last_name,email\n")

	assert.Equal(t, core.OutcomeCompleted, st.Outcome)
	assert.Zero(t, st.Inserted)
	assert.Zero(t, st.Rejected)
	assert.NotNil(t, st.Errors)
}

func TestService_MissingColumnsFailsWholeBatch(t *testing.T) {
	store := coretest.NewMemoryStore()
	svc := newTestService(t, store, nil)

	st := submitAndWait(t, svc, "customers", "customers.csv", "customer_id,first_name,last_name\nC-1,Ann,Lee\n")

	assert.Equal(t, core.OutcomeFailed, st.Outcome)
	assert.Zero(t, st.Inserted)
	assert.Contains(t, st.Error, "missing required columns: email")
	assert.Zero(t, store.Count("customers"))

	entries := batchAudit(store, st.BatchID)
	require.Len(t, entries, 1)
	assert.Equal(t, core.SeverityError, entries[0].Severity)
}

func TestService_DuplicateKeyInFile(t *testing.T) {
	store := coretest.NewMemoryStore()
	svc := newTestService(t, store, nil)

	data := "customer_id,first_name,last_name,email\n" +
		"C-1,Ann,Lee,ann@example.com\n" +
		"C-1,Ann,Lee,ann2@example.com\n"

	st := submitAndWait(t, svc, "customers", "customers.csv", data)

	assert.Equal(t, core.OutcomePartial, st.Outcome)
	require.Len(t, st.Errors, 1)
	assert.Equal(t, core.RowErrorPersistence, st.Errors[0].Kind)
	assert.Contains(t, st.Errors[0].Reason, "duplicate value")
}

func TestService_CancelRollsBack(t *testing.T) {
	store := coretest.NewMemoryStore()
	started := make(chan struct{})
	store.BeforeImport = func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	svc := newTestService(t, store, nil)

	accepted, err := svc.Submit(context.Background(), "customers", "customers.csv", strings.NewReader(customersCSV))
	require.NoError(t, err)

	<-started
	require.NoError(t, svc.Cancel(context.Background(), accepted.BatchID))

	st := waitFor(t, svc, accepted.BatchID)
	assert.Equal(t, core.OutcomeCancelled, st.Outcome)
	assert.Zero(t, st.Inserted)
	assert.Zero(t, store.Count("customers"))
	assert.Len(t, batchAudit(store, st.BatchID), 1)

	assert.ErrorIs(t, svc.Cancel(context.Background(), accepted.BatchID), core.ErrBatchFinished)
}

func TestService_BatchTimeout(t *testing.T) {
	store := coretest.NewMemoryStore()
	store.BeforeImport = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	svc := newTestService(t, store, func(o *core.Options) { o.BatchTimeout = 50 * time.Millisecond })

	st := submitAndWait(t, svc, "customers", "customers.csv", customersCSV)
	assert.Equal(t, core.OutcomeCancelled, st.Outcome)
	assert.Contains(t, st.Error, "timed out")
}

func TestService_SubmitRejections(t *testing.T) {
	store := coretest.NewMemoryStore()
	svc := newTestService(t, store, func(o *core.Options) { o.MaxFileSize = 64 })

	_, err := svc.Submit(context.Background(), "widgets", "w.csv", strings.NewReader("a\n1\n"))
	assert.ErrorIs(t, err, core.ErrUnknownEntity)

	_, err = svc.Submit(context.Background(), "customers", "c.txt", strings.NewReader("a\n1\n"))
	assert.ErrorIs(t, err, core.ErrUnsupportedFile)

	_, err = svc.Submit(context.Background(), "customers", "c.csv", strings.NewReader(strings.Repeat("x", 65)))
	assert.ErrorIs(t, err, core.ErrFileTooLarge)

	_, err = svc.Submit(context.Background(), "customers", "c.csv", strings.NewReader(""))
	assert.ErrorIs(t, err, core.ErrEmptyFile)

	list, err := svc.ListBatches(context.Background(), core.BatchFilter{})
	require.NoError(t, err)
	assert.Empty(t, list, "rejected submissions create no batch")
}

func TestService_QueueFull(t *testing.T) {
	store := coretest.NewMemoryStore()
	svc, err := core.NewService(store, entities.NewRegistry(), core.Options{
		UploadDir: t.TempDir(),
		Workers:   1,
		QueueSize: 1,
	})
	require.NoError(t, err)
	// Not started, so the first batch stays queued.

	_, err = svc.Submit(context.Background(), "customers", "a.csv", strings.NewReader(customersCSV))
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), "customers", "b.csv", strings.NewReader(customersCSV))
	assert.ErrorIs(t, err, core.ErrTooManyUploads)

	failed, err := store.ListBatches(context.Background(), core.BatchFilter{State: core.StateDone})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, core.OutcomeFailed, failed[0].Outcome)
}

func TestService_Status(t *testing.T) {
	store := coretest.NewMemoryStore()
	svc := newTestService(t, store, nil)

	_, err := svc.Status(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, core.ErrBatchNotFound)

	_, err = svc.Status(context.Background(), "6f1c2a8e-3b4d-4e5f-8a9b-0c1d2e3f4a5b")
	assert.ErrorIs(t, err, core.ErrBatchNotFound)

	done := submitAndWait(t, svc, "customers", "customers.csv", customersCSV)
	st, err := svc.Status(context.Background(), done.BatchID)
	require.NoError(t, err)
	assert.Equal(t, done.Outcome, st.Outcome)
	assert.Equal(t, done.Inserted, st.Inserted)
}

func TestService_AuditAttribution(t *testing.T) {
	store := coretest.NewMemoryStore()
	svc := newTestService(t, store, nil)

	ctx := core.ContextWithActor(context.Background(), "finance-team")
	ctx = core.ContextWithIPAddress(ctx, "192.0.2.10")
	accepted, err := svc.Submit(ctx, "customers", "customers.csv", strings.NewReader(customersCSV))
	require.NoError(t, err)
	waitFor(t, svc, accepted.BatchID)

	entries, err := svc.AuditLog(context.Background(), core.AuditFilter{BatchID: accepted.BatchID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "finance-team", entries[0].Actor)
	assert.Equal(t, "192.0.2.10", entries[0].IPAddress)

	got, err := svc.AuditEntry(context.Background(), entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, entries[0].ID, got.ID)

	_, err = svc.AuditEntry(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrAuditNotFound)
}

func TestService_AuditFailureDoesNotFailBatch(t *testing.T) {
	store := coretest.NewMemoryStore()
	store.SetAuditErr(errors.New("audit_log is append-only"))
	svc := newTestService(t, store, nil)

	st := submitAndWait(t, svc, "customers", "customers.csv", customersCSV)
	assert.Equal(t, core.OutcomePartial, st.Outcome)
	assert.Equal(t, 2, store.Count("customers"))
	assert.Empty(t, store.AuditEntries())
}

func TestService_RecoverInterrupted(t *testing.T) {
	store := coretest.NewMemoryStore()
	stale := core.BatchStatus{
		BatchID:     "6f1c2a8e-3b4d-4e5f-8a9b-0c1d2e3f4a5b",
		EntityType:  "claims",
		FileName:    "claims.xlsx",
		State:       core.StateRunning,
		Inserted:    40,
		SubmittedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.CreateBatch(context.Background(), stale))

	svc, err := core.NewService(store, entities.NewRegistry(), core.Options{UploadDir: t.TempDir()})
	require.NoError(t, err)

	n, err := svc.RecoverInterrupted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetBatch(context.Background(), stale.BatchID)
	require.NoError(t, err)
	assert.Equal(t, core.StateDone, got.State)
	assert.Equal(t, core.OutcomeFailed, got.Outcome)
	assert.Zero(t, got.Inserted)
	assert.Equal(t, "interrupted by restart", got.Error)
	assert.Len(t, batchAudit(store, stale.BatchID), 1)

	n, err = svc.RecoverInterrupted(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_Preview(t *testing.T) {
	store := coretest.NewMemoryStore()
	store.Seed("customers", "C-1")
	svc := newTestService(t, store, nil)

	data := "customer_id,first_name,last_name,email,credit_score\n" +
		"C-1,Ann,Lee,ann@example.com,700\n" +
		"C-2,Bob,Ray,bob@example.com,650\n" +
		"C-2,Bob,Ray,bob@example.com,650\n" +
		"C-3,Cy,Fox,,x\n"

	resp, err := svc.Preview(context.Background(), "customers", "customers.csv", strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 4, resp.Summary.TotalRows)
	assert.Equal(t, 3, resp.Summary.ValidRows)
	assert.Equal(t, 1, resp.Summary.ErrorRows)
	assert.Equal(t, 1, resp.Summary.ExistingRows)
	assert.Equal(t, 1, resp.Summary.DuplicateInFile)
	assert.Equal(t, []string{"C-1"}, resp.ExistingKeys)

	require.Len(t, resp.ErrorSamples, 1)
	assert.Equal(t, 4, resp.ErrorSamples[0].RowIndex)
	assert.Equal(t, []string{
		"missing field: email",
		`invalid integer for field credit_score: "x"`,
	}, resp.ErrorSamples[0].Errors)

	require.Len(t, resp.DuplicateSamples, 1)
	assert.Equal(t, []int{2, 3}, resp.DuplicateSamples[0].RowIndexes)

	assert.Equal(t, 1, store.Count("customers"), "preview persists nothing")
	assert.Empty(t, store.AuditEntries(), "preview is not audited")
}

func TestService_PreviewRejectsBadHeader(t *testing.T) {
	svc := newTestService(t, coretest.NewMemoryStore(), nil)

	_, err := svc.Preview(context.Background(), "claims", "claims.csv", strings.NewReader("claim_number\nCL-1\n"))
	assert.ErrorIs(t, err, core.ErrParse)
}

func TestService_ListBatchesAndOverview(t *testing.T) {
	store := coretest.NewMemoryStore()
	svc := newTestService(t, store, nil)

	submitAndWait(t, svc, "customers", "a.csv", customersCSV)
	submitAndWait(t, svc, "agents", "b.csv", "agent_id,first_name,last_name,email\nA-1,Al,Vo,al@example.com\n")

	all, err := svc.ListBatches(context.Background(), core.BatchFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	agents, err := svc.ListBatches(context.Background(), core.BatchFilter{EntityType: "agents"})
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, core.OutcomeCompleted, agents[0].Outcome)

	o, err := svc.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), o.Totals.Customers)
	assert.Equal(t, int64(1), o.Totals.Agents)
	assert.False(t, o.GeneratedAt.IsZero())
}

func TestService_SweepUploads(t *testing.T) {
	store := coretest.NewMemoryStore()
	dir := t.TempDir()
	svc := newTestService(t, store, func(o *core.Options) { o.UploadDir = dir })

	st := submitAndWait(t, svc, "customers", "customers.csv", customersCSV)
	_, err := os.Stat(st.StoredPath)
	require.NoError(t, err, "upload is spooled under the upload directory")

	removed, err := svc.SweepUploads(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(st.StoredPath)
	assert.True(t, os.IsNotExist(err))
}

func TestService_DeleteUpload(t *testing.T) {
	store := coretest.NewMemoryStore()
	svc := newTestService(t, store, nil)

	st := submitAndWait(t, svc, "customers", "customers.csv", customersCSV)

	err := svc.DeleteUpload(context.Background(), "policies", st.BatchID)
	assert.ErrorIs(t, err, core.ErrBatchNotFound)

	require.NoError(t, svc.DeleteUpload(context.Background(), "customers", st.BatchID))
	_, err = os.Stat(st.StoredPath)
	assert.True(t, os.IsNotExist(err))

	err = svc.DeleteUpload(context.Background(), "customers", st.BatchID)
	assert.ErrorIs(t, err, core.ErrUploadNotFound)

	var deletes []core.AuditEntry
	for _, e := range store.AuditEntries() {
		if e.Action == core.ActionFileDelete {
			deletes = append(deletes, e)
		}
	}
	require.Len(t, deletes, 1)
	assert.Equal(t, st.BatchID, deletes[0].BatchID)
	assert.Equal(t, st.Checksum, deletes[0].Details["sha256"])

	// Rows imported from the file stay.
	assert.Equal(t, 2, store.Count("customers"))
}

func TestService_Entities(t *testing.T) {
	svc := newTestService(t, coretest.NewMemoryStore(), nil)

	var keys []string
	for _, info := range svc.Entities() {
		keys = append(keys, info.Key)
	}
	assert.Equal(t, []string{"agents", "customers", "policies", "payments", "receipts", "claims"}, keys)
}
