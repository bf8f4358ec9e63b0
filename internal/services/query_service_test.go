package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-datashare-backend/internal/domain"
	"github.com/tbourn/go-datashare-backend/internal/guard"
	"github.com/tbourn/go-datashare-backend/internal/repo"
)

func newQueryService(t *testing.T) (*QueryService, *gorm.DB, *gorm.DB) {
	t.Helper()
	sender, receiver := newRelayStores(t)
	return NewQueryService(sender, receiver, sqlRepo{}), sender, receiver
}

func TestQuerySubmit_GuardRejectionCreatesNoEntry(t *testing.T) {
	svc, _, receiver := newQueryService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "DROP TABLE patients", "analyst1", false)
	if !errors.Is(err, guard.ErrNotReadOnly) {
		t.Fatalf("err = %v, want ErrNotReadOnly", err)
	}

	pending, err := repo.ListQueriesByStatus(ctx, receiver, domain.QueryStatusPending)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("guard rejection must not create ledger state, got %d entries", len(pending))
	}
}

func TestQuerySubmit_BlankText(t *testing.T) {
	svc, _, _ := newQueryService(t)
	if _, err := svc.Submit(context.Background(), "   ", "a", false); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("err = %v, want ErrMissingFields", err)
	}
}

func TestQuerySubmit_AppendsLimitWhenAsked(t *testing.T) {
	svc, _, _ := newQueryService(t)
	ctx := context.Background()

	r, err := svc.Submit(ctx, "SELECT * FROM patients;", "a", true)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !strings.HasSuffix(r.Query, " LIMIT 100;") {
		t.Fatalf("expected LIMIT suffix, got %q", r.Query)
	}

	// An existing LIMIT clause is left alone.
	r, err = svc.Submit(ctx, "SELECT * FROM patients LIMIT 5", "a", true)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if strings.Count(strings.ToLower(r.Query), "limit") != 1 {
		t.Fatalf("existing LIMIT must not be doubled: %q", r.Query)
	}

	// Without the flag the text is stored verbatim.
	r, err = svc.Submit(ctx, "SELECT * FROM patients", "a", false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if r.Query != "SELECT * FROM patients" {
		t.Fatalf("unexpected stored text: %q", r.Query)
	}
}

func TestQueryPreview_CapsRowsReportsTotal(t *testing.T) {
	svc, _, _ := newQueryService(t)
	svc.PreviewLimit = 2
	ctx := context.Background()

	r, _ := svc.Submit(ctx, "SELECT * FROM patients ORDER BY id", "a", false)
	res, err := svc.Preview(ctx, r.ID)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if res.TotalRows != 3 || len(res.Rows) != 2 {
		t.Fatalf("total=%d rows=%d, want 3/2", res.TotalRows, len(res.Rows))
	}
	if len(res.Headers) != 3 {
		t.Fatalf("headers = %v", res.Headers)
	}

	// Preview is repeatable and leaves the entry pending.
	if _, err := svc.Preview(ctx, r.ID); err != nil {
		t.Fatalf("second Preview: %v", err)
	}
	got, _ := repo.GetQueryRequest(ctx, svc.Receiver, r.ID)
	if got.Status != domain.QueryStatusPending {
		t.Fatalf("preview mutated ledger state: %q", got.Status)
	}
}

func TestQueryPreview_FinalizedEntryRefused(t *testing.T) {
	svc, _, _ := newQueryService(t)
	ctx := context.Background()

	r, _ := svc.Submit(ctx, "SELECT 1", "a", false)
	if err := svc.Reject(ctx, r.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := svc.Preview(ctx, r.ID); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("err = %v, want ErrAlreadyFinalized", err)
	}
}

func TestQueryPreview_BadSQLSurfacesQueryError(t *testing.T) {
	svc, _, _ := newQueryService(t)
	ctx := context.Background()

	r, _ := svc.Submit(ctx, "SELECT nope FROM missing_table", "a", false)
	_, err := svc.Preview(ctx, r.ID)
	if !errors.Is(err, ErrQueryFailed) {
		t.Fatalf("err = %v, want ErrQueryFailed", err)
	}
	// The entry stays pending and retryable.
	got, _ := repo.GetQueryRequest(ctx, svc.Receiver, r.ID)
	if got.Status != domain.QueryStatusPending {
		t.Fatalf("status = %q, want pending", got.Status)
	}
}

func TestQueryApprove_MaterializesResultTable(t *testing.T) {
	svc, _, receiver := newQueryService(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()

	r, _ := svc.Submit(ctx, "SELECT name, age FROM patients ORDER BY id", "a", false)
	out, err := svc.Approve(ctx, r.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}

	wantTable := fmt.Sprintf("query_result_%d_%d", r.ID, fixed.UnixMilli())
	if out.TableName != wantTable || out.RowCount != 3 {
		t.Fatalf("unexpected outcome: %+v (want table %s)", out, wantTable)
	}

	// Materialized copy lives in the receiver store, all values as text.
	headers, rows, err := repo.RunQuery(ctx, receiver, `SELECT name, age FROM `+wantTable+` ORDER BY id`)
	if err != nil {
		t.Fatalf("read materialized table: %v", err)
	}
	if len(headers) != 2 || len(rows) != 3 {
		t.Fatalf("materialized shape: headers=%v rows=%d", headers, len(rows))
	}
	if rows[0]["name"] != "Ada" || rows[0]["age"] != "36" {
		t.Fatalf("row mismatch: %v", rows[0])
	}

	got, _ := repo.GetQueryRequest(ctx, receiver, r.ID)
	if got.Status != domain.QueryStatusApproved || got.ResultTable != wantTable {
		t.Fatalf("ledger entry mismatch: %+v", got)
	}
	if got.ResultData == "" || got.ResultHeaders == "" {
		t.Fatalf("inline result payload not recorded: %+v", got)
	}
}

func TestQueryApprove_EmptyResultFallsBackToSourceColumns(t *testing.T) {
	svc, _, receiver := newQueryService(t)
	ctx := context.Background()

	r, _ := svc.Submit(ctx, "SELECT * FROM patients WHERE id > 100", "a", false)
	out, err := svc.Approve(ctx, r.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if out.RowCount != 0 {
		t.Fatalf("row count = %d, want 0", out.RowCount)
	}

	// Header fallback introspects the FROM table, so the empty result table
	// still carries the source columns.
	ddl, err := repo.TableDDL(ctx, receiver, out.TableName)
	if err != nil {
		t.Fatalf("TableDDL: %v", err)
	}
	for _, col := range []string{`"id" TEXT`, `"name" TEXT`, `"age" TEXT`} {
		if !strings.Contains(ddl, col) {
			t.Fatalf("materialized DDL missing %s: %q", col, ddl)
		}
	}
}

func TestQueryApprove_SecondApprovalRefused(t *testing.T) {
	svc, _, _ := newQueryService(t)
	ctx := context.Background()

	r, _ := svc.Submit(ctx, "SELECT * FROM patients", "a", false)
	if _, err := svc.Approve(ctx, r.ID); err != nil {
		t.Fatalf("first Approve: %v", err)
	}
	if _, err := svc.Approve(ctx, r.ID); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("err = %v, want ErrAlreadyFinalized", err)
	}
}

func TestQueryApprove_FailedRunLeavesEntryPending(t *testing.T) {
	svc, _, _ := newQueryService(t)
	ctx := context.Background()

	r, _ := svc.Submit(ctx, "SELECT x FROM missing", "a", false)
	if _, err := svc.Approve(ctx, r.ID); !errors.Is(err, ErrQueryFailed) {
		t.Fatalf("err = %v, want ErrQueryFailed", err)
	}
	got, _ := repo.GetQueryRequest(ctx, svc.Receiver, r.ID)
	if got.Status != domain.QueryStatusPending {
		t.Fatalf("failed approval must leave entry pending, got %q", got.Status)
	}
}

func TestQueryExportCSV_QuotingRules(t *testing.T) {
	svc, sender, _ := newQueryService(t)
	ctx := context.Background()

	// A value with an embedded quote exercises the doubling rule.
	if err := sender.Exec(`INSERT INTO patients VALUES (4, 'Kay "K" McNulty', 40)`).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	r, _ := svc.Submit(ctx, "SELECT name, age FROM patients WHERE id IN (1, 4) ORDER BY id", "a", false)
	if _, err := svc.Approve(ctx, r.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	filename, data, err := svc.ExportCSV(ctx, r.ID)
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	if filename != fmt.Sprintf("query_result_%d.csv", r.ID) {
		t.Fatalf("filename = %q", filename)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3: %q", len(lines), string(data))
	}
	if lines[0] != "name,age" {
		t.Fatalf("header row must be unquoted: %q", lines[0])
	}
	if lines[1] != `"Ada","36"` {
		t.Fatalf("data row quoting: %q", lines[1])
	}
	if lines[2] != `"Kay ""K"" McNulty","40"` {
		t.Fatalf("embedded quote doubling: %q", lines[2])
	}
}

func TestQueryExportCSV_PendingEntryRefused(t *testing.T) {
	svc, _, _ := newQueryService(t)
	ctx := context.Background()

	r, _ := svc.Submit(ctx, "SELECT 1", "a", false)
	if _, _, err := svc.ExportCSV(ctx, r.ID); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("err = %v, want ErrNotApproved", err)
	}
}

func TestRunReceiverQuery_GuardAndExecution(t *testing.T) {
	svc, _, receiver := newQueryService(t)
	ctx := context.Background()

	if _, err := svc.RunReceiverQuery(ctx, "DELETE FROM received_log"); !errors.Is(err, guard.ErrNotReadOnly) {
		t.Fatalf("err = %v, want ErrNotReadOnly", err)
	}

	if err := receiver.Exec(`CREATE TABLE local_notes (note TEXT)`).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := receiver.Exec(`INSERT INTO local_notes VALUES ('hello')`).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := svc.RunReceiverQuery(ctx, "SELECT note FROM local_notes")
	if err != nil {
		t.Fatalf("RunReceiverQuery: %v", err)
	}
	if res.TotalRows != 1 || res.Rows[0]["note"] != "hello" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestQueryLists(t *testing.T) {
	svc, _, _ := newQueryService(t)
	ctx := context.Background()

	p, _ := svc.Submit(ctx, "SELECT 1", "a", false)
	ap, _ := svc.Submit(ctx, "SELECT * FROM patients", "a", false)
	if _, err := svc.Approve(ctx, ap.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	pending, err := svc.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != p.ID {
		t.Fatalf("pending mismatch: %+v", pending)
	}

	approved, err := svc.ListApproved(ctx)
	if err != nil {
		t.Fatalf("ListApproved: %v", err)
	}
	if len(approved) != 1 || approved[0].ID != ap.ID {
		t.Fatalf("approved mismatch: %+v", approved)
	}
}
