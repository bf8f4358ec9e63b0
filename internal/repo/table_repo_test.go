package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestListTables_AlphabeticalUserTablesOnly(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()

	for _, stmt := range []string{
		`CREATE TABLE zebra (id INTEGER)`,
		`CREATE TABLE alpha (id INTEGER)`,
	} {
		if err := ExecDDL(ctx, db, stmt); err != nil {
			t.Fatalf("ExecDDL: %v", err)
		}
	}

	names, err := ListTables(ctx, db)
	if err != nil {
		t.Fatalf("ListTables: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zebra" {
		t.Fatalf("unexpected catalog: %v", names)
	}
}

func TestTableExists(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()

	if err := ExecDDL(ctx, db, `CREATE TABLE patients (id INTEGER, name TEXT)`); err != nil {
		t.Fatalf("ExecDDL: %v", err)
	}

	ok, err := TableExists(ctx, db, "patients")
	if err != nil || !ok {
		t.Fatalf("TableExists(patients) = %v, %v", ok, err)
	}
	ok, err = TableExists(ctx, db, "ghosts")
	if err != nil || ok {
		t.Fatalf("TableExists(ghosts) = %v, %v", ok, err)
	}
}

func TestTableDDL_RoundTripsDefinition(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()

	stmt := `CREATE TABLE patients (id INTEGER PRIMARY KEY, name TEXT NOT NULL, age INTEGER)`
	if err := ExecDDL(ctx, db, stmt); err != nil {
		t.Fatalf("ExecDDL: %v", err)
	}

	ddl, err := TableDDL(ctx, db, "patients")
	if err != nil {
		t.Fatalf("TableDDL: %v", err)
	}
	if !strings.Contains(ddl, "name TEXT NOT NULL") {
		t.Fatalf("DDL lost column constraints: %q", ddl)
	}

	if _, err := TableDDL(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("TableDDL(missing) err = %v, want ErrNotFound", err)
	}
}

func TestTableColumns_DeclarationOrder(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()

	if err := ExecDDL(ctx, db, `CREATE TABLE patients (id INTEGER, name TEXT, age INTEGER)`); err != nil {
		t.Fatalf("ExecDDL: %v", err)
	}

	cols, err := TableColumns(ctx, db, "patients")
	if err != nil {
		t.Fatalf("TableColumns: %v", err)
	}
	want := []string{"id", "name", "age"}
	if len(cols) != len(want) {
		t.Fatalf("cols = %v, want %v", cols, want)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Fatalf("cols = %v, want %v", cols, want)
		}
	}

	cols, err = TableColumns(ctx, db, "missing")
	if err != nil || len(cols) != 0 {
		t.Fatalf("TableColumns(missing) = %v, %v", cols, err)
	}
}

func TestRunQuery_TextualizesValuesAndNULLs(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()

	if err := ExecDDL(ctx, db, `CREATE TABLE patients (id INTEGER, name TEXT, age INTEGER)`); err != nil {
		t.Fatalf("ExecDDL: %v", err)
	}
	if err := db.Exec(`INSERT INTO patients VALUES (1, 'Ada', 36), (2, NULL, NULL)`).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	headers, rows, err := RunQuery(ctx, db, `SELECT id, name, age FROM patients ORDER BY id`)
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	if len(headers) != 3 || headers[0] != "id" || headers[1] != "name" || headers[2] != "age" {
		t.Fatalf("headers = %v", headers)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0]["id"] != "1" || rows[0]["name"] != "Ada" || rows[0]["age"] != "36" {
		t.Fatalf("row 0 mismatch: %v", rows[0])
	}
	// NULL flattens to the empty string.
	if rows[1]["name"] != "" || rows[1]["age"] != "" {
		t.Fatalf("NULL should flatten to empty: %v", rows[1])
	}
}

func TestRunQuery_EmptyResultKeepsHeaders(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()

	if err := ExecDDL(ctx, db, `CREATE TABLE patients (id INTEGER, name TEXT)`); err != nil {
		t.Fatalf("ExecDDL: %v", err)
	}
	headers, rows, err := RunQuery(ctx, db, `SELECT id, name FROM patients WHERE 1 = 0`)
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(rows))
	}
	if len(headers) != 2 {
		t.Fatalf("headers = %v", headers)
	}
}

func TestCreateTextTable_AllColumnsText(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()

	if err := CreateTextTable(ctx, db, "query_result_1_1", []string{"name", "age"}); err != nil {
		t.Fatalf("CreateTextTable: %v", err)
	}
	ddl, err := TableDDL(ctx, db, "query_result_1_1")
	if err != nil {
		t.Fatalf("TableDDL: %v", err)
	}
	if !strings.Contains(ddl, `"name" TEXT`) || !strings.Contains(ddl, `"age" TEXT`) {
		t.Fatalf("expected TEXT data columns: %q", ddl)
	}
	if !strings.Contains(ddl, "id INTEGER PRIMARY KEY AUTOINCREMENT") {
		t.Fatalf("expected identity column: %q", ddl)
	}

	// Recreating the same table is a no-op, not an error.
	if err := CreateTextTable(ctx, db, "query_result_1_1", []string{"name", "age"}); err != nil {
		t.Fatalf("idempotent recreate: %v", err)
	}
}

func TestCreateTextTable_ResultColumnsWinNameCollisions(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()

	if err := CreateTextTable(ctx, db, "query_result_3_1", []string{"id", "name"}); err != nil {
		t.Fatalf("CreateTextTable: %v", err)
	}
	ddl, err := TableDDL(ctx, db, "query_result_3_1")
	if err != nil {
		t.Fatalf("TableDDL: %v", err)
	}
	if !strings.Contains(ddl, `"id" TEXT`) {
		t.Fatalf("result id column must stay TEXT: %q", ddl)
	}
	if strings.Contains(ddl, "AUTOINCREMENT") {
		t.Fatalf("identity column must step aside on collision: %q", ddl)
	}

	// Rows carrying the colliding column load cleanly.
	if err := InsertRowsStrict(ctx, db, "query_result_3_1", []string{"id", "name"}, []map[string]string{
		{"id": "7", "name": "x"},
	}); err != nil {
		t.Fatalf("InsertRowsStrict: %v", err)
	}
}

func TestCreateTextTable_NoHeadersFallbackColumn(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()

	if err := CreateTextTable(ctx, db, "query_result_2_1", nil); err != nil {
		t.Fatalf("CreateTextTable: %v", err)
	}
	ddl, err := TableDDL(ctx, db, "query_result_2_1")
	if err != nil {
		t.Fatalf("TableDDL: %v", err)
	}
	if !strings.Contains(ddl, "result_data TEXT") {
		t.Fatalf("expected fallback column: %q", ddl)
	}
}

func TestInsertRows_ReportsPartialFailure(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()

	// The CHECK constraint fails one of the three rows.
	if err := ExecDDL(ctx, db, `CREATE TABLE scores (name TEXT, score TEXT CHECK (score <> 'bad'))`); err != nil {
		t.Fatalf("ExecDDL: %v", err)
	}

	headers := []string{"name", "score"}
	rows := []map[string]string{
		{"name": "a", "score": "1"},
		{"name": "b", "score": "bad"},
		{"name": "c", "score": "3"},
	}
	succeeded, failed := InsertRows(ctx, db, "scores", headers, rows)
	if succeeded != 2 || failed != 1 {
		t.Fatalf("succeeded=%d failed=%d, want 2/1", succeeded, failed)
	}

	_, got, err := ReadTable(ctx, db, "scores")
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows landed = %d, want 2", len(got))
	}
}

func TestInsertRowsStrict_RollsBackOnFailure(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()

	if err := ExecDDL(ctx, db, `CREATE TABLE scores (name TEXT, score TEXT CHECK (score <> 'bad'))`); err != nil {
		t.Fatalf("ExecDDL: %v", err)
	}

	headers := []string{"name", "score"}
	rows := []map[string]string{
		{"name": "a", "score": "1"},
		{"name": "b", "score": "bad"},
	}
	if err := InsertRowsStrict(ctx, db, "scores", headers, rows); err == nil {
		t.Fatalf("expected strict load to fail")
	}

	_, got, err := ReadTable(ctx, db, "scores")
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("strict load leaked %d rows", len(got))
	}
}

func TestDropTable_IdempotentAndQuoted(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()

	if err := ExecDDL(ctx, db, `CREATE TABLE patients (id INTEGER)`); err != nil {
		t.Fatalf("ExecDDL: %v", err)
	}
	if err := DropTable(ctx, db, "patients"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	if err := DropTable(ctx, db, "patients"); err != nil {
		t.Fatalf("DropTable second call: %v", err)
	}
	ok, err := TableExists(ctx, db, "patients")
	if err != nil || ok {
		t.Fatalf("table still present: %v, %v", ok, err)
	}
}
