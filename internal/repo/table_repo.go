// Package repo implements the data persistence layer, backed by GORM. This
// file provides dynamic-table primitives used by the replicator and the
// query relay: catalog introspection, verbatim DDL retrieval, generic row
// scans, and best-effort bulk loads. These operate on tables whose shape is
// only known at runtime, so they use raw SQL through the GORM handle rather
// than typed models.
//
// All values are read and written as text. Column typing for materialized
// query results is deliberately not inferred from source types; NULLs are
// flattened to empty strings on read.
package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// quoteIdent wraps an identifier in double quotes, doubling any embedded
// quote. Table and column names reach this layer from sender-side catalogs
// and ledger payloads, never verbatim from URL parameters.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ListTables returns the user table names of a store, alphabetically.
func ListTables(ctx context.Context, db *gorm.DB) ([]string, error) {
	var names []string
	err := db.WithContext(ctx).
		Raw(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`).
		Scan(&names).Error
	return names, err
}

// TableExists reports whether a user table of the given name exists.
func TableExists(ctx context.Context, db *gorm.DB, table string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Raw(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).
		Scan(&n).Error
	return n > 0, err
}

// TableDDL returns the stored CREATE TABLE statement for a table, including
// its column types and constraints, or ErrNotFound when the table is absent.
func TableDDL(ctx context.Context, db *gorm.DB, table string) (string, error) {
	var ddl sql.NullString
	err := db.WithContext(ctx).
		Raw(`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table).
		Scan(&ddl).Error
	if err != nil {
		return "", err
	}
	if !ddl.Valid || ddl.String == "" {
		return "", ErrNotFound
	}
	return ddl.String, nil
}

// TableColumns returns the column names of a table in declaration order.
// An empty slice means the table does not exist.
func TableColumns(ctx context.Context, db *gorm.DB, table string) ([]string, error) {
	rows, err := db.WithContext(ctx).
		Raw(fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(table))).
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// RunQuery executes arbitrary (guard-checked) SQL and captures a
// column-labelled result set. Headers preserve the result's column order;
// each row maps header to the value's text form.
func RunQuery(ctx context.Context, db *gorm.DB, query string) (headers []string, rows []map[string]string, err error) {
	sqlRows, err := db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return nil, nil, err
	}
	defer sqlRows.Close()

	headers, err = sqlRows.Columns()
	if err != nil {
		return nil, nil, err
	}

	rows = make([]map[string]string, 0)
	vals := make([]sql.NullString, len(headers))
	ptrs := make([]any, len(headers))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for sqlRows.Next() {
		if err := sqlRows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			row[h] = vals[i].String // NULL -> ""
		}
		rows = append(rows, row)
	}
	return headers, rows, sqlRows.Err()
}

// ReadTable captures the full content of one table.
func ReadTable(ctx context.Context, db *gorm.DB, table string) (headers []string, rows []map[string]string, err error) {
	return RunQuery(ctx, db, fmt.Sprintf(`SELECT * FROM %s`, quoteIdent(table)))
}

// ExecDDL runs a schema statement (CREATE/DROP) verbatim.
func ExecDDL(ctx context.Context, db *gorm.DB, stmt string) error {
	return db.WithContext(ctx).Exec(stmt).Error
}

// DropTable removes a table if present. Used for the "last transfer wins"
// recreate step.
func DropTable(ctx context.Context, db *gorm.DB, table string) error {
	return db.WithContext(ctx).
		Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteIdent(table))).Error
}

// CreateTextTable materializes a result table with every data column typed
// as TEXT, plus an identity column and an insertion timestamp. With no
// headers a single fallback column is created so empty result sets still
// yield a table. Bookkeeping columns step aside when the result set already
// carries a column of the same name; result data always wins the name.
func CreateTextTable(ctx context.Context, db *gorm.DB, table string, headers []string) error {
	taken := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		taken[strings.ToLower(h)] = struct{}{}
	}

	cols := make([]string, 0, len(headers)+2)
	if _, ok := taken["id"]; !ok {
		cols = append(cols, `id INTEGER PRIMARY KEY AUTOINCREMENT`)
	}
	if len(headers) == 0 {
		cols = append(cols, `result_data TEXT`)
	}
	for _, h := range headers {
		cols = append(cols, quoteIdent(h)+` TEXT`)
	}
	if _, ok := taken["imported_at"]; !ok {
		cols = append(cols, `imported_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP`)
	}

	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, quoteIdent(table), strings.Join(cols, ", "))
	return db.WithContext(ctx).Exec(stmt).Error
}

// InsertRows bulk-loads rows into table, committing each row independently.
// Partial success is reported, not masked: the returned counts say how many
// rows landed and how many failed. Callers that need all-or-nothing
// semantics should use InsertRowsStrict.
func InsertRows(ctx context.Context, db *gorm.DB, table string, headers []string, rows []map[string]string) (succeeded, failed int) {
	if len(headers) == 0 {
		return 0, 0
	}
	stmt := insertStmt(table, headers)
	for _, row := range rows {
		args := make([]any, len(headers))
		for i, h := range headers {
			args[i] = row[h]
		}
		if err := db.WithContext(ctx).Exec(stmt, args...).Error; err != nil {
			failed++
			continue
		}
		succeeded++
	}
	return succeeded, failed
}

// InsertRowsStrict bulk-loads rows inside one transaction; the first
// failing row aborts and rolls back the whole load.
func InsertRowsStrict(ctx context.Context, db *gorm.DB, table string, headers []string, rows []map[string]string) error {
	if len(headers) == 0 || len(rows) == 0 {
		return nil
	}
	stmt := insertStmt(table, headers)
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			args := make([]any, len(headers))
			for i, h := range headers {
				args[i] = row[h]
			}
			if err := tx.Exec(stmt, args...).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// insertStmt builds a parameterized INSERT for the given column set.
func insertStmt(table string, headers []string) string {
	quoted := make([]string, len(headers))
	marks := make([]string, len(headers))
	for i, h := range headers {
		quoted[i] = quoteIdent(h)
		marks[i] = "?"
	}
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
}
