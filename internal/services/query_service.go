// Package services – QueryService
//
// This file implements the query relay. Receivers submit read-only query
// text which the guard screens before a ledger entry exists; senders may
// preview results without touching ledger state, then approve or reject.
// Approval executes the query against the sender store, materializes the
// result as a fresh all-TEXT table in the receiver store, and records the
// inline result payload on the ledger entry.
//
// Unlike transfer replication, a failed approval leaves the ledger entry
// pending so the sender can retry; only the recorded state transition is
// serialized, not the materialization I/O.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-datashare-backend/internal/domain"
	"github.com/tbourn/go-datashare-backend/internal/guard"
	"github.com/tbourn/go-datashare-backend/internal/repo"
)

// QueryRepo defines the ledger and table operations required by QueryService.
type QueryRepo interface {
	CreateQueryRequest(ctx context.Context, db *gorm.DB, query, requestedBy string) (*domain.QueryRequest, error)
	GetQueryRequest(ctx context.Context, db *gorm.DB, id uint) (*domain.QueryRequest, error)
	ListQueriesByStatus(ctx context.Context, db *gorm.DB, status string) ([]domain.QueryRequest, error)
	ApproveQuery(ctx context.Context, db *gorm.DB, id uint, resultData, resultHeaders, tableName string) error
	RejectQuery(ctx context.Context, db *gorm.DB, id uint) error

	RunQuery(ctx context.Context, db *gorm.DB, query string) ([]string, []map[string]string, error)
	TableColumns(ctx context.Context, db *gorm.DB, table string) ([]string, error)
	CreateTextTable(ctx context.Context, db *gorm.DB, table string, headers []string) error
	InsertRowsStrict(ctx context.Context, db *gorm.DB, table string, headers []string, rows []map[string]string) error
}

// PreviewResult is a capped, side-effect-free look at a pending query's
// live output. Re-executing may return different rows if sender data moved.
type PreviewResult struct {
	Rows      []map[string]string `json:"rows"`
	Headers   []string            `json:"headers"`
	TotalRows int                 `json:"total_rows"`
}

// ApproveOutcome reports a completed query approval.
type ApproveOutcome struct {
	TableName string `json:"table_name"`
	RowCount  int    `json:"row_count"`
}

// QueryService coordinates the query ledger, guard screening, sender-side
// execution, and receiver-side materialization.
type QueryService struct {
	// Sender is the store queries execute against; never written.
	Sender *gorm.DB
	// Receiver holds the ledger and materialized result tables.
	Receiver *gorm.DB
	// Repo is the ledger/table repository used by this service.
	Repo QueryRepo

	// PreviewLimit caps rows returned by Preview.
	PreviewLimit int

	// now is a test seam for derived table names; defaults to time.Now.
	now func() time.Time
}

// NewQueryService constructs a QueryService with the default preview cap.
func NewQueryService(sender, receiver *gorm.DB, r QueryRepo) *QueryService {
	return &QueryService{Sender: sender, Receiver: receiver, Repo: r, PreviewLimit: 100, now: time.Now}
}

// limitRE detects an existing LIMIT clause, case-insensitively.
var limitRE = regexp.MustCompile(`(?i)\blimit\b`)

// fromRE extracts the table identifier of a simple single-table FROM clause.
// Best effort only: subqueries, joins, and quoted identifiers do not match,
// and empty results for such queries carry an empty header list.
var fromRE = regexp.MustCompile(`(?i)\bfrom\s+([A-Za-z_][A-Za-z0-9_]*)`)

// Submit screens query text through the guard and records a pending ledger
// entry. Guard rejection creates no ledger state. When limitRows is set and
// the text has no LIMIT clause, a LIMIT 100 suffix is appended.
func (s *QueryService) Submit(ctx context.Context, query, requestedBy string, limitRows bool) (*domain.QueryRequest, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrMissingFields
	}
	if err := guard.Classify(query); err != nil {
		return nil, err
	}
	if limitRows && !limitRE.MatchString(query) {
		query = strings.TrimRight(query, "; \t\n") + " LIMIT 100;"
	}
	return s.Repo.CreateQueryRequest(ctx, s.Receiver, query, requestedBy)
}

// ListPending returns pending query requests, most recent first.
func (s *QueryService) ListPending(ctx context.Context) ([]domain.QueryRequest, error) {
	return s.Repo.ListQueriesByStatus(ctx, s.Receiver, domain.QueryStatusPending)
}

// ListApproved returns approved query requests, most recently updated first.
func (s *QueryService) ListApproved(ctx context.Context) ([]domain.QueryRequest, error) {
	return s.Repo.ListQueriesByStatus(ctx, s.Receiver, domain.QueryStatusApproved)
}

// Preview executes a pending request's stored query against the sender
// store and returns up to PreviewLimit rows plus the total count. It never
// mutates ledger state and is safe to call repeatedly.
func (s *QueryService) Preview(ctx context.Context, id uint) (*PreviewResult, error) {
	req, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}
	headers, rows, err := s.Repo.RunQuery(ctx, s.Sender, req.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	total := len(rows)
	if s.PreviewLimit > 0 && total > s.PreviewLimit {
		rows = rows[:s.PreviewLimit]
	}
	return &PreviewResult{Rows: rows, Headers: headers, TotalRows: total}, nil
}

// Approve executes the stored query, materializes the result as a new
// all-TEXT table in the receiver store, and flips the ledger entry to
// approved with the inline result payload.
//
// The derived table name combines the request id and a timestamp, so
// repeated approvals can never collide. If table creation or any row
// insertion fails, the approval fails as a whole and the ledger entry
// stays pending (retryable by the sender, not auto-rejected).
func (s *QueryService) Approve(ctx context.Context, id uint) (*ApproveOutcome, error) {
	req, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}

	headers, rows, err := s.Repo.RunQuery(ctx, s.Sender, req.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	// Empty result sets fall back to introspecting the FROM table's
	// definition; queries without a simple single-table FROM clause yield
	// an empty header list (accepted limitation).
	if len(rows) == 0 {
		headers = nil
		if m := fromRE.FindStringSubmatch(req.Query); m != nil {
			if cols, cerr := s.Repo.TableColumns(ctx, s.Sender, m[1]); cerr == nil {
				headers = cols
			}
		}
	}

	tableName := fmt.Sprintf("query_result_%d_%d", id, s.now().UnixMilli())
	if err := s.Repo.CreateTextTable(ctx, s.Receiver, tableName, headers); err != nil {
		return nil, fmt.Errorf("error saving results: %w", err)
	}
	if err := s.Repo.InsertRowsStrict(ctx, s.Receiver, tableName, headers, rows); err != nil {
		return nil, fmt.Errorf("error saving results: %w", err)
	}

	data, _ := json.Marshal(rows)
	hdrs, _ := json.Marshal(headers)
	if err := s.approveLedger(ctx, id, string(data), string(hdrs), tableName); err != nil {
		return nil, err
	}
	return &ApproveOutcome{TableName: tableName, RowCount: len(rows)}, nil
}

// Reject flips a pending entry to rejected. Pure state transition.
func (s *QueryService) Reject(ctx context.Context, id uint) error {
	err := s.Repo.RejectQuery(ctx, s.Receiver, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrNotFound):
		return ErrRequestNotFound
	case errors.Is(err, repo.ErrAlreadyFinalized):
		return ErrAlreadyFinalized
	default:
		return err
	}
}

// ExportCSV renders an approved request's recorded result as delimited
// text: a header row, then one row per record with every field
// double-quoted and embedded quotes doubled.
func (s *QueryService) ExportCSV(ctx context.Context, id uint) (filename string, data []byte, err error) {
	req, err := s.get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if req.Status != domain.QueryStatusApproved {
		return "", nil, ErrNotApproved
	}

	var headers []string
	var rows []map[string]string
	if req.ResultHeaders != "" {
		if err := json.Unmarshal([]byte(req.ResultHeaders), &headers); err != nil {
			return "", nil, fmt.Errorf("decode result headers: %w", err)
		}
	}
	if req.ResultData != "" {
		if err := json.Unmarshal([]byte(req.ResultData), &rows); err != nil {
			return "", nil, fmt.Errorf("decode result data: %w", err)
		}
	}

	var b strings.Builder
	b.WriteString(strings.Join(headers, ","))
	b.WriteByte('\n')
	for _, row := range rows {
		fields := make([]string, len(headers))
		for i, h := range headers {
			fields[i] = `"` + strings.ReplaceAll(row[h], `"`, `""`) + `"`
		}
		b.WriteString(strings.Join(fields, ","))
		b.WriteByte('\n')
	}
	return fmt.Sprintf("query_result_%d.csv", id), []byte(b.String()), nil
}

// RunReceiverQuery executes ad-hoc, guard-checked query text directly on
// the receiver's own store.
func (s *QueryService) RunReceiverQuery(ctx context.Context, query string) (*PreviewResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrMissingFields
	}
	if err := guard.Classify(query); err != nil {
		return nil, err
	}
	headers, rows, err := s.Repo.RunQuery(ctx, s.Receiver, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return &PreviewResult{Rows: rows, Headers: headers, TotalRows: len(rows)}, nil
}

// get loads a ledger entry, mapping missing rows to ErrRequestNotFound.
func (s *QueryService) get(ctx context.Context, id uint) (*domain.QueryRequest, error) {
	req, err := s.Repo.GetQueryRequest(ctx, s.Receiver, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

// pending loads a ledger entry that must still be pending.
func (s *QueryService) pending(ctx context.Context, id uint) (*domain.QueryRequest, error) {
	req, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.QueryStatusPending {
		return nil, ErrAlreadyFinalized
	}
	return req, nil
}

// approveLedger maps the repo's conditional-update outcomes onto service
// errors. A lost race leaves the winner's terminal data untouched; the
// loser's materialized table stands (at-least-once execution).
func (s *QueryService) approveLedger(ctx context.Context, id uint, data, headers, table string) error {
	err := s.Repo.ApproveQuery(ctx, s.Receiver, id, data, headers, table)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrNotFound):
		return ErrRequestNotFound
	case errors.Is(err, repo.ErrAlreadyFinalized):
		return ErrAlreadyFinalized
	default:
		return err
	}
}
