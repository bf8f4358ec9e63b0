package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-datashare-backend/internal/domain"
)

func TestCreateQueryRequest_StartsPending(t *testing.T) {
	db := newStoreDB(t, &domain.QueryRequest{})

	r, err := CreateQueryRequest(context.Background(), db, "SELECT * FROM patients", "analyst1")
	if err != nil {
		t.Fatalf("CreateQueryRequest: %v", err)
	}
	if r.ID == 0 || r.Query != "SELECT * FROM patients" || r.RequestedBy != "analyst1" {
		t.Fatalf("unexpected fields: %+v", r)
	}
	if r.Status != domain.QueryStatusPending {
		t.Fatalf("status = %q, want %q", r.Status, domain.QueryStatusPending)
	}
}

func TestGetQueryRequest_NotFound(t *testing.T) {
	db := newStoreDB(t, &domain.QueryRequest{})
	_, err := GetQueryRequest(context.Background(), db, 7)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestApproveQuery_RecordsResultPayload(t *testing.T) {
	db := newStoreDB(t, &domain.QueryRequest{})
	ctx := context.Background()

	r, err := CreateQueryRequest(ctx, db, "SELECT 1 AS n", "analyst1")
	if err != nil {
		t.Fatalf("CreateQueryRequest: %v", err)
	}

	data := `[{"n":"1"}]`
	headers := `["n"]`
	if err := ApproveQuery(ctx, db, r.ID, data, headers, "query_result_1_123"); err != nil {
		t.Fatalf("ApproveQuery: %v", err)
	}

	got, err := GetQueryRequest(ctx, db, r.ID)
	if err != nil {
		t.Fatalf("GetQueryRequest: %v", err)
	}
	if got.Status != domain.QueryStatusApproved {
		t.Fatalf("status = %q, want approved", got.Status)
	}
	if got.ResultData != data || got.ResultHeaders != headers || got.ResultTable != "query_result_1_123" {
		t.Fatalf("result payload mismatch: %+v", got)
	}
}

func TestApproveQuery_AfterRejectRefused(t *testing.T) {
	db := newStoreDB(t, &domain.QueryRequest{})
	ctx := context.Background()

	r, _ := CreateQueryRequest(ctx, db, "SELECT 1", "a")
	if err := RejectQuery(ctx, db, r.ID); err != nil {
		t.Fatalf("RejectQuery: %v", err)
	}

	err := ApproveQuery(ctx, db, r.ID, "[]", "[]", "tbl")
	if !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("err = %v, want ErrAlreadyFinalized", err)
	}

	got, _ := GetQueryRequest(ctx, db, r.ID)
	if got.Status != domain.QueryStatusRejected || got.ResultTable != "" {
		t.Fatalf("rejected entry was disturbed: %+v", got)
	}
}

func TestRejectQuery_UnknownID(t *testing.T) {
	db := newStoreDB(t, &domain.QueryRequest{})
	err := RejectQuery(context.Background(), db, 99)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListQueriesByStatus_FiltersByState(t *testing.T) {
	db := newStoreDB(t, &domain.QueryRequest{})
	ctx := context.Background()

	p1, _ := CreateQueryRequest(ctx, db, "SELECT 1", "a")
	p2, _ := CreateQueryRequest(ctx, db, "SELECT 2", "a")
	ap, _ := CreateQueryRequest(ctx, db, "SELECT 3", "a")
	rj, _ := CreateQueryRequest(ctx, db, "SELECT 4", "a")

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []uint{p1.ID, p2.ID, ap.ID, rj.ID} {
		db.Model(&domain.QueryRequest{}).Where("id = ?", id).
			Update("created_at", base.Add(time.Duration(i)*time.Minute))
	}
	_ = ApproveQuery(ctx, db, ap.ID, "[]", "[]", "tbl")
	_ = RejectQuery(ctx, db, rj.ID)

	pending, err := ListQueriesByStatus(ctx, db, domain.QueryStatusPending)
	if err != nil {
		t.Fatalf("ListQueriesByStatus(pending): %v", err)
	}
	if len(pending) != 2 || pending[0].ID != p2.ID || pending[1].ID != p1.ID {
		t.Fatalf("pending mismatch: %+v", pending)
	}

	approved, err := ListQueriesByStatus(ctx, db, domain.QueryStatusApproved)
	if err != nil {
		t.Fatalf("ListQueriesByStatus(approved): %v", err)
	}
	if len(approved) != 1 || approved[0].ID != ap.ID {
		t.Fatalf("approved mismatch: %+v", approved)
	}
}
