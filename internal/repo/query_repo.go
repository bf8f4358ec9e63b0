// Package repo implements the data persistence layer, backed by GORM. This
// file provides repository functions for the query-request ledger
// (query_requests).
//
// Terminal transitions (ApproveQuery, RejectQuery) are conditional on the
// entry still being pending, mirroring FinalizeTransfer: at most one caller
// wins the recorded state even when several execute relay I/O concurrently.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-datashare-backend/internal/domain"
)

// CreateQueryRequest inserts a new pending query ledger entry. Guard
// classification happens in the service layer before this is called.
func CreateQueryRequest(ctx context.Context, db *gorm.DB, query, requestedBy string) (*domain.QueryRequest, error) {
	r := &domain.QueryRequest{
		Query:       query,
		RequestedBy: requestedBy,
		Status:      domain.QueryStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// GetQueryRequest fetches one query ledger entry by id, or ErrNotFound.
func GetQueryRequest(ctx context.Context, db *gorm.DB, id uint) (*domain.QueryRequest, error) {
	var r domain.QueryRequest
	if err := db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListQueriesByStatus returns entries in the given state. Pending entries
// are ordered by creation time, approved/rejected by last update, newest
// first, capped at the documented page limit.
func ListQueriesByStatus(ctx context.Context, db *gorm.DB, status string) ([]domain.QueryRequest, error) {
	order := "created_at desc"
	if status != domain.QueryStatusPending {
		order = "updated_at desc"
	}
	var out []domain.QueryRequest
	err := db.WithContext(ctx).
		Where("status = ?", status).
		Order(order).
		Limit(listPageLimit).
		Find(&out).Error
	return out, err
}

// ApproveQuery transitions a pending entry to approved, recording the
// serialized result rows, header list, and materialized table name in the
// same conditional write. Returns ErrNotFound or ErrAlreadyFinalized when
// the entry is missing or no longer pending.
func ApproveQuery(ctx context.Context, db *gorm.DB, id uint, resultData, resultHeaders, tableName string) error {
	res := db.WithContext(ctx).
		Model(&domain.QueryRequest{}).
		Where("id = ? AND status = ?", id, domain.QueryStatusPending).
		Updates(map[string]any{
			"status":         domain.QueryStatusApproved,
			"result_data":    resultData,
			"result_headers": resultHeaders,
			"table_name":     tableName,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := GetQueryRequest(ctx, db, id); err != nil {
			return err
		}
		return ErrAlreadyFinalized
	}
	return nil
}

// RejectQuery transitions a pending entry to rejected. Pure state change,
// no data movement.
func RejectQuery(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).
		Model(&domain.QueryRequest{}).
		Where("id = ? AND status = ?", id, domain.QueryStatusPending).
		Updates(map[string]any{
			"status":     domain.QueryStatusRejected,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := GetQueryRequest(ctx, db, id); err != nil {
			return err
		}
		return ErrAlreadyFinalized
	}
	return nil
}
