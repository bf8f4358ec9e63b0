// Package repo implements the data persistence layer, backed by GORM. This
// file provides repository functions for the table-transfer ledger
// (received_log).
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a ledger entry is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - FinalizeTransfer returns ErrAlreadyFinalized when the entry exists
//     but is no longer pending; this conditional update is the single
//     serialization point for concurrent approvals.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-datashare-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrAlreadyFinalized is returned when a terminal ledger entry is asked to
// transition again. Prior terminal data is left unchanged.
var ErrAlreadyFinalized = errors.New("ledger entry already finalized")

// listPageLimit caps pending/history listings; callers must not assume an
// unbounded result size.
const listPageLimit = 100

// CreateTransferRequest inserts a new pending transfer ledger entry and
// returns it with its assigned id.
func CreateTransferRequest(ctx context.Context, db *gorm.DB, senderID, table string) (*domain.TransferRequest, error) {
	r := &domain.TransferRequest{
		SenderID:    senderID,
		SourceTable: table,
		Status:      domain.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// GetTransfer fetches one transfer ledger entry by id, or ErrNotFound.
func GetTransfer(ctx context.Context, db *gorm.DB, id uint) (*domain.TransferRequest, error) {
	var r domain.TransferRequest
	if err := db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListPendingTransfers returns pending entries, most recent first, capped
// at the documented page limit.
func ListPendingTransfers(ctx context.Context, db *gorm.DB) ([]domain.TransferRequest, error) {
	var out []domain.TransferRequest
	err := db.WithContext(ctx).
		Where("status = ?", domain.StatusPending).
		Order("created_at desc").
		Limit(listPageLimit).
		Find(&out).Error
	return out, err
}

// ListTransfers returns the most recent entries regardless of state,
// newest first, capped at limit (values < 1 fall back to the page limit).
func ListTransfers(ctx context.Context, db *gorm.DB, limit int) ([]domain.TransferRequest, error) {
	if limit < 1 || limit > listPageLimit {
		limit = listPageLimit
	}
	var out []domain.TransferRequest
	err := db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// FinalizeTransfer transitions a pending entry to a terminal status,
// optionally recording the payload fingerprint. The update is conditional
// on the entry still being pending: when zero rows match, the entry either
// does not exist (ErrNotFound) or has already been finalized
// (ErrAlreadyFinalized).
func FinalizeTransfer(ctx context.Context, db *gorm.DB, id uint, status, payloadHash string) error {
	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if payloadHash != "" {
		updates["payload_hash"] = payloadHash
	}
	res := db.WithContext(ctx).
		Model(&domain.TransferRequest{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := GetTransfer(ctx, db, id); err != nil {
			return err
		}
		return ErrAlreadyFinalized
	}
	return nil
}

// TransferStats holds aggregate counts over the transfer ledger, used by
// the sender and receiver dashboards.
type TransferStats struct {
	Total    int64 `json:"total"`
	Approved int64 `json:"approved"`
	Pending  int64 `json:"pending"`
	Rejected int64 `json:"rejected"`
}

// CountTransferStats computes aggregate transfer counts in one scan.
// Rejected covers every terminal state other than Received.
func CountTransferStats(ctx context.Context, db *gorm.DB) (TransferStats, error) {
	var s TransferStats
	err := db.WithContext(ctx).
		Model(&domain.TransferRequest{}).
		Select(
			"COUNT(*) AS total, "+
				"SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS approved, "+
				"SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS pending, "+
				"SUM(CASE WHEN status LIKE 'Rejected%' THEN 1 ELSE 0 END) AS rejected",
			domain.StatusReceived, domain.StatusPending,
		).
		Scan(&s).Error
	return s, err
}
