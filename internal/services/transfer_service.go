// Package services – TransferService
//
// This file implements the table replicator. Given an approved transfer
// request it reads schema and rows from the sender store and reproduces them
// in the receiver store, idempotently: an existing receiver-side table of the
// same name is dropped and recreated ("last transfer wins").
//
// Row loading is a best-effort bulk load: each row commits independently and
// partial success still finalizes the ledger entry as Received, with the
// surviving count surfaced to the caller. This weak guarantee is part of the
// replicator's contract, not an accident; callers needing atomicity must
// create a new request after fixing the source.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-datashare-backend/internal/domain"
	"github.com/tbourn/go-datashare-backend/internal/repo"
)

// TransferRepo defines the ledger and table operations required by
// TransferService.
type TransferRepo interface {
	CreateTransferRequest(ctx context.Context, db *gorm.DB, senderID, table string) (*domain.TransferRequest, error)
	GetTransfer(ctx context.Context, db *gorm.DB, id uint) (*domain.TransferRequest, error)
	ListPendingTransfers(ctx context.Context, db *gorm.DB) ([]domain.TransferRequest, error)
	ListTransfers(ctx context.Context, db *gorm.DB, limit int) ([]domain.TransferRequest, error)
	FinalizeTransfer(ctx context.Context, db *gorm.DB, id uint, status, payloadHash string) error
	CountTransferStats(ctx context.Context, db *gorm.DB) (repo.TransferStats, error)

	TableExists(ctx context.Context, db *gorm.DB, table string) (bool, error)
	TableDDL(ctx context.Context, db *gorm.DB, table string) (string, error)
	ReadTable(ctx context.Context, db *gorm.DB, table string) ([]string, []map[string]string, error)
	DropTable(ctx context.Context, db *gorm.DB, table string) error
	ExecDDL(ctx context.Context, db *gorm.DB, stmt string) error
	InsertRows(ctx context.Context, db *gorm.DB, table string, headers []string, rows []map[string]string) (succeeded, failed int)
	ListTables(ctx context.Context, db *gorm.DB) ([]string, error)
}

// TransferOutcome reports a completed replication.
type TransferOutcome struct {
	Table        string `json:"table"`
	RowsInserted int    `json:"rows_inserted"`
	RowsFailed   int    `json:"rows_failed"`
	Fingerprint  string `json:"fingerprint"`
}

// TransferService coordinates the transfer ledger and the replication of
// whole tables from the sender store into the receiver store.
type TransferService struct {
	// Sender is the data-owning store; never written.
	Sender *gorm.DB
	// Receiver holds the ledger and every replicated copy.
	Receiver *gorm.DB
	// Repo is the ledger/table repository used by this service.
	Repo TransferRepo

	// TrustedSenderID is the single sender identity requests may name,
	// externalized as configuration.
	TrustedSenderID string
}

// NewTransferService constructs a TransferService over the two stores.
func NewTransferService(sender, receiver *gorm.DB, r TransferRepo, trustedSenderID string) *TransferService {
	return &TransferService{Sender: sender, Receiver: receiver, Repo: r, TrustedSenderID: trustedSenderID}
}

// Submit records a new pending transfer request on behalf of the receiver.
func (s *TransferService) Submit(ctx context.Context, senderID, table string) (*domain.TransferRequest, error) {
	if strings.TrimSpace(senderID) == "" || strings.TrimSpace(table) == "" {
		return nil, ErrMissingFields
	}
	return s.Repo.CreateTransferRequest(ctx, s.Receiver, senderID, table)
}

// ListPending returns pending transfer requests, most recent first.
func (s *TransferService) ListPending(ctx context.Context) ([]domain.TransferRequest, error) {
	return s.Repo.ListPendingTransfers(ctx, s.Receiver)
}

// History returns the most recent transfer requests regardless of state.
func (s *TransferService) History(ctx context.Context, limit int) ([]domain.TransferRequest, error) {
	return s.Repo.ListTransfers(ctx, s.Receiver, limit)
}

// Stats returns aggregate counts over the transfer ledger.
func (s *TransferService) Stats(ctx context.Context) (repo.TransferStats, error) {
	return s.Repo.CountTransferStats(ctx, s.Receiver)
}

// SenderTables lists the catalog of the sender store.
func (s *TransferService) SenderTables(ctx context.Context) ([]string, error) {
	return s.Repo.ListTables(ctx, s.Sender)
}

// Reject finalizes a pending request as rejected by the sender, with no
// data movement.
func (s *TransferService) Reject(ctx context.Context, id uint) error {
	return s.finalize(ctx, id, domain.StatusRejectedManual, "")
}

// Approve replicates the requested table from the sender store into the
// receiver store and finalizes the ledger entry.
//
// Policy and failure handling, in order:
//  1. the sender identity named in the request must equal the configured
//     trusted identity; otherwise the entry is rejected without ever
//     touching the sender store;
//  2. the named table must exist in the sender store;
//  3. rows and the table's structural definition are read from the sender;
//  4. a SHA-256 fingerprint is computed over the serialized row set;
//  5. any same-named receiver table is dropped and recreated with the
//     sender's definition verbatim;
//  6. rows are bulk-loaded best-effort; the entry finalizes as Received
//     with the fingerprint even when some rows failed, and the surviving
//     count is reported.
//
// Failures at steps 1-5 finalize the entry with a specific rejection
// status and return the matching service error.
func (s *TransferService) Approve(ctx context.Context, id uint) (*TransferOutcome, error) {
	req, err := s.Repo.GetTransfer(ctx, s.Receiver, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if domain.Terminal(req.Status) {
		return nil, ErrAlreadyFinalized
	}

	// Step 1: payload-level sender policy, before any sender store I/O.
	if req.SenderID != s.TrustedSenderID {
		if err := s.finalize(ctx, id, domain.StatusRejectedSender, ""); err != nil {
			return nil, err
		}
		return nil, ErrUntrustedSender
	}

	// Step 2: the named table must exist on the sender side.
	exists, err := s.Repo.TableExists(ctx, s.Sender, req.SourceTable)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := s.finalize(ctx, id, domain.StatusRejectedNoTable, ""); err != nil {
			return nil, err
		}
		return nil, ErrTableNotFound
	}

	// Step 3: full row set plus structural definition.
	headers, rows, err := s.Repo.ReadTable(ctx, s.Sender, req.SourceTable)
	if err != nil {
		if ferr := s.finalize(ctx, id, domain.StatusRejectedSchema, ""); ferr != nil {
			return nil, ferr
		}
		return nil, ErrSchemaRead
	}
	ddl, err := s.Repo.TableDDL(ctx, s.Sender, req.SourceTable)
	if err != nil {
		if ferr := s.finalize(ctx, id, domain.StatusRejectedSchema, ""); ferr != nil {
			return nil, ferr
		}
		return nil, ErrSchemaRead
	}

	// Step 4: fingerprint the payload for audit/change detection.
	fingerprint := fingerprintRows(rows)

	// Step 5: last transfer wins on the receiver side.
	if err := s.Repo.DropTable(ctx, s.Receiver, req.SourceTable); err != nil {
		if ferr := s.finalize(ctx, id, domain.StatusRejectedSchema, ""); ferr != nil {
			return nil, ferr
		}
		return nil, ErrReplication
	}
	if err := s.Repo.ExecDDL(ctx, s.Receiver, ddl); err != nil {
		if ferr := s.finalize(ctx, id, domain.StatusRejectedSchema, ""); ferr != nil {
			return nil, ferr
		}
		return nil, ErrReplication
	}

	// Step 6: best-effort bulk load. Total failure on a non-empty source is
	// treated as an insert error; partial failure is not.
	inserted, failed := s.Repo.InsertRows(ctx, s.Receiver, req.SourceTable, headers, rows)
	if len(rows) > 0 && inserted == 0 {
		if ferr := s.finalize(ctx, id, domain.StatusRejectedInsert, ""); ferr != nil {
			return nil, ferr
		}
		return nil, ErrReplication
	}

	// Step 7: conditional terminal transition; a concurrent approval may
	// have won, in which case the materialized copy stands but this call
	// reports the lost race.
	if err := s.finalize(ctx, id, domain.StatusReceived, fingerprint); err != nil {
		return nil, err
	}
	return &TransferOutcome{
		Table:        req.SourceTable,
		RowsInserted: inserted,
		RowsFailed:   failed,
		Fingerprint:  fingerprint,
	}, nil
}

// finalize maps the repo's conditional-update outcomes onto service errors.
func (s *TransferService) finalize(ctx context.Context, id uint, status, hash string) error {
	err := s.Repo.FinalizeTransfer(ctx, s.Receiver, id, status, hash)
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

// fingerprintRows hashes the canonical JSON serialization of a row set.
func fingerprintRows(rows []map[string]string) string {
	b, _ := json.Marshal(rows)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
