// Table-transfer HTTP handlers.
//
// This file exposes the transfer side of the relay:
//   - POST /transfers               (receiver: submit a request)
//   - GET  /transfers               (receiver: recent history)
//   - GET  /transfers/pending       (sender: poll pending requests)
//   - POST /transfers/{id}/approve  (sender: replicate + finalize)
//   - POST /transfers/{id}/reject   (sender: finalize, no data movement)
//   - GET  /transfers/stats         (either role: ledger aggregates)
//   - GET  /sender/tables           (either role: sender store catalog)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses. Role gating happens
// upstream in middleware; the services re-check payload-level policy such
// as the trusted sender identity.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-datashare-backend/internal/domain"
	"github.com/tbourn/go-datashare-backend/internal/repo"
	"github.com/tbourn/go-datashare-backend/internal/services"
	"github.com/tbourn/go-datashare-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// AuthService defines the session gate operations consumed by HTTP handlers.
type AuthService interface {
	// Authenticate verifies credentials and issues a role-bound bearer token.
	Authenticate(ctx context.Context, username, password string) (token, role string, err error)
}

// TransferService defines transfer-ledger and replication operations.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type TransferService interface {
	// Submit records a new pending transfer request.
	Submit(ctx context.Context, senderID, table string) (*domain.TransferRequest, error)
	// ListPending returns pending requests, most recent first.
	ListPending(ctx context.Context) ([]domain.TransferRequest, error)
	// History returns the most recent requests regardless of state.
	History(ctx context.Context, limit int) ([]domain.TransferRequest, error)
	// Stats returns aggregate ledger counts.
	Stats(ctx context.Context) (repo.TransferStats, error)
	// SenderTables lists the sender store catalog.
	SenderTables(ctx context.Context) ([]string, error)
	// Approve replicates the requested table and finalizes the entry.
	Approve(ctx context.Context, id uint) (*services.TransferOutcome, error)
	// Reject finalizes the entry with no data movement.
	Reject(ctx context.Context, id uint) error
}

// QueryService defines query-ledger and relay operations.
type QueryService interface {
	Submit(ctx context.Context, query, requestedBy string, limitRows bool) (*domain.QueryRequest, error)
	ListPending(ctx context.Context) ([]domain.QueryRequest, error)
	ListApproved(ctx context.Context) ([]domain.QueryRequest, error)
	Preview(ctx context.Context, id uint) (*services.PreviewResult, error)
	Approve(ctx context.Context, id uint) (*services.ApproveOutcome, error)
	Reject(ctx context.Context, id uint) error
	ExportCSV(ctx context.Context, id uint) (filename string, data []byte, err error)
	RunReceiverQuery(ctx context.Context, query string) (*services.PreviewResult, error)
}

// Pinger reports connectivity of one backing store.
type Pinger func() error

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for login, transfers, queries, and
// health. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	authSvc     AuthService
	transferSvc TransferService
	querySvc    QueryService

	pingSender   Pinger
	pingReceiver Pinger
}

// New constructs a Handlers instance bound to the given services and the
// per-store connectivity probes used by the health surface.
func New(authSvc AuthService, transferSvc TransferService, querySvc QueryService, pingSender, pingReceiver Pinger) *Handlers {
	return &Handlers{
		authSvc:      authSvc,
		transferSvc:  transferSvc,
		querySvc:     querySvc,
		pingSender:   pingSender,
		pingReceiver: pingReceiver,
	}
}

// username extracts the authenticated username from Gin context (set by the
// auth middleware).
func username(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// requestID parses the :id path parameter as an unsigned ledger id.
func requestID(c *gin.Context) (uint, bool) {
	n := utils.AtoiDefault(c.Param("id"), -1)
	if n < 1 {
		return 0, false
	}
	return uint(n), true
}

//
// DTOs
//

// SubmitTransferRequest is the JSON payload for creating a transfer request.
type SubmitTransferRequest struct {
	// SenderID names the sender domain the table should come from.
	SenderID string `json:"sender_id" binding:"required" example:"HOSPITAL_A"`
	// Table is the sender-side table to replicate.
	Table string `json:"table" binding:"required" example:"patients"`
}

// SubmitTransferResponse returns the new ledger id.
type SubmitTransferResponse struct {
	RequestID uint   `json:"request_id"`
	Message   string `json:"message"`
}

// TransferListResponse wraps ledger entries together with aggregates, the
// shape the sender dashboard polls.
type TransferListResponse struct {
	Requests []domain.TransferRequest `json:"requests"`
	Stats    repo.TransferStats       `json:"stats"`
}

//
// Handlers
//

// SubmitTransfer godoc
// @ID          submitTransfer
// @Summary     Submit a table-transfer request
// @Description Records a pending request to obtain a whole table from the sender domain.
// @Tags        Transfers
// @Accept      json
// @Produce     json
// @Param       body body handlers.SubmitTransferRequest true "Transfer request payload"
// @Success     201 {object} handlers.SubmitTransferResponse
// @Failure     400 {object} handlers.ErrorResponse "Bad request"
// @Failure     403 {object} handlers.ErrorResponse "Wrong role"
// @Router      /transfers [post]
func (h *Handlers) SubmitTransfer(c *gin.Context) {
	var req SubmitTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sender_id and table are required")
		return
	}

	r, err := h.transferSvc.Submit(c.Request.Context(), strings.TrimSpace(req.SenderID), strings.TrimSpace(req.Table))
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusCreated, SubmitTransferResponse{
		RequestID: r.ID,
		Message:   "request sent for table '" + r.SourceTable + "' from sender '" + r.SenderID + "'",
	})
}

// ListTransferHistory godoc
// @ID          listTransferHistory
// @Summary     List recent transfer requests
// @Tags        Transfers
// @Produce     json
// @Param       limit query int false "Maximum entries" minimum(1) maximum(100) default(10)
// @Success     200 {object} map[string][]domain.TransferRequest
// @Router      /transfers [get]
func (h *Handlers) ListTransferHistory(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 10)
	items, err := h.transferSvc.History(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUpstream, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"history": items})
}

// ListPendingTransfers godoc
// @ID          listPendingTransfers
// @Summary     List pending transfer requests with ledger aggregates
// @Tags        Transfers
// @Produce     json
// @Success     200 {object} handlers.TransferListResponse
// @Router      /transfers/pending [get]
func (h *Handlers) ListPendingTransfers(c *gin.Context) {
	ctx := c.Request.Context()
	items, err := h.transferSvc.ListPending(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUpstream, err.Error())
		return
	}
	stats, err := h.transferSvc.Stats(ctx)
	if err != nil {
		// History of requests is more useful than the aggregates; degrade.
		ok(c, http.StatusOK, TransferListResponse{Requests: items})
		return
	}
	ok(c, http.StatusOK, TransferListResponse{Requests: items, Stats: stats})
}

// TransferStats godoc
// @ID          transferStats
// @Summary     Aggregate counts over the transfer ledger
// @Tags        Transfers
// @Produce     json
// @Success     200 {object} map[string]repo.TransferStats
// @Router      /transfers/stats [get]
func (h *Handlers) TransferStats(c *gin.Context) {
	stats, err := h.transferSvc.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUpstream, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"stats": stats})
}

// ApproveTransfer godoc
// @ID          approveTransfer
// @Summary     Approve a transfer request and replicate the table
// @Description Replicates the named table from the sender store into the receiver store and finalizes the ledger entry.
// @Tags        Transfers
// @Produce     json
// @Param       id path int true "Ledger id"
// @Success     200 {object} services.TransferOutcome
// @Failure     403 {object} handlers.ErrorResponse "Untrusted sender identity"
// @Failure     404 {object} handlers.ErrorResponse "Unknown ledger id or table"
// @Failure     409 {object} handlers.ErrorResponse "Already finalized"
// @Router      /transfers/{id}/approve [post]
func (h *Handlers) ApproveTransfer(c *gin.Context) {
	id, okID := requestID(c)
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
		return
	}
	outcome, err := h.transferSvc.Approve(c.Request.Context(), id)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, outcome)
}

// RejectTransfer godoc
// @ID          rejectTransfer
// @Summary     Reject a transfer request
// @Tags        Transfers
// @Produce     json
// @Param       id path int true "Ledger id"
// @Success     204 {string} string "No Content"
// @Failure     409 {object} handlers.ErrorResponse "Already finalized"
// @Router      /transfers/{id}/reject [post]
func (h *Handlers) RejectTransfer(c *gin.Context) {
	id, okID := requestID(c)
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
		return
	}
	if err := h.transferSvc.Reject(c.Request.Context(), id); err != nil {
		failFromService(c, err)
		return
	}
	noContent(c)
}

// SenderTables godoc
// @ID          senderTables
// @Summary     List the sender store's table catalog
// @Tags        Stores
// @Produce     json
// @Success     200 {object} map[string][]string
// @Router      /sender/tables [get]
func (h *Handlers) SenderTables(c *gin.Context) {
	tables, err := h.transferSvc.SenderTables(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUpstream, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"tables": tables})
}
