// Query-relay HTTP handlers.
//
// This file exposes the query side of the relay:
//   - POST /queries               (receiver: submit guard-checked query text)
//   - GET  /queries/pending       (either role: poll pending requests)
//   - GET  /queries/approved      (receiver: completed requests)
//   - POST /queries/{id}/preview  (sender: side-effect-free live execution)
//   - POST /queries/{id}/approve  (sender: execute + materialize + finalize)
//   - POST /queries/{id}/reject   (sender: pure state transition)
//   - GET  /queries/{id}/csv      (receiver: export recorded result)
//   - POST /run-query             (receiver: ad-hoc query on own store)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

//
// DTOs
//

// SubmitQueryRequest is the JSON payload for submitting a query request.
type SubmitQueryRequest struct {
	// Query is the raw read-only query text, screened by the guard.
	Query string `json:"query" binding:"required" example:"SELECT name FROM patients;"`
	// LimitResults appends LIMIT 100 when the text carries no LIMIT clause.
	LimitResults bool `json:"limit_results"`
	// RequestedBy optionally overrides the requester identity recorded on
	// the ledger entry; defaults to the session username.
	RequestedBy string `json:"requested_by" example:"analyst1"`
}

// SubmitQueryResponse returns the new ledger id.
type SubmitQueryResponse struct {
	RequestID uint   `json:"request_id"`
	Message   string `json:"message"`
}

// RunQueryRequest is the JSON payload for ad-hoc receiver-store queries.
type RunQueryRequest struct {
	Query string `json:"query" binding:"required"`
}

//
// Handlers
//

// SubmitQuery godoc
// @ID          submitQuery
// @Summary     Submit a query request for sender approval
// @Description Screens the text through the read-only guard; rejection creates no ledger entry.
// @Tags        Queries
// @Accept      json
// @Produce     json
// @Param       body body handlers.SubmitQueryRequest true "Query request payload"
// @Success     201 {object} handlers.SubmitQueryResponse
// @Failure     400 {object} handlers.ErrorResponse "Guard rejection or missing query"
// @Router      /queries [post]
func (h *Handlers) SubmitQuery(c *gin.Context) {
	var req SubmitQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query is required")
		return
	}
	requestedBy := req.RequestedBy
	if requestedBy == "" {
		requestedBy = username(c)
	}

	r, err := h.querySvc.Submit(c.Request.Context(), req.Query, requestedBy, req.LimitResults)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusCreated, SubmitQueryResponse{
		RequestID: r.ID,
		Message:   "query sent for approval",
	})
}

// ListPendingQueries godoc
// @ID          listPendingQueries
// @Summary     List pending query requests
// @Tags        Queries
// @Produce     json
// @Success     200 {object} map[string][]domain.QueryRequest
// @Router      /queries/pending [get]
func (h *Handlers) ListPendingQueries(c *gin.Context) {
	items, err := h.querySvc.ListPending(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUpstream, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"queries": items})
}

// ListApprovedQueries godoc
// @ID          listApprovedQueries
// @Summary     List approved query requests with their recorded results
// @Tags        Queries
// @Produce     json
// @Success     200 {object} map[string][]domain.QueryRequest
// @Router      /queries/approved [get]
func (h *Handlers) ListApprovedQueries(c *gin.Context) {
	items, err := h.querySvc.ListApproved(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUpstream, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"queries": items})
}

// PreviewQuery godoc
// @ID          previewQuery
// @Summary     Preview a pending query's live output
// @Description Executes the stored query against the sender store without mutating ledger state. Results are capped at 100 rows and may differ between calls if the underlying data changes.
// @Tags        Queries
// @Produce     json
// @Param       id path int true "Ledger id"
// @Success     200 {object} services.PreviewResult
// @Failure     404 {object} handlers.ErrorResponse "Unknown ledger id"
// @Failure     409 {object} handlers.ErrorResponse "Already finalized"
// @Router      /queries/{id}/preview [post]
func (h *Handlers) PreviewQuery(c *gin.Context) {
	id, okID := requestID(c)
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
		return
	}
	res, err := h.querySvc.Preview(c.Request.Context(), id)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"result": res})
}

// ApproveQuery godoc
// @ID          approveQuery
// @Summary     Approve a query request
// @Description Executes the query, materializes the result as a fresh all-TEXT table in the receiver store, and records the payload on the ledger entry. A failed materialization leaves the entry pending and retryable.
// @Tags        Queries
// @Produce     json
// @Param       id path int true "Ledger id"
// @Success     200 {object} services.ApproveOutcome
// @Failure     404 {object} handlers.ErrorResponse "Unknown ledger id"
// @Failure     409 {object} handlers.ErrorResponse "Already finalized"
// @Router      /queries/{id}/approve [post]
func (h *Handlers) ApproveQuery(c *gin.Context) {
	id, okID := requestID(c)
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
		return
	}
	outcome, err := h.querySvc.Approve(c.Request.Context(), id)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, outcome)
}

// RejectQuery godoc
// @ID          rejectQuery
// @Summary     Reject a query request
// @Tags        Queries
// @Produce     json
// @Param       id path int true "Ledger id"
// @Success     204 {string} string "No Content"
// @Failure     409 {object} handlers.ErrorResponse "Already finalized"
// @Router      /queries/{id}/reject [post]
func (h *Handlers) RejectQuery(c *gin.Context) {
	id, okID := requestID(c)
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
		return
	}
	if err := h.querySvc.Reject(c.Request.Context(), id); err != nil {
		failFromService(c, err)
		return
	}
	noContent(c)
}

// DownloadQueryCSV godoc
// @ID          downloadQueryCSV
// @Summary     Export an approved query result as CSV
// @Description Header row followed by one row per record; fields are double-quoted with embedded quotes doubled.
// @Tags        Queries
// @Produce     text/csv
// @Param       id path int true "Ledger id"
// @Success     200 {string} string "CSV payload"
// @Failure     404 {object} handlers.ErrorResponse "Not found or not approved"
// @Router      /queries/{id}/csv [get]
func (h *Handlers) DownloadQueryCSV(c *gin.Context) {
	id, okID := requestID(c)
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
		return
	}
	filename, data, err := h.querySvc.ExportCSV(c.Request.Context(), id)
	if err != nil {
		failFromService(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename=`+filename)
	c.Data(http.StatusOK, "text/csv", data)
}

// RunQuery godoc
// @ID          runQuery
// @Summary     Run an ad-hoc query on the receiver's own store
// @Description Guard-checked; destructive clauses are refused before execution.
// @Tags        Queries
// @Accept      json
// @Produce     json
// @Param       body body handlers.RunQueryRequest true "Query payload"
// @Success     200 {object} services.PreviewResult
// @Failure     400 {object} handlers.ErrorResponse "Guard rejection or SQL error"
// @Router      /run-query [post]
func (h *Handlers) RunQuery(c *gin.Context) {
	var req RunQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query is required")
		return
	}
	res, err := h.querySvc.RunReceiverQuery(c.Request.Context(), req.Query)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}
