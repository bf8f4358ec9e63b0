// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package), plus the translation
// from service-level errors onto those codes. The codes give clients a
// stable, machine-readable error taxonomy supplementing human-readable
// messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless noted.
//   - Generic codes (bad_request, unauthorized, conflict, ...) mirror common
//     HTTP status semantics.
//   - Domain-specific codes (untrusted_sender, already_finalized,
//     upstream_error) are reserved for relay outcomes that cannot be
//     conveyed by status alone.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-datashare-backend/internal/auth"
	"github.com/tbourn/go-datashare-backend/internal/guard"
	"github.com/tbourn/go-datashare-backend/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeGuardRejected    = "guard_rejected"
	ErrCodeUntrustedSender  = "untrusted_sender"
	ErrCodeAlreadyFinalized = "already_finalized"
	ErrCodeUpstream         = "upstream_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// failFromService translates a service-layer error into the structured
// envelope. Validation and authorization failures surface immediately with a
// reason; upstream store failures are reported as such and never retried
// here.
func failFromService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrMissingFields):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, guard.ErrNotReadOnly):
		fail(c, http.StatusBadRequest, ErrCodeGuardRejected, err.Error())
	case errors.Is(err, services.ErrRequestNotFound),
		errors.Is(err, services.ErrTableNotFound),
		errors.Is(err, services.ErrNotApproved):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrAlreadyFinalized):
		fail(c, http.StatusConflict, ErrCodeAlreadyFinalized, err.Error())
	case errors.Is(err, services.ErrUntrustedSender):
		fail(c, http.StatusForbidden, ErrCodeUntrustedSender, err.Error())
	case errors.Is(err, services.ErrSchemaRead),
		errors.Is(err, services.ErrReplication),
		errors.Is(err, services.ErrQueryFailed):
		fail(c, http.StatusInternalServerError, ErrCodeUpstream, err.Error())
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
