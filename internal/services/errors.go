// Package services defines the business logic for the approval-gated relay:
// transfer replication, query relaying, and their ledger transitions. This
// file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrRequestNotFound indicates the requested ledger entry does not exist.
	ErrRequestNotFound = errors.New("request not found")

	// ErrAlreadyFinalized is returned when a terminal ledger entry is asked
	// to transition again. The prior terminal data is left unchanged.
	ErrAlreadyFinalized = errors.New("request already finalized")

	// ErrUntrustedSender is returned when the sender identity named inside a
	// transfer request does not match the configured trusted identity. This
	// is a policy check on the request payload, independent of the caller's
	// session role.
	ErrUntrustedSender = errors.New("invalid sender id")

	// ErrTableNotFound indicates the requested table does not exist in the
	// sender store.
	ErrTableNotFound = errors.New("table not found in sender store")

	// ErrSchemaRead is returned when the sender table's rows or structural
	// definition could not be read.
	ErrSchemaRead = errors.New("error reading sender table schema")

	// ErrReplication is returned when recreating or loading the receiver-side
	// copy failed outright.
	ErrReplication = errors.New("error replicating table")

	// ErrMissingFields is returned when a submission lacks required fields.
	ErrMissingFields = errors.New("missing required fields")

	// ErrNotApproved is returned when an export is requested for a query
	// request that is not in the approved state.
	ErrNotApproved = errors.New("query request is not approved")

	// ErrQueryFailed is returned when a backing store refused or failed the
	// submitted query text at execution time.
	ErrQueryFailed = errors.New("query error")
)
