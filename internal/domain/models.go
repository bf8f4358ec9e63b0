// Package domain defines the persistence models for the request ledger and
// the credential store. These types are mapped with GORM and live in the
// receiver-owned store; the sender store is never written by this service.
package domain

import "time"

// Roles a credential may be bound to. A session carries exactly one role
// for its whole lifetime.
const (
	RoleSender   = "sender"
	RoleReceiver = "receiver"
)

// Transfer request lifecycle states. A request leaves StatusPending at most
// once; every other value is terminal.
const (
	StatusPending         = "Pending"
	StatusReceived        = "Received"
	StatusRejectedSender  = "Rejected: Invalid Sender"
	StatusRejectedNoTable = "Rejected: Table Not Found"
	StatusRejectedSchema  = "Rejected: Schema Error"
	StatusRejectedInsert  = "Rejected: Insert Error"
	StatusRejectedManual  = "Rejected by sender"
)

// Query request lifecycle states.
const (
	QueryStatusPending  = "pending"
	QueryStatusApproved = "approved"
	QueryStatusRejected = "rejected"
)

// User is a credential record consulted once at login. Passwords are stored
// as bcrypt hashes; the record is never read again for the lifetime of a
// session (sessions are time-bounded, not revocable).
type User struct {
	ID           uint      `json:"id"            gorm:"primaryKey"`
	Username     string    `json:"username"      gorm:"type:varchar(50);uniqueIndex;not null"`
	PasswordHash string    `json:"-"             gorm:"type:varchar(255);not null"`
	Role         string    `json:"role"          gorm:"type:varchar(16);not null;check:role IN ('sender','receiver')"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "auth_users" }

// TransferRequest is a ledger entry for one whole-table transfer. The
// PayloadHash fingerprint is set only when the entry reaches StatusReceived.
//
// Fields:
//   - ID: numeric ledger id.
//   - SenderID: the sender identity named inside the request payload. It is
//     checked against the configured trusted identity at approval time,
//     independently of the caller's session role.
//   - SourceTable: the sender-side table to replicate, stored under the
//     table_name column.
//   - Status: one of the Status* constants above.
//   - PayloadHash: SHA-256 over the serialized row set, for change
//     detection and audit, not request deduplication.
type TransferRequest struct {
	ID          uint      `json:"id"           gorm:"primaryKey"`
	SenderID    string    `json:"sender_id"    gorm:"type:varchar(100);not null"`
	SourceTable string    `json:"table_name"   gorm:"column:table_name;type:varchar(100);not null"`
	Status      string    `json:"status"       gorm:"type:varchar(100);not null;default:'Pending'"`
	PayloadHash string    `json:"payload_hash" gorm:"type:varchar(255)"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for TransferRequest.
func (TransferRequest) TableName() string { return "received_log" }

// QueryRequest is a ledger entry for one read-only query submitted by the
// receiver. ResultData, ResultHeaders and ResultTable are populated if and
// only if Status is QueryStatusApproved; both hold JSON-encoded text.
type QueryRequest struct {
	ID            uint      `json:"request_id"     gorm:"primaryKey"`
	Query         string    `json:"query"          gorm:"type:text;not null"`
	RequestedBy   string    `json:"requested_by"   gorm:"type:varchar(100)"`
	Status        string    `json:"status"         gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','approved','rejected')"`
	ResultData    string    `json:"result_data"    gorm:"type:text"`
	ResultHeaders string    `json:"result_headers" gorm:"type:text"`
	ResultTable   string    `json:"table_name"     gorm:"column:table_name;type:varchar(100)"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for QueryRequest.
func (QueryRequest) TableName() string { return "query_requests" }

// Terminal reports whether a transfer status is terminal (anything that is
// not pending).
func Terminal(status string) bool { return status != StatusPending }
