package core

import "time"

type AuditEntry struct {
	// ID is the unique request ID (X-Correlation-ID)
	ID string `json:"id"`

	// Time is the timestamp of the event
	Time time.Time `json:"time"`

	// Action describing what happened (e.g. "token.issue", "token.diagnose")
	Action string `json:"action"`

	// ClientID and Kid identify the key the assertion was signed with
	ClientID  string `json:"client_id,omitempty"`
	Kid       string `json:"kid,omitempty"`
	PurposeID string `json:"purpose_id,omitempty"`

	// ClientKind of the resolved key, empty when retrieval failed
	ClientKind ClientKind `json:"client_kind,omitempty"`

	// Decision details
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// FailedStep is the first validation step that did not pass
	FailedStep string `json:"failed_step,omitempty"`

	// TokenID is the jti of the issued token
	TokenID string `json:"token_id,omitempty"`

	// TokenFingerprint identifies the issued token without storing it
	TokenFingerprint string `json:"token_fingerprint,omitempty"`

	// Metadata contains additional details (audience, expiry, ...)
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Auditor interface {
	Log(entry AuditEntry) error
	Close() error
}

// AuditReader is implemented by auditors that can be queried.
type AuditReader interface {
	GetRecent(limit int) ([]AuditEntry, error)
	Find(filter func(entry AuditEntry) bool, limit int) ([]AuditEntry, error)
}
