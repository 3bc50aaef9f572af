package audit

import "time"

// Event records one certificate lifecycle action. It is transport-agnostic so
// stores and sinks can fan out.
type Event struct {
	Timestamp     time.Time
	Action        Action
	AssetID       string
	TransactionID string
	Operator      string
	RequestID     string
	ClientIP      string
	ClientAgent   string
	Decision      string
	Reason        string
}

type Action string

const (
	ActionCertificateIssued  Action = "certificate_issued"
	ActionCertificateRevoked Action = "certificate_revoked"
	ActionCertificateRenewed Action = "certificate_renewed"
	ActionTransitionRejected Action = "transition_rejected"
	ActionCommitReconciled   Action = "commit_reconciled"
	ActionLedgerExported     Action = "ledger_exported"
)

// Decisions recorded on events.
const (
	DecisionCommitted = "committed"
	DecisionRejected  = "rejected"
	DecisionUnknown   = "unknown"
)
