package models

// CreateResponse echoes the holder that was submitted.
type CreateResponse struct {
	Message       string     `json:"message"`
	TransactionID string     `json:"transaction_id"`
	Holder        HolderView `json:"holder"`
	ExpiryDate    Timestamp  `json:"expiry_date"`
}

type RevokeResponse struct {
	Message        string    `json:"message"`
	TransactionID  string    `json:"transaction_id"`
	Status         Status    `json:"status"`
	RevocationDate Timestamp `json:"revocation_date"`
}

type RenewResponse struct {
	Message       string    `json:"message"`
	TransactionID string    `json:"transaction_id"`
	NewExpiryDate Timestamp `json:"new_expiry_date"`
}

// ScanReport summarises a ledger export.
type ScanReport struct {
	Message       string        `json:"message"`
	Transactions  []LedgerEntry `json:"transactions"`
	Count         int           `json:"count"`
	Height        int64         `json:"height"`
	SkippedBlocks []int64       `json:"skipped_blocks,omitempty"`
}
