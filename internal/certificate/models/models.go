package models

import "certledger/internal/ledger"

// AssetType tags certificate assets on the ledger.
const AssetType = "micro_certificate"

// MetadataVersion is stamped on every metadata record.
const MetadataVersion = "1.0"

// Status is the lifecycle state of a certificate. Expired is derived and
// never stored.
type Status string

const (
	StatusValid   Status = "valid"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// Reason explains a negative verification verdict.
type Reason string

const (
	ReasonNotFound Reason = "not found"
	ReasonRevoked  Reason = "revoked"
	ReasonExpired  Reason = "expired"
)

// Redacted replaces an identifier the caller may not read.
const Redacted = "REDACTED"

// EncryptedIdentifier is ciphertext bound to the issuer that produced it.
type EncryptedIdentifier struct {
	EncryptedData   string `json:"encrypted_data"`
	IssuerPublicKey string `json:"issuer_public_key"`
}

type Holder struct {
	Name                string              `json:"name"`
	Surname             string              `json:"surname"`
	EncryptedIdentifier EncryptedIdentifier `json:"encrypted_identifier"`
}

// CertificateAsset is the immutable payload of a CREATE.
type CertificateAsset struct {
	Type            string `json:"type"`
	CertificateID   string `json:"certificate_id"`
	Holder          Holder `json:"holder"`
	Competence      string `json:"competence"`
	IssuerPublicKey string `json:"issuer_public_key"`
}

// Metadata is the state stamped on each chain record. Exactly one of
// IssueDate, RenewalDate or RevocationDate is set.
type Metadata struct {
	Status         Status     `json:"status"`
	IssueDate      *Timestamp `json:"issue_date,omitempty"`
	RenewalDate    *Timestamp `json:"renewal_date,omitempty"`
	RevocationDate *Timestamp `json:"revocation_date,omitempty"`
	ExpiryDate     *Timestamp `json:"expiry_date,omitempty"`
	PreviousTx     string     `json:"previous_tx,omitempty"`
	Version        string     `json:"version"`
}

// EventDate returns the date of the event the record captures.
func (m Metadata) EventDate() *Timestamp {
	switch {
	case m.RevocationDate != nil:
		return m.RevocationDate
	case m.RenewalDate != nil:
		return m.RenewalDate
	default:
		return m.IssueDate
	}
}

// Record is one decoded transaction of a certificate chain.
type Record struct {
	ID        string
	Operation ledger.Operation
	AssetID   string
	Asset     *CertificateAsset // CREATE only
	Metadata  Metadata
	Outputs   []ledger.Output
}

// HolderView is the holder as shown to a verifier.
type HolderView struct {
	Name       string `json:"name"`
	Surname    string `json:"surname"`
	Identifier string `json:"identifier"`
}

type HistoryEntry struct {
	TransactionID string           `json:"transaction_id"`
	Operation     ledger.Operation `json:"operation"`
	Status        Status           `json:"status"`
	Timestamp     *Timestamp       `json:"timestamp,omitempty"`
}

// CertificateView is the verification verdict computed from a chain.
type CertificateView struct {
	Valid           bool           `json:"valid"`
	Reason          Reason         `json:"reason,omitempty"`
	Status          Status         `json:"status,omitempty"`
	AssetID         string         `json:"asset_id,omitempty"`
	ExpiryDate      *Timestamp     `json:"expiry_date,omitempty"`
	RevocationDate  *Timestamp     `json:"revocation_date,omitempty"`
	Holder          *HolderView    `json:"holder,omitempty"`
	Competence      string         `json:"competence,omitempty"`
	IssuerPublicKey string         `json:"issuer_public_key,omitempty"`
	History         []HistoryEntry `json:"history,omitempty"`
}

// WithoutIdentifier returns a copy of v whose holder identifier is redacted.
func (v *CertificateView) WithoutIdentifier() *CertificateView {
	out := *v
	if v.Holder != nil {
		holder := *v.Holder
		holder.Identifier = Redacted
		out.Holder = &holder
	}
	return &out
}

// IssuerView describes one issuing identity served by the process.
type IssuerView struct {
	ID        string `json:"id"`
	PublicKey string `json:"public_key"`
}

type IssuerList struct {
	Issuers []IssuerView `json:"issuers"`
}

// LedgerEntry is one certificate CREATE found by the scanner.
type LedgerEntry struct {
	BlockHeight   int64            `json:"block_height"`
	TransactionID string           `json:"transaction_id"`
	Operation     ledger.Operation `json:"operation"`
	Asset         CertificateAsset `json:"asset"`
	Metadata      Metadata         `json:"metadata"`
}
