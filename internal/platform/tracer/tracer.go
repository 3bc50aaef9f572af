// Package tracer provides a small tracing abstraction over OpenTelemetry.
//
// Services and ledger drivers depend on the Tracer interface; production wires
// OTelTracer and tests wire NoopTracer.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// InstrumentationName is the otel instrumentation scope for this module.
const InstrumentationName = "certledger"

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording any error that occurred.
	// End must be called exactly once, typically via defer.
	End(err error)

	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a new span with the given name and attributes.
	//
	// Example:
	//   ctx, span := t.Start(ctx, tracer.SpanCertificateRevoke,
	//       tracer.String(tracer.AttrAssetID, assetID),
	//   )
	//   defer func() { span.End(err) }()
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int creates an int attribute.
func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashIdentifier returns a truncated SHA-256 of a holder identifier so traces
// and logs can be correlated without exposing it.
func HashIdentifier(identifier string) string {
	if identifier == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(identifier))
	return hex.EncodeToString(hash[:8])
}

// Span names.
const (
	SpanCertificateCreate = "certificate.create"
	SpanCertificateVerify = "certificate.verify"
	SpanCertificateRevoke = "certificate.revoke"
	SpanCertificateRenew  = "certificate.renew"
	SpanCertificateExport = "certificate.export"
	SpanLedgerCommit      = "ledger.commit"
	SpanLedgerRetrieve    = "ledger.retrieve"
	SpanLedgerChain       = "ledger.chain"
	SpanLedgerScan        = "ledger.scan"
	SpanLedgerReconcile   = "ledger.reconcile"
)

// Attribute keys.
const (
	AttrAssetID       = "asset_id"
	AttrTransactionID = "transaction_id"
	AttrOperation     = "operation"
	AttrIdentifier    = "identifier_hash"
	AttrChainLength   = "chain.length"
	AttrVerdict       = "verdict"
	AttrBlockHeight   = "block.height"
	AttrAttempt       = "attempt"
	AttrReconciled    = "reconciled"
)

// Event names.
const (
	EventAuditEmitted  = "audit.emitted"
	EventCommitTimeout = "ledger.commit_timeout"
)
