// Package chain maps certificates onto ledger transaction chains. A
// certificate is one CREATE followed by zero or more self-TRANSFERs, each
// spending the previous record's only output and stamping new metadata.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"certledger/internal/certificate/issuer"
	"certledger/internal/certificate/models"
	"certledger/internal/ledger"
	"certledger/internal/platform/tracer"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/requestcontext"
)

const (
	defaultReconcileAttempts = 5
	defaultReconcileInterval = 500 * time.Millisecond
)

// ErrNotCertificate is returned when a transaction does not carry a
// certificate asset.
var ErrNotCertificate = errors.New("transaction is not a certificate")

// Recorder receives ledger call timings and reconciliation outcomes.
type Recorder interface {
	ObserveLedgerCall(operation string, d time.Duration)
	ObserveReconcile(outcome string)
}

// Chain wraps a ledger.Client with certificate semantics.
type Chain struct {
	client   ledger.Client
	logger   *slog.Logger
	tracer   tracer.Tracer
	recorder Recorder
	attempts int
	interval time.Duration
}

type Option func(*Chain)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		c.logger = logger
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(c *Chain) {
		c.tracer = t
	}
}

// WithRecorder reports ledger latency and reconcile outcomes.
func WithRecorder(r Recorder) Option {
	return func(c *Chain) {
		c.recorder = r
	}
}

// WithReconcile configures how a timed-out commit is polled for. Non-positive
// values keep the defaults.
func WithReconcile(attempts int, interval time.Duration) Option {
	return func(c *Chain) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if interval > 0 {
			c.interval = interval
		}
	}
}

// New creates a Chain over client.
func New(client ledger.Client, opts ...Option) *Chain {
	c := &Chain{
		client:   client,
		logger:   slog.Default(),
		tracer:   tracer.NewNoop(),
		attempts: defaultReconcileAttempts,
		interval: defaultReconcileInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateInput is the plaintext material of a new certificate.
type CreateInput struct {
	HolderName  string
	Surname     string
	Competence  string
	Identifier  string
	ValidMonths int
}

// Prepared is a signed transaction that has not been committed. Its id is
// final, which is what makes timed-out commits reconcilable.
type Prepared struct {
	Tx     *ledger.Transaction
	Record models.Record
}

// PrepareCreate builds and signs the CREATE of a new certificate.
func (c *Chain) PrepareCreate(ctx context.Context, iss *issuer.Context, in CreateInput) (*Prepared, error) {
	const op = "certificate.prepare_create"
	if in.ValidMonths <= 0 {
		return nil, fail(dErrors.CodeInvalidInput, "valid_months must be positive", op, "")
	}
	enc, err := iss.Encrypt(in.Identifier)
	if err != nil {
		return nil, dErrors.WithOp(err, dErrors.CodeInternal, op, "")
	}

	now := requestcontext.Now(ctx)
	issued := models.NewTimestamp(now)
	expiry := models.ExpiryAfter(now, in.ValidMonths)
	asset := models.CertificateAsset{
		Type:          models.AssetType,
		CertificateID: uuid.NewString(),
		Holder: models.Holder{
			Name:                in.HolderName,
			Surname:             in.Surname,
			EncryptedIdentifier: enc,
		},
		Competence:      in.Competence,
		IssuerPublicKey: iss.PublicKey(),
	}
	md := models.Metadata{
		Status:     models.StatusValid,
		IssueDate:  issued.Ptr(),
		ExpiryDate: expiry.Ptr(),
		Version:    models.MetadataVersion,
	}

	data, err := json.Marshal(asset)
	if err != nil {
		return nil, dErrors.WithOp(err, dErrors.CodeInternal, op, "")
	}
	meta, err := json.Marshal(md)
	if err != nil {
		return nil, dErrors.WithOp(err, dErrors.CodeInternal, op, "")
	}
	tx := ledger.NewCreate(iss.PublicKey(), data, meta)
	if err := iss.Sign(tx); err != nil {
		return nil, dErrors.WithOp(err, dErrors.CodeInternal, op, "")
	}

	return &Prepared{
		Tx: tx,
		Record: models.Record{
			ID:        tx.ID,
			Operation: ledger.OperationCreate,
			AssetID:   tx.ID,
			Asset:     &asset,
			Metadata:  md,
			Outputs:   tx.Outputs,
		},
	}, nil
}

// CommitCreate submits a prepared CREATE. The certificate exists only once
// this returns without error.
func (c *Chain) CommitCreate(ctx context.Context, p *Prepared) (*models.Record, error) {
	return c.commit(ctx, "certificate.commit_create", p)
}

// PrepareTransfer builds and signs a self-transfer spending prev's output and
// stamping md. The issuer must own prev.
func (c *Chain) PrepareTransfer(ctx context.Context, iss *issuer.Context, prev *models.Record, md models.Metadata) (*Prepared, error) {
	const op = "certificate.prepare_transfer"
	if prev == nil || len(prev.Outputs) == 0 {
		return nil, fail(dErrors.CodeInternal, "previous record has no outputs", op, "")
	}
	owners := prev.Outputs[0].PublicKeys
	if len(owners) != 1 || !iss.Owns(owners[0]) {
		return nil, fail(dErrors.CodeForbidden, "certificate is owned by another issuer", op, prev.AssetID)
	}

	md.PreviousTx = prev.ID
	md.Version = models.MetadataVersion
	meta, err := json.Marshal(md)
	if err != nil {
		return nil, dErrors.WithOp(err, dErrors.CodeInternal, op, prev.AssetID)
	}
	spend := ledger.OutputRef{TransactionID: prev.ID, OutputIndex: 0}
	tx := ledger.NewTransfer(prev.AssetID, spend, owners, iss.PublicKey(), meta)
	if err := iss.Sign(tx); err != nil {
		return nil, dErrors.WithOp(err, dErrors.CodeInternal, op, prev.AssetID)
	}

	return &Prepared{
		Tx: tx,
		Record: models.Record{
			ID:        tx.ID,
			Operation: ledger.OperationTransfer,
			AssetID:   prev.AssetID,
			Metadata:  md,
			Outputs:   tx.Outputs,
		},
	}, nil
}

// CommitTransfer submits a prepared TRANSFER. Losing a race for the spent
// output fails with CodeStaleFulfillment.
func (c *Chain) CommitTransfer(ctx context.Context, p *Prepared) (*models.Record, error) {
	return c.commit(ctx, "certificate.commit_transfer", p)
}

func (c *Chain) commit(ctx context.Context, op string, p *Prepared) (rec *models.Record, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanLedgerCommit,
		tracer.String(tracer.AttrOperation, string(p.Tx.Operation)),
		tracer.String(tracer.AttrTransactionID, p.Tx.ID),
		tracer.String(tracer.AttrAssetID, p.Record.AssetID),
	)
	defer func() { span.End(err) }()

	start := time.Now()
	id, err := c.client.Commit(ctx, p.Tx)
	c.observe("commit", start)
	if err == nil {
		if id != p.Tx.ID {
			return nil, dErrors.WithOp(fmt.Errorf("ledger assigned id %s, expected %s", id, p.Tx.ID), dErrors.CodeLedgerRejected, op, p.Record.AssetID)
		}
		out := p.Record
		return &out, nil
	}

	if errors.Is(err, ledger.ErrTimeout) {
		span.AddEvent(tracer.EventCommitTimeout)
		c.logger.WarnContext(ctx, "ledger commit timed out, reconciling",
			"op", op,
			"transaction_id", p.Tx.ID,
			"asset_id", p.Record.AssetID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return c.reconcile(context.WithoutCancel(ctx), op, p)
	}
	if p.Tx.Operation == ledger.OperationTransfer && errors.Is(err, ledger.ErrDuplicate) {
		// Same content hash means the output is already consumed by an
		// identical transfer some other caller committed.
		return nil, dErrors.WithOp(err, dErrors.CodeStaleFulfillment, op, p.Record.AssetID)
	}
	return nil, ledgerError(err, op, p.Record.AssetID)
}

// Resolve returns the asset id of the transaction ref points at.
func (c *Chain) Resolve(ctx context.Context, ref string) (assetID string, err error) {
	const op = "certificate.resolve"
	ctx, span := c.tracer.Start(ctx, tracer.SpanLedgerRetrieve, tracer.String(tracer.AttrTransactionID, ref))
	defer func() { span.End(err) }()

	start := time.Now()
	tx, err := c.client.Retrieve(ctx, ref)
	c.observe("retrieve", start)
	if err != nil {
		return "", ledgerError(err, op, ref)
	}
	return tx.AssetID(), nil
}

// GetChain returns the records of an asset oldest first. An asset with no
// committed CREATE yields an empty slice.
func (c *Chain) GetChain(ctx context.Context, assetID string) (records []models.Record, err error) {
	const op = "certificate.get_chain"
	ctx, span := c.tracer.Start(ctx, tracer.SpanLedgerChain, tracer.String(tracer.AttrAssetID, assetID))
	defer func() { span.End(err) }()

	start := time.Now()
	txs, err := c.client.Chain(ctx, assetID)
	c.observe("chain", start)
	if err != nil {
		return nil, ledgerError(err, op, assetID)
	}

	records = make([]models.Record, 0, len(txs))
	for i, tx := range txs {
		rec, err := FromTransaction(tx)
		if errors.Is(err, ErrNotCertificate) {
			return nil, fail(dErrors.CodeNotFound, "asset is not a certificate", op, assetID)
		}
		if err != nil {
			return nil, dErrors.WithOp(err, dErrors.CodeLedgerRejected, op, assetID)
		}
		if err := checkLink(records, i, tx, assetID); err != nil {
			return nil, dErrors.WithOp(err, dErrors.CodeLedgerRejected, op, assetID)
		}
		records = append(records, rec)
	}
	span.SetAttributes(tracer.Int(tracer.AttrChainLength, len(records)))
	return records, nil
}

// checkLink enforces the chain shape: CREATE first, then TRANSFERs each
// spending the record before it.
func checkLink(prior []models.Record, i int, tx *ledger.Transaction, assetID string) error {
	if i == 0 {
		if tx.Operation != ledger.OperationCreate || tx.ID != assetID {
			return fmt.Errorf("chain of %s does not start with its CREATE", assetID)
		}
		return nil
	}
	if tx.Operation != ledger.OperationTransfer || len(tx.Inputs) != 1 || tx.Inputs[0].Fulfills == nil {
		return fmt.Errorf("record %d of %s is not a transfer", i, assetID)
	}
	if tx.Inputs[0].Fulfills.TransactionID != prior[i-1].ID {
		return fmt.Errorf("record %d of %s does not spend its predecessor", i, assetID)
	}
	return nil
}

// FromTransaction decodes a ledger transaction into a certificate record.
func FromTransaction(tx *ledger.Transaction) (models.Record, error) {
	rec := models.Record{
		ID:        tx.ID,
		Operation: tx.Operation,
		AssetID:   tx.AssetID(),
		Outputs:   tx.Outputs,
	}
	if tx.Operation == ledger.OperationCreate {
		var asset models.CertificateAsset
		if err := json.Unmarshal(tx.Asset.Data, &asset); err != nil || asset.Type != models.AssetType {
			return models.Record{}, ErrNotCertificate
		}
		rec.Asset = &asset
	}
	if len(tx.Metadata) == 0 {
		return models.Record{}, fmt.Errorf("transaction %s has no metadata", tx.ID)
	}
	if err := json.Unmarshal(tx.Metadata, &rec.Metadata); err != nil {
		return models.Record{}, fmt.Errorf("decode metadata of %s: %w", tx.ID, err)
	}
	return rec, nil
}

func (c *Chain) observe(operation string, start time.Time) {
	if c.recorder != nil {
		c.recorder.ObserveLedgerCall(operation, time.Since(start))
	}
}

// ledgerError classifies a substrate failure into a domain code.
func ledgerError(err error, op, ref string) error {
	code := dErrors.CodeLedgerRejected
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		code = dErrors.CodeNotFound
	case errors.Is(err, ledger.ErrDoubleSpend):
		code = dErrors.CodeStaleFulfillment
	case errors.Is(err, ledger.ErrTimeout):
		code = dErrors.CodeTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = dErrors.CodeTimeout
	}
	return dErrors.WithOp(err, code, op, ref)
}

func fail(code dErrors.Code, msg, op, ref string) error {
	return &dErrors.Error{Code: code, Op: op, Ref: ref, Message: msg}
}
