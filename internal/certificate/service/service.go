package service

import (
	"context"
	"errors"
	"log/slog"

	"certledger/internal/audit"
	"certledger/internal/certificate/chain"
	"certledger/internal/certificate/issuer"
	"certledger/internal/certificate/lifecycle"
	"certledger/internal/certificate/metrics"
	"certledger/internal/certificate/models"
	"certledger/internal/certificate/verify"
	"certledger/internal/platform/tracer"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/requestcontext"
)

// Chain is the certificate view of the ledger.
// Error Contract:
// - Resolve returns CodeNotFound for an unknown transaction
// - GetChain returns an empty slice for an asset with no CREATE
// - CommitTransfer returns CodeStaleFulfillment when the output was spent
// - Commit* return CodeUnknownOutcome when a timed-out commit could not be reconciled
type Chain interface {
	PrepareCreate(ctx context.Context, iss *issuer.Context, in chain.CreateInput) (*chain.Prepared, error)
	CommitCreate(ctx context.Context, p *chain.Prepared) (*models.Record, error)
	PrepareTransfer(ctx context.Context, iss *issuer.Context, prev *models.Record, md models.Metadata) (*chain.Prepared, error)
	CommitTransfer(ctx context.Context, p *chain.Prepared) (*models.Record, error)
	Resolve(ctx context.Context, ref string) (string, error)
	GetChain(ctx context.Context, assetID string) ([]models.Record, error)
}

// Scanner exports certificate CREATEs from committed blocks.
type Scanner interface {
	Scan(ctx context.Context) (*models.ScanReport, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Option func(*Service)

const defaultValidMonths = 12

// Service issues, verifies, revokes and renews certificates for one issuer.
// A process serving several issuers runs one Service per issuer over a
// shared Chain.
type Service struct {
	chain               Chain
	engine              *verify.Engine
	scanner             Scanner
	issuer              *issuer.Context
	auditor             AuditPublisher
	metrics             *metrics.Metrics
	tracer              tracer.Tracer
	logger              *slog.Logger
	minIdentifierLength int
	defaultValidMonths  int
}

func New(ch Chain, iss *issuer.Context, opts ...Option) (*Service, error) {
	if ch == nil {
		return nil, errors.New("chain is required")
	}
	if iss == nil {
		return nil, errors.New("issuer is required")
	}
	svc := &Service{
		chain:               ch,
		engine:              verify.NewEngine(ch),
		issuer:              iss,
		tracer:              tracer.NewNoop(),
		logger:              slog.Default(),
		minIdentifierLength: models.DefaultMinIdentifierLength,
		defaultValidMonths:  defaultValidMonths,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

// WithScanner enables Export.
func WithScanner(sc Scanner) Option {
	return func(s *Service) {
		s.scanner = sc
	}
}

func WithMinIdentifierLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.minIdentifierLength = n
		}
	}
}

// WithDefaultValidMonths sets the validity used when a request omits it.
func WithDefaultValidMonths(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultValidMonths = n
		}
	}
}

// IssuerPublicKey identifies the issuer this service signs for.
func (s *Service) IssuerPublicKey() string {
	return s.issuer.PublicKey()
}

// Create validates req and commits a new certificate. The response echoes
// the submitted holder, identifier included, since the caller supplied it.
func (s *Service) Create(ctx context.Context, req *models.CreateRequest) (resp *models.CreateResponse, err error) {
	const op = "certificate.create"
	ctx, span := s.tracer.Start(ctx, tracer.SpanCertificateCreate)
	defer func() { span.End(err) }()

	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	req.Normalize()
	if err := req.ValidateWith(s.minIdentifierLength); err != nil {
		return nil, err
	}
	months := s.defaultValidMonths
	if req.ValidMonths != nil {
		months = *req.ValidMonths
	}
	span.SetAttributes(tracer.String(tracer.AttrIdentifier, tracer.HashIdentifier(req.Identifier)))

	prepared, err := s.chain.PrepareCreate(ctx, s.issuer, chain.CreateInput{
		HolderName:  req.HolderName,
		Surname:     req.Surname,
		Competence:  req.Competence,
		Identifier:  req.Identifier,
		ValidMonths: months,
	})
	if err != nil {
		return nil, dErrors.WithOp(err, dErrors.CodeInternal, op, "")
	}
	rec, err := s.chain.CommitCreate(ctx, prepared)
	if err != nil {
		s.commitFailed(ctx, "create", prepared.Record.AssetID, prepared.Tx.ID, err)
		return nil, err
	}
	span.SetAttributes(tracer.String(tracer.AttrAssetID, rec.AssetID))

	if s.metrics != nil {
		s.metrics.IncrementIssued()
	}
	s.emitAudit(ctx, audit.Event{
		Action:        audit.ActionCertificateIssued,
		AssetID:       rec.AssetID,
		TransactionID: rec.ID,
		Decision:      audit.DecisionCommitted,
	})
	s.logger.InfoContext(ctx, "certificate issued",
		"asset_id", rec.AssetID,
		"valid_months", months,
		"request_id", requestcontext.RequestID(ctx),
	)

	return &models.CreateResponse{
		Message:       "Certificate created successfully",
		TransactionID: rec.ID,
		Holder: models.HolderView{
			Name:       req.HolderName,
			Surname:    req.Surname,
			Identifier: req.Identifier,
		},
		ExpiryDate: *rec.Metadata.ExpiryDate,
	}, nil
}

// Verify returns the current verdict for the certificate txID belongs to.
// Revoked, expired and unknown certificates are verdicts, not errors.
func (s *Service) Verify(ctx context.Context, txID string) (view *models.CertificateView, err error) {
	const op = "certificate.verify"
	ctx, span := s.tracer.Start(ctx, tracer.SpanCertificateVerify, tracer.String(tracer.AttrTransactionID, txID))
	defer func() { span.End(err) }()

	view, err = s.engine.Verify(ctx, s.issuer, txID)
	if err != nil {
		return nil, dErrors.WithOp(err, dErrors.CodeLedgerRejected, op, txID)
	}
	outcome := string(view.Reason)
	if view.Valid {
		outcome = string(models.StatusValid)
	}
	span.SetAttributes(tracer.String(tracer.AttrVerdict, outcome))
	if s.metrics != nil {
		s.metrics.IncrementVerification(outcome)
	}
	return view, nil
}

// Revoke records a revocation on the chain txID belongs to.
func (s *Service) Revoke(ctx context.Context, txID string) (resp *models.RevokeResponse, err error) {
	const op = "certificate.revoke"
	ctx, span := s.tracer.Start(ctx, tracer.SpanCertificateRevoke, tracer.String(tracer.AttrTransactionID, txID))
	defer func() { span.End(err) }()

	tail, err := s.tail(ctx, op, txID)
	if err != nil {
		return nil, err
	}
	md, err := lifecycle.Revoke(tail.Metadata, requestcontext.Now(ctx))
	if err != nil {
		s.transitionRejected(ctx, tail, err)
		return nil, dErrors.WithOp(err, dErrors.CodeInvalidTransition, op, tail.AssetID)
	}

	rec, err := s.transfer(ctx, op, "revoke", tail, md)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementRevoked()
	}
	s.emitAudit(ctx, audit.Event{
		Action:        audit.ActionCertificateRevoked,
		AssetID:       rec.AssetID,
		TransactionID: rec.ID,
		Decision:      audit.DecisionCommitted,
	})

	return &models.RevokeResponse{
		Message:        "Certificate revoked successfully",
		TransactionID:  rec.ID,
		Status:         models.StatusRevoked,
		RevocationDate: *md.RevocationDate,
	}, nil
}

// Renew records a renewal on the chain txID belongs to. A nil request or an
// omitted period uses the default validity.
func (s *Service) Renew(ctx context.Context, txID string, req *models.RenewRequest) (resp *models.RenewResponse, err error) {
	const op = "certificate.renew"
	ctx, span := s.tracer.Start(ctx, tracer.SpanCertificateRenew, tracer.String(tracer.AttrTransactionID, txID))
	defer func() { span.End(err) }()

	months := s.defaultValidMonths
	if req != nil {
		if err := req.Validate(); err != nil {
			return nil, err
		}
		if req.NewValidMonths != nil {
			months = *req.NewValidMonths
		}
	}

	tail, err := s.tail(ctx, op, txID)
	if err != nil {
		return nil, err
	}
	md, err := lifecycle.Renew(tail.Metadata, requestcontext.Now(ctx), months)
	if err != nil {
		s.transitionRejected(ctx, tail, err)
		return nil, dErrors.WithOp(err, dErrors.CodeInvalidTransition, op, tail.AssetID)
	}

	rec, err := s.transfer(ctx, op, "renew", tail, md)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementRenewed()
	}
	s.emitAudit(ctx, audit.Event{
		Action:        audit.ActionCertificateRenewed,
		AssetID:       rec.AssetID,
		TransactionID: rec.ID,
		Decision:      audit.DecisionCommitted,
	})

	return &models.RenewResponse{
		Message:       "Certificate renewed successfully",
		TransactionID: rec.ID,
		NewExpiryDate: *md.ExpiryDate,
	}, nil
}

// Export lists every certificate CREATE on the ledger.
func (s *Service) Export(ctx context.Context) (report *models.ScanReport, err error) {
	const op = "certificate.export"
	ctx, span := s.tracer.Start(ctx, tracer.SpanCertificateExport)
	defer func() { span.End(err) }()

	if s.scanner == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "ledger export is not configured")
	}
	report, err = s.scanner.Scan(ctx)
	if err != nil {
		return nil, dErrors.WithOp(err, dErrors.CodeLedgerRejected, op, "")
	}
	report.Message = "Ledger export completed"
	s.emitAudit(ctx, audit.Event{
		Action:   audit.ActionLedgerExported,
		Decision: audit.DecisionCommitted,
	})
	return report, nil
}

// tail loads the chain txID belongs to and returns its last record. Only the
// issuer that created a certificate holds the key its outputs are locked to.
func (s *Service) tail(ctx context.Context, op, txID string) (*models.Record, error) {
	assetID, err := s.chain.Resolve(ctx, txID)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, dErrors.WithOp(dErrors.New(dErrors.CodeNotFound, "certificate not found"), dErrors.CodeNotFound, op, txID)
	}
	if err != nil {
		return nil, dErrors.WithOp(err, dErrors.CodeLedgerRejected, op, txID)
	}
	records, err := s.chain.GetChain(ctx, assetID)
	if err != nil {
		return nil, dErrors.WithOp(err, dErrors.CodeLedgerRejected, op, assetID)
	}
	if len(records) == 0 {
		return nil, dErrors.WithOp(dErrors.New(dErrors.CodeNotFound, "certificate not found"), dErrors.CodeNotFound, op, assetID)
	}
	tail := &records[len(records)-1]
	if asset := records[0].Asset; asset != nil && asset.IssuerPublicKey != s.issuer.PublicKey() {
		err := dErrors.New(dErrors.CodeForbidden, "certificate was issued by another issuer")
		s.transitionRejected(ctx, tail, err)
		return nil, dErrors.WithOp(err, dErrors.CodeForbidden, op, assetID)
	}
	return tail, nil
}

func (s *Service) transfer(ctx context.Context, op, event string, tail *models.Record, md models.Metadata) (*models.Record, error) {
	prepared, err := s.chain.PrepareTransfer(ctx, s.issuer, tail, md)
	if err != nil {
		return nil, dErrors.WithOp(err, dErrors.CodeInternal, op, tail.AssetID)
	}
	rec, err := s.chain.CommitTransfer(ctx, prepared)
	if err != nil {
		s.commitFailed(ctx, event, tail.AssetID, prepared.Tx.ID, err)
		return nil, err
	}
	s.logger.InfoContext(ctx, "certificate transition committed",
		"op", op,
		"asset_id", rec.AssetID,
		"transaction_id", rec.ID,
		"previous_tx", tail.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return rec, nil
}

func (s *Service) commitFailed(ctx context.Context, event, assetID, txID string, err error) {
	code := dErrors.CodeOf(err)
	if s.metrics != nil {
		s.metrics.IncrementCommitFailure(event, string(code))
	}
	if code == dErrors.CodeUnknownOutcome {
		s.emitAudit(ctx, audit.Event{
			Action:        audit.ActionCommitReconciled,
			AssetID:       assetID,
			TransactionID: txID,
			Decision:      audit.DecisionUnknown,
			Reason:        err.Error(),
		})
	}
	s.logger.WarnContext(ctx, "ledger commit failed",
		"event", event,
		"asset_id", assetID,
		"transaction_id", txID,
		"code", code,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func (s *Service) transitionRejected(ctx context.Context, tail *models.Record, err error) {
	s.emitAudit(ctx, audit.Event{
		Action:        audit.ActionTransitionRejected,
		AssetID:       tail.AssetID,
		TransactionID: tail.ID,
		Decision:      audit.DecisionRejected,
		Reason:        err.Error(),
	})
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.Timestamp = requestcontext.Now(ctx)
	event.Operator = requestcontext.Operator(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	client := requestcontext.ClientOf(ctx)
	event.ClientIP = client.IP
	event.ClientAgent = client.Agent
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"asset_id", event.AssetID,
			"error", err,
		)
	}
}
