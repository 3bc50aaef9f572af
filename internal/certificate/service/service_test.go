package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Chain,Scanner,AuditPublisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certledger/internal/audit"
	"certledger/internal/certificate/chain"
	"certledger/internal/certificate/issuer"
	"certledger/internal/certificate/metrics"
	"certledger/internal/certificate/models"
	"certledger/internal/certificate/service/mocks"
	"certledger/internal/ledger"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	mockChain   *mocks.MockChain
	mockScanner *mocks.MockScanner
	mockAudit   *mocks.MockAuditPublisher
	metrics     *metrics.Metrics
	iss         *issuer.Context
	now         time.Time
	ctx         context.Context
	service     *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockChain = mocks.NewMockChain(s.ctrl)
	s.mockScanner = mocks.NewMockScanner(s.ctrl)
	s.mockAudit = mocks.NewMockAuditPublisher(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())

	var err error
	s.iss, err = issuer.Generate()
	s.Require().NoError(err)

	s.now = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ctx = requestcontext.WithOperator(s.ctx, "registrar")
	s.ctx = requestcontext.WithRequestID(s.ctx, "req-1")
	s.ctx = requestcontext.WithClient(s.ctx, requestcontext.Client{IP: "203.0.113.9", Agent: "curl 8"})

	s.service, err = New(s.mockChain, s.iss,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithAuditPublisher(s.mockAudit),
		WithScanner(s.mockScanner),
	)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) validRequest() *models.CreateRequest {
	return &models.CreateRequest{
		HolderName: "  Ada ",
		Surname:    "Lovelace",
		Competence: "Analytical engines",
		Identifier: "ID-12345",
	}
}

func (s *ServiceSuite) record(id string, md models.Metadata) *models.Record {
	return &models.Record{ID: id, AssetID: "asset-1", Operation: ledger.OperationTransfer, Metadata: md}
}

func (s *ServiceSuite) validMetadata() models.Metadata {
	return models.Metadata{
		Status:     models.StatusValid,
		IssueDate:  models.NewTimestamp(s.now).Ptr(),
		ExpiryDate: models.ExpiryAfter(s.now, 12).Ptr(),
		Version:    models.MetadataVersion,
	}
}

func (s *ServiceSuite) TestNewRequiresCollaborators() {
	_, err := New(nil, s.iss)
	s.Error(err)
	_, err = New(s.mockChain, nil)
	s.Error(err)
}

func (s *ServiceSuite) TestCreate() {
	s.Run("invalid input never reaches the ledger", func() {
		req := s.validRequest()
		req.Identifier = "abc"
		_, err := s.service.Create(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

		zero := 0
		req = s.validRequest()
		req.ValidMonths = &zero
		_, err = s.service.Create(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("commits and audits", func() {
		md := s.validMetadata()
		prepared := &chain.Prepared{
			Tx:     &ledger.Transaction{ID: "tx-1"},
			Record: models.Record{ID: "tx-1", AssetID: "tx-1", Metadata: md},
		}
		s.mockChain.EXPECT().
			PrepareCreate(gomock.Any(), s.iss, chain.CreateInput{
				HolderName:  "Ada",
				Surname:     "Lovelace",
				Competence:  "Analytical engines",
				Identifier:  "ID-12345",
				ValidMonths: 12,
			}).
			Return(prepared, nil)
		s.mockChain.EXPECT().CommitCreate(gomock.Any(), prepared).Return(&prepared.Record, nil)
		s.mockAudit.EXPECT().Emit(gomock.Any(), audit.Event{
			Timestamp:     s.now,
			Action:        audit.ActionCertificateIssued,
			AssetID:       "tx-1",
			TransactionID: "tx-1",
			Operator:      "registrar",
			RequestID:     "req-1",
			ClientIP:      "203.0.113.9",
			ClientAgent:   "curl 8",
			Decision:      audit.DecisionCommitted,
		}).Return(nil)

		resp, err := s.service.Create(s.ctx, s.validRequest())
		s.Require().NoError(err)
		s.Equal("tx-1", resp.TransactionID)
		s.Equal(models.HolderView{Name: "Ada", Surname: "Lovelace", Identifier: "ID-12345"}, resp.Holder)
		s.Equal(*md.ExpiryDate, resp.ExpiryDate)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.CertificatesIssued))
	})

	s.Run("unknown outcome is audited and surfaced", func() {
		prepared := &chain.Prepared{Tx: &ledger.Transaction{ID: "tx-2"}, Record: models.Record{ID: "tx-2", AssetID: "tx-2"}}
		s.mockChain.EXPECT().PrepareCreate(gomock.Any(), s.iss, gomock.Any()).Return(prepared, nil)
		s.mockChain.EXPECT().CommitCreate(gomock.Any(), prepared).
			Return(nil, dErrors.New(dErrors.CodeUnknownOutcome, "commit timed out"))
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Cond(func(e audit.Event) bool {
			return e.Action == audit.ActionCommitReconciled && e.Decision == audit.DecisionUnknown && e.TransactionID == "tx-2"
		})).Return(nil)

		_, err := s.service.Create(s.ctx, s.validRequest())
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownOutcome))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.CommitFailures.WithLabelValues("create", "unknown_outcome")))
	})

	s.Run("audit failure does not fail the request", func() {
		prepared := &chain.Prepared{Tx: &ledger.Transaction{ID: "tx-3"}, Record: models.Record{ID: "tx-3", AssetID: "tx-3", Metadata: s.validMetadata()}}
		s.mockChain.EXPECT().PrepareCreate(gomock.Any(), s.iss, gomock.Any()).Return(prepared, nil)
		s.mockChain.EXPECT().CommitCreate(gomock.Any(), prepared).Return(&prepared.Record, nil)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("sink down"))

		_, err := s.service.Create(s.ctx, s.validRequest())
		s.NoError(err)
	})
}

func (s *ServiceSuite) TestVerify() {
	s.Run("ledger failure is an error", func() {
		s.mockChain.EXPECT().Resolve(gomock.Any(), "tx-1").
			Return("", dErrors.New(dErrors.CodeLedgerRejected, "ledger unavailable"))
		_, err := s.service.Verify(s.ctx, "tx-1")
		s.True(dErrors.HasCode(err, dErrors.CodeLedgerRejected))
	})

	s.Run("unknown reference is a verdict", func() {
		s.mockChain.EXPECT().Resolve(gomock.Any(), "tx-9").
			Return("", dErrors.New(dErrors.CodeNotFound, "transaction not found"))
		view, err := s.service.Verify(s.ctx, "tx-9")
		s.Require().NoError(err)
		s.False(view.Valid)
		s.Equal(models.ReasonNotFound, view.Reason)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Verifications.WithLabelValues("not found")))
	})
}

func (s *ServiceSuite) TestRevoke() {
	s.Run("unknown certificate", func() {
		s.mockChain.EXPECT().Resolve(gomock.Any(), "missing").
			Return("", dErrors.New(dErrors.CodeNotFound, "transaction not found"))
		_, err := s.service.Revoke(s.ctx, "missing")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("revoked tail rejects the transition", func() {
		md := s.validMetadata()
		md.Status = models.StatusRevoked
		tail := s.record("tx-2", md)
		s.mockChain.EXPECT().Resolve(gomock.Any(), "tx-2").Return("asset-1", nil)
		s.mockChain.EXPECT().GetChain(gomock.Any(), "asset-1").Return([]models.Record{*tail}, nil)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Cond(func(e audit.Event) bool {
			return e.Action == audit.ActionTransitionRejected && e.Decision == audit.DecisionRejected
		})).Return(nil)

		_, err := s.service.Revoke(s.ctx, "tx-2")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("certificate of another issuer is forbidden", func() {
		create := s.record("tx-1", s.validMetadata())
		create.Operation = ledger.OperationCreate
		create.Asset = &models.CertificateAsset{IssuerPublicKey: "another-issuer"}
		s.mockChain.EXPECT().Resolve(gomock.Any(), "tx-1").Return("asset-1", nil)
		s.mockChain.EXPECT().GetChain(gomock.Any(), "asset-1").Return([]models.Record{*create}, nil)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Cond(func(e audit.Event) bool {
			return e.Action == audit.ActionTransitionRejected && e.Decision == audit.DecisionRejected
		})).Return(nil)

		_, err := s.service.Revoke(s.ctx, "tx-1")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("lost race is stale", func() {
		tail := s.record("tx-1", s.validMetadata())
		prepared := &chain.Prepared{Tx: &ledger.Transaction{ID: "tx-2"}}
		s.mockChain.EXPECT().Resolve(gomock.Any(), "tx-1").Return("asset-1", nil)
		s.mockChain.EXPECT().GetChain(gomock.Any(), "asset-1").Return([]models.Record{*tail}, nil)
		s.mockChain.EXPECT().PrepareTransfer(gomock.Any(), s.iss, tail, gomock.Any()).Return(prepared, nil)
		s.mockChain.EXPECT().CommitTransfer(gomock.Any(), prepared).
			Return(nil, dErrors.New(dErrors.CodeStaleFulfillment, "output already spent"))

		_, err := s.service.Revoke(s.ctx, "tx-1")
		s.True(dErrors.HasCode(err, dErrors.CodeStaleFulfillment))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.CommitFailures.WithLabelValues("revoke", "stale_fulfillment")))
	})

	s.Run("stamps revocation and keeps expiry", func() {
		tail := s.record("tx-1", s.validMetadata())
		prepared := &chain.Prepared{Tx: &ledger.Transaction{ID: "tx-2"}}
		s.mockChain.EXPECT().Resolve(gomock.Any(), "tx-1").Return("asset-1", nil)
		s.mockChain.EXPECT().GetChain(gomock.Any(), "asset-1").Return([]models.Record{*tail}, nil)
		s.mockChain.EXPECT().PrepareTransfer(gomock.Any(), s.iss, tail, gomock.Cond(func(md models.Metadata) bool {
			return md.Status == models.StatusRevoked &&
				md.RevocationDate.Equal(s.now) &&
				md.ExpiryDate.Equal(tail.Metadata.ExpiryDate.Time)
		})).Return(prepared, nil)
		s.mockChain.EXPECT().CommitTransfer(gomock.Any(), prepared).
			Return(&models.Record{ID: "tx-2", AssetID: "asset-1"}, nil)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Cond(func(e audit.Event) bool {
			return e.Action == audit.ActionCertificateRevoked && e.TransactionID == "tx-2"
		})).Return(nil)

		resp, err := s.service.Revoke(s.ctx, "tx-1")
		s.Require().NoError(err)
		s.Equal("tx-2", resp.TransactionID)
		s.Equal(models.StatusRevoked, resp.Status)
		s.Equal(models.NewTimestamp(s.now), resp.RevocationDate)
	})
}

func (s *ServiceSuite) TestRenew() {
	s.Run("rejects non-positive months before reading", func() {
		zero := 0
		_, err := s.service.Renew(s.ctx, "tx-1", &models.RenewRequest{NewValidMonths: &zero})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("nil request uses the default period", func() {
		tail := s.record("tx-1", s.validMetadata())
		prepared := &chain.Prepared{Tx: &ledger.Transaction{ID: "tx-2"}}
		s.mockChain.EXPECT().Resolve(gomock.Any(), "tx-1").Return("asset-1", nil)
		s.mockChain.EXPECT().GetChain(gomock.Any(), "asset-1").Return([]models.Record{*tail}, nil)
		s.mockChain.EXPECT().PrepareTransfer(gomock.Any(), s.iss, tail, gomock.Any()).Return(prepared, nil)
		s.mockChain.EXPECT().CommitTransfer(gomock.Any(), prepared).
			Return(&models.Record{ID: "tx-2", AssetID: "asset-1"}, nil)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		resp, err := s.service.Renew(s.ctx, "tx-1", nil)
		s.Require().NoError(err)
		s.Equal(models.ExpiryAfter(s.now, 12), resp.NewExpiryDate)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.CertificatesRenewed))
	})
}

func (s *ServiceSuite) TestExport() {
	s.Run("sets message and audits", func() {
		s.mockScanner.EXPECT().Scan(gomock.Any()).Return(&models.ScanReport{Count: 2, Height: 5}, nil)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Cond(func(e audit.Event) bool {
			return e.Action == audit.ActionLedgerExported && e.Operator == "registrar"
		})).Return(nil)

		report, err := s.service.Export(s.ctx)
		s.Require().NoError(err)
		s.Equal("Ledger export completed", report.Message)
		s.Equal(2, report.Count)
	})

	s.Run("scan failure", func() {
		s.mockScanner.EXPECT().Scan(gomock.Any()).Return(nil, errors.New("status endpoint down"))
		_, err := s.service.Export(s.ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeLedgerRejected))
	})

	s.Run("not configured", func() {
		svc, err := New(s.mockChain, s.iss)
		s.Require().NoError(err)
		_, err = svc.Export(s.ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}
