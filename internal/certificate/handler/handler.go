package handler

import (
	"context"
	"log/slog"
	"maps"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"certledger/internal/certificate/models"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/httputil"
	"certledger/pkg/platform/middleware/auth"
	"certledger/pkg/requestcontext"
)

// Service defines the certificate operations one issuer exposes over HTTP.
type Service interface {
	Create(ctx context.Context, req *models.CreateRequest) (*models.CreateResponse, error)
	Verify(ctx context.Context, txID string) (*models.CertificateView, error)
	Revoke(ctx context.Context, txID string) (*models.RevokeResponse, error)
	Renew(ctx context.Context, txID string, req *models.RenewRequest) (*models.RenewResponse, error)
	Export(ctx context.Context) (*models.ScanReport, error)
	IssuerPublicKey() string
}

// Guard returns middleware that admits only operators holding scope.
type Guard func(scope string) func(http.Handler) http.Handler

// Handler handles certificate endpoints. The unprefixed routes act as the
// default issuer; /issuers/{issuerID} routes act as a registered issuer.
type Handler struct {
	logger  *slog.Logger
	service Service
	issuers map[string]Service
}

type Option func(*Handler)

// WithIssuer registers svc under id for the /issuers/{issuerID} routes.
func WithIssuer(id string, svc Service) Option {
	return func(h *Handler) {
		h.issuers[id] = svc
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		logger:  logger,
		service: service,
		issuers: map[string]Service{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the certificate routes. Verification is public; every
// ledger write and the export sit behind guard.
func (h *Handler) Register(r chi.Router, guard Guard) {
	h.mount(r, guard)
	r.Get("/issuers", h.HandleListIssuers)
	r.Route("/issuers/{issuerID}", func(r chi.Router) {
		h.mount(r, guard)
	})
}

func (h *Handler) mount(r chi.Router, guard Guard) {
	r.With(guard(auth.ScopeIssue)).Post("/certificates", h.HandleCreate)
	r.Get("/certificates/{txID}", h.HandleVerify)
	r.With(guard(auth.ScopeManage)).Post("/certificates/{txID}/revoke", h.HandleRevoke)
	r.With(guard(auth.ScopeManage)).Post("/certificates/{txID}/renew", h.HandleRenew)
	r.With(guard(auth.ScopeExport)).Get("/ledger", h.HandleExport)
}

// serviceFor resolves the issuer a request acts as, writing not_found for an
// unknown issuer id.
func (h *Handler) serviceFor(w http.ResponseWriter, r *http.Request) (Service, bool) {
	id := chi.URLParam(r, "issuerID")
	if id == "" {
		return h.service, true
	}
	svc, ok := h.issuers[id]
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "issuer not found"))
		return nil, false
	}
	return svc, true
}

func (h *Handler) HandleListIssuers(w http.ResponseWriter, _ *http.Request) {
	ids := slices.Sorted(maps.Keys(h.issuers))
	list := models.IssuerList{Issuers: make([]models.IssuerView, 0, len(ids))}
	for _, id := range ids {
		list.Issuers = append(list.Issuers, models.IssuerView{ID: id, PublicKey: h.issuers[id].IssuerPublicKey()})
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if _, err := httputil.RequireOperator(ctx, h.logger); err != nil {
		httputil.WriteError(w, err)
		return
	}
	svc, ok := h.serviceFor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := svc.Create(ctx, req)
	if err != nil {
		h.logFailure(ctx, "failed to create certificate", "", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

// HandleVerify is public. Only an identified operator sees the holder
// identifier; anonymous verifiers get the verdict with it redacted.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "txID")

	svc, ok := h.serviceFor(w, r)
	if !ok {
		return
	}
	view, err := svc.Verify(ctx, txID)
	if err != nil {
		h.logFailure(ctx, "failed to verify certificate", txID, err)
		httputil.WriteError(w, err)
		return
	}
	if requestcontext.Operator(ctx) == "" {
		view = view.WithoutIdentifier()
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "txID")

	if _, err := httputil.RequireOperator(ctx, h.logger); err != nil {
		httputil.WriteError(w, err)
		return
	}
	svc, ok := h.serviceFor(w, r)
	if !ok {
		return
	}

	res, err := svc.Revoke(ctx, txID)
	if err != nil {
		h.logFailure(ctx, "failed to revoke certificate", txID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleRenew(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "txID")

	if _, err := httputil.RequireOperator(ctx, h.logger); err != nil {
		httputil.WriteError(w, err)
		return
	}
	svc, ok := h.serviceFor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeOptionalAndPrepare[models.RenewRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	res, err := svc.Renew(ctx, txID, req)
	if err != nil {
		h.logFailure(ctx, "failed to renew certificate", txID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := httputil.RequireOperator(ctx, h.logger); err != nil {
		httputil.WriteError(w, err)
		return
	}

	svc, ok := h.serviceFor(w, r)
	if !ok {
		return
	}
	report, err := svc.Export(ctx)
	if err != nil {
		h.logFailure(ctx, "failed to export ledger", "", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// logFailure logs client errors at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg, txID string, err error) {
	level := slog.LevelError
	switch dErrors.CodeOf(err) {
	case dErrors.CodeNotFound, dErrors.CodeInvalidInput, dErrors.CodeBadRequest,
		dErrors.CodeInvalidTransition, dErrors.CodeStaleFulfillment, dErrors.CodeForbidden,
		dErrors.CodeValidation:
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, msg,
		"transaction_id", txID,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
