package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"certledger/internal/certificate/handler"
	"certledger/internal/platform/health"
	"certledger/pkg/platform/middleware/auth"
	"certledger/pkg/platform/middleware/client"
	"certledger/pkg/platform/middleware/request"
	"certledger/pkg/platform/middleware/requesttime"
	"certledger/pkg/platform/validation"
)

const defaultRequestTimeout = 30 * time.Second

// Deps are the collaborators the router mounts.
type Deps struct {
	Logger       *slog.Logger
	Certificates *handler.Handler
	Health       *health.Handler
	Validator    auth.TokenValidator
	Client       *client.Middleware
	Metrics      *request.Metrics
	Gatherer     prometheus.Gatherer

	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(d Deps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = defaultRequestTimeout
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = validation.MaxBodySize
	}

	r := chi.NewRouter()

	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(d.Logger))
	r.Use(requesttime.Middleware)
	if d.Client != nil {
		r.Use(d.Client.Handler)
	}
	if d.Metrics != nil {
		r.Use(request.LatencyMiddleware(d.Metrics, routePattern))
	}
	r.Use(request.Timeout(d.RequestTimeout))
	r.Use(request.BodyLimit(d.MaxBodyBytes))

	if d.Health != nil {
		d.Health.Register(r)
	}
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(request.ContentTypeJSON)
		r.Use(auth.Identify(d.Validator, d.Logger))
		d.Certificates.Register(r, func(scope string) func(http.Handler) http.Handler {
			return auth.RequireScope(d.Validator, scope, d.Logger)
		})
	})

	return r
}

// routePattern labels latency by chi route template so certificate ids do not
// explode metric cardinality.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
