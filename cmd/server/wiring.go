package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"certledger/internal/audit"
	"certledger/internal/certificate/chain"
	"certledger/internal/certificate/handler"
	"certledger/internal/certificate/issuer"
	"certledger/internal/certificate/metrics"
	"certledger/internal/certificate/scanner"
	"certledger/internal/certificate/service"
	"certledger/internal/ledger"
	"certledger/internal/ledger/badger"
	"certledger/internal/ledger/bigchain"
	"certledger/internal/ledger/memory"
	"certledger/internal/ledger/tendermint"
	"certledger/internal/platform/config"
	"certledger/internal/platform/health"
	"certledger/internal/platform/tracer"
	"certledger/pkg/platform/circuit"
)

const auditBufferSize = 256

// app holds the wired service graph shared by subcommands. service acts as
// the default issuer; issuers holds every configured issuer in config order.
type app struct {
	registry *prometheus.Registry
	service  *service.Service
	issuers  []issuerService
	health   *health.Handler
	audit    *audit.Publisher
	closers  []func() error
}

type issuerService struct {
	id      string
	service *service.Service
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// substrate is one ledger driver's commit and block enumeration ports.
type substrate struct {
	client  ledger.Client
	blocks  ledger.BlockSource
	breaker *circuit.Breaker
	close   func() error
}

func buildApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{
		registry: prometheus.NewRegistry(),
		health:   health.New(cfg.Environment),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sub, err := openSubstrate(cfg, log)
	if err != nil {
		return nil, err
	}
	if sub.close != nil {
		a.closers = append(a.closers, sub.close)
	}

	m := metrics.New(a.registry)
	t := tracer.NewOTel()

	ch := chain.New(sub.client,
		chain.WithLogger(log),
		chain.WithTracer(t),
		chain.WithRecorder(m),
		chain.WithReconcile(cfg.Ledger.ReconcileAttempts, cfg.Ledger.ReconcileInterval),
	)
	sc := scanner.New(sub.blocks,
		scanner.WithLogger(log),
		scanner.WithTracer(t),
		scanner.WithConcurrency(cfg.Scanner.Concurrency),
	)

	a.audit = audit.NewPublisher(audit.NewInMemoryStore(),
		audit.WithAsyncBuffer(auditBufferSize),
		audit.WithPublisherLogger(log),
	)
	a.closers = append(a.closers, func() error {
		a.audit.Close()
		return nil
	})

	for _, ic := range cfg.AllIssuers() {
		iss, err := loadIssuer(ic, log)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("issuer %q: %w", ic.ID, err)
		}
		svc, err := service.New(ch, iss,
			service.WithLogger(log.With("issuer", ic.ID)),
			service.WithMetrics(m),
			service.WithTracer(t),
			service.WithAuditPublisher(a.audit),
			service.WithScanner(sc),
			service.WithMinIdentifierLength(cfg.Lifecycle.MinIdentifierLength),
			service.WithDefaultValidMonths(cfg.Lifecycle.DefaultValidMonths),
		)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.issuers = append(a.issuers, issuerService{id: ic.ID, service: svc})
		log.Info("issuer loaded", "issuer", ic.ID, "issuer_public_key", iss.PublicKey())
	}
	a.service = a.issuers[0].service

	a.health.RegisterCheck("ledger", sub.client.Ping)
	if sub.breaker != nil {
		br := sub.breaker
		a.health.RegisterCheck("ledger_circuit", func(context.Context) error {
			if br.IsOpen() {
				return fmt.Errorf("circuit %s is open", br.Name())
			}
			return nil
		})
	}

	log.Info("service wired",
		"ledger_driver", cfg.Ledger.Driver,
		"issuers", len(a.issuers),
	)
	return a, nil
}

func openSubstrate(cfg *config.Config, log *slog.Logger) (*substrate, error) {
	switch cfg.Ledger.Driver {
	case config.DriverBigchain:
		br := circuit.New("bigchain", circuit.WithStateListener(func(name string, to circuit.State) {
			log.Warn("ledger circuit state changed", "breaker", name, "state", to.String())
		}))
		client := bigchain.New(bigchain.Config{
			BaseURL: cfg.Ledger.URL,
			Timeout: cfg.Ledger.Timeout,
			Breaker: br,
			Logger:  log,
		})
		return &substrate{
			client:  client,
			blocks:  tendermint.New(cfg.Ledger.TendermintURL),
			breaker: br,
		}, nil
	case config.DriverBadger:
		l, err := badger.New(badger.WithDataDir(cfg.Ledger.DataDir), badger.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("open badger ledger: %w", err)
		}
		return &substrate{client: l, blocks: l, close: l.Close}, nil
	case config.DriverMemory:
		l := memory.New()
		return &substrate{client: l, blocks: l}, nil
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Ledger.Driver)
	}
}

// loadIssuer builds the issuer from configured key material. With none
// configured an ephemeral issuer is generated; certificates it signs cannot be
// decrypted after restart.
func loadIssuer(ic config.Issuer, log *slog.Logger) (*issuer.Context, error) {
	seed, err := ic.DecodeSeed()
	if err != nil {
		return nil, err
	}
	key, err := ic.DecodeCipherKey()
	if err != nil {
		return nil, err
	}

	switch {
	case seed == nil && key == nil:
		log.Warn("no issuer key material configured, generating ephemeral issuer", "issuer", ic.ID)
		return issuer.Generate()
	case seed == nil || key == nil:
		return nil, errors.New("issuer seed and cipher key must be configured together")
	default:
		return issuer.New(seed, key)
	}
}

// handlerOptions registers every issuer for the /issuers/{issuerID} routes.
func (a *app) handlerOptions() []handler.Option {
	opts := make([]handler.Option, 0, len(a.issuers))
	for _, is := range a.issuers {
		opts = append(opts, handler.WithIssuer(is.id, is.service))
	}
	return opts
}
