package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"certledger/internal/certificate/handler"
	"certledger/internal/platform/httpserver"
	"certledger/internal/platform/operatorauth"
	httptransport "certledger/internal/transport/http"
	"certledger/pkg/platform/middleware/client"
	"certledger/pkg/platform/middleware/request"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			log := commonRun(cfg)

			a, err := buildApp(cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Error("failed to release resources", "error", err)
				}
			}()

			tokens := operatorauth.New(cfg.Operator.SigningKey, cfg.Operator.TokenTTL,
				operatorauth.WithEnv(cfg.Environment),
			)
			origin, err := client.New(cfg.TrustedProxies)
			if err != nil {
				return fmt.Errorf("invalid trusted proxies: %w", err)
			}
			router := httptransport.NewRouter(httptransport.Deps{
				Logger:       log,
				Certificates: handler.New(a.service, log, a.handlerOptions()...),
				Health:       a.health,
				Validator:    tokens,
				Client:       origin,
				Metrics:      request.NewMetrics(a.registry),
				Gatherer:     a.registry,
			})

			srv := httpserver.New(cfg.Addr, router)
			serveErr := make(chan error, 1)
			go func() {
				log.Info("starting http server", "addr", cfg.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case err := <-serveErr:
				if err != nil {
					log.Error("server error", "error", err)
					return err
				}
			case <-ctx.Done():
			}

			log.Info("shutting down server gracefully")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("graceful shutdown failed", "error", err)
				return err
			}
			log.Info("server stopped")
			return nil
		},
	}
}
