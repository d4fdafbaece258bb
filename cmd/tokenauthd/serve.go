package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MrEthical07/tokenAuth/httpapi"
	"github.com/MrEthical07/tokenAuth/internal/obs"
	"github.com/MrEthical07/tokenAuth/internal/settings"
	promexp "github.com/MrEthical07/tokenAuth/metrics/export/prometheus"
)

func newServeCommand(configPath *string) *cobra.Command {
	var embeddedRedis bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the token endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := settings.Load(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, s, embeddedRedis)
		},
	}
	cmd.Flags().BoolVar(&embeddedRedis, "embedded-redis", false, "run an in-process redis instead of connecting to redis.addr")
	return cmd
}

func serve(ctx context.Context, s *settings.Settings, embeddedRedis bool) error {
	// -------- LOGGER --------
	logger, err := obs.NewLogger(s.AsLogConfig())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	deps, err := buildRuntime(ctx, s, logger, buildOptions{embeddedRedis: embeddedRedis, withUsers: true})
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("shutdown cleanup", zap.Error(err))
		}
	}()

	// -------- METRICS --------
	var ms *http.Server
	if s.Metrics.Enabled && s.Server.MetricsAddr != "" {
		ms = obs.BootstrapMetricsServer(s.Server.MetricsAddr, promexp.Handler(promexp.NewRegistry(deps.engine)), deps.health, logger)
	}

	// -------- HTTP SERVER --------
	api := httpapi.New(deps.engine, httpapi.Options{
		Logger:       logger,
		SecureCookie: s.Server.CookieSecure,
		CookieMaxAge: s.Auth.RefreshTTL,
	})
	srv := &http.Server{
		Addr:         s.Server.HTTPAddr,
		Handler:      api.Routes(),
		ReadTimeout:  s.Server.ReadTimeout,
		WriteTimeout: s.Server.WriteTimeout,
		IdleTimeout:  s.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening",
			zap.String("addr", s.Server.HTTPAddr),
			zap.String("signing_method", s.Auth.SigningMethod),
			zap.String("ledger", s.Ledger.Backend),
			zap.Strings("audit_sinks", s.AuditSinks()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server error", zap.Error(err))
			return err
		}
	}

	// -------- GRACEFUL SHUTDOWN --------
	shCtx, cancel := context.WithTimeout(context.Background(), s.Server.GracefulTimeout)
	defer cancel()

	if ms != nil {
		_ = ms.Shutdown(shCtx)
	}
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}
