package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/pflag"

	"github.com/wilhg/summon/pkg/audit"
	"github.com/wilhg/summon/pkg/auth"
	"github.com/wilhg/summon/pkg/config"
	"github.com/wilhg/summon/pkg/mcpserver"
	summonotel "github.com/wilhg/summon/pkg/otel"
	"github.com/wilhg/summon/pkg/runtime"
	"github.com/wilhg/summon/pkg/store/entstore"
)

const shutdownTimeout = 10 * time.Second

func runServe(ctx context.Context, env *cmdEnv, cfg *config.Config, _ *pflag.FlagSet) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(env.stderr, cfg.Log)
	slog.SetDefault(logger)

	shutdownTracing, err := summonotel.Init(ctx, summonotel.Config{ServiceVersion: version, UseStdout: cfg.Trace.Stdout, Writer: env.stdout})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	srv, cleanup, err := buildServer(ctx, cfg, logger, env.stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	// Cancelled on shutdown so open event streams end instead of holding
	// the listener open.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	hs := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			slog.String("addr", cfg.Addr),
			slog.String("catalog", cfg.Catalog),
			slog.Bool("durable_audit", cfg.Audit.DatabaseURL != ""),
		)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", slog.Int("open_sessions", len(srv.Sessions())))
	cancelBase()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildServer wires the resolver, audit sinks and engine into a server. The
// returned cleanup closes the durable audit store when one is configured.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, auditOut io.Writer) (*mcpserver.Server, func(), error) {
	variant, err := cfg.Variant()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {}

	var sinks []audit.Sink
	if cfg.Audit.Stderr {
		sinks = append(sinks, audit.NewLogSink(slog.New(slog.NewJSONHandler(auditOut, nil))))
	}
	if cfg.Audit.DatabaseURL != "" {
		st, err := entstore.Open(ctx, cfg.Audit.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open audit store: %w", err)
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, nil, fmt.Errorf("migrate audit store: %w", err)
		}
		sinks = append(sinks, audit.NewStoreSink(st))
		cleanup = func() { _ = st.Close() }
	}

	srv, err := mcpserver.New(mcpserver.Config{
		Catalog:             variant,
		Resolver:            newResolver(cfg),
		Engine:              runtime.NewEngine(audit.Multi(sinks...), runtime.WithLogger(logger)),
		ResourceURL:         cfg.ResourceURL,
		AuthorizationServer: cfg.Auth.AuthorizationServer,
		SessionTimeout:      cfg.SessionTimeout,
		Logger:              logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return srv, cleanup, nil
}

func newResolver(cfg *config.Config) *auth.JWTResolver {
	var opts []auth.JWTOption
	if cfg.Auth.Issuer != "" {
		opts = append(opts, auth.WithIssuer(cfg.Auth.Issuer))
	}
	if cfg.Auth.Audience != "" {
		opts = append(opts, auth.WithAudience(cfg.Auth.Audience))
	}
	return auth.NewJWTResolver([]byte(cfg.Auth.Secret), opts...)
}
