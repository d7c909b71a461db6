package sqlagent

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/duckmesh/sqlagent/internal/api"
	"github.com/duckmesh/sqlagent/internal/auth"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(env *environment) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ask API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := env.openApp(ctx, appOptions{autoBootstrap: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if addr != "" {
				a.cfg.HTTP.Address = addr
			}

			handler, err := a.newHandler(ctx, env)
			if err != nil {
				return err
			}
			listener, err := net.Listen("tcp", a.cfg.HTTP.Address)
			if err != nil {
				return err
			}
			return a.serve(ctx, listener, handler)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides SQLAGENT_HTTP_ADDR)")
	return cmd
}

func (a *app) newHandler(ctx context.Context, env *environment) (http.Handler, error) {
	runner, err := a.newAgent(ctx, env)
	if err != nil {
		return nil, err
	}

	deps := api.Dependencies{
		Logger:            a.logger,
		Agent:             runner,
		Schema:            a.describer,
		Readiness:         a.store.HealthCheck,
		DependencyTimeout: time.Second,
	}
	if a.archiver != nil {
		deps.Sessions = a.archiver
		deps.Readiness = api.CombineReadinessChecks(a.store.HealthCheck, func(ctx context.Context) error {
			_, err := a.archiver.List(ctx, time.Now())
			return err
		})
	}
	if a.cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(a.cfg.Auth.StaticKeys)
		if err != nil {
			return nil, err
		}
		a.logger.InfoContext(ctx, "api key auth enabled", slog.Int("keys", validator.Len()))
		deps.AuthMiddleware = auth.Middleware(a.logger, validator)
	}
	return api.NewHandler(a.cfg, deps), nil
}

// serve runs until ctx is canceled, then shuts the server down gracefully.
func (a *app) serve(ctx context.Context, listener net.Listener, handler http.Handler) error {
	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("starting api server", slog.String("addr", listener.Addr().String()))
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return err
	}
	return nil
}
