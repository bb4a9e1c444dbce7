package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wiresum/internal/app"
	"wiresum/internal/auth"
	"wiresum/internal/config"
	"wiresum/internal/logging"
	"wiresum/internal/server"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server with background sync and classification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default: $WIRESUM_PORT or 8000)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	var verifier *auth.Verifier
	if cfg.APITokenHash != "" {
		v, err := auth.NewVerifier(cfg.APITokenHash)
		if err != nil {
			return fmt.Errorf("WIRESUM_API_TOKEN_HASH: %w", err)
		}
		verifier = v
	} else {
		logger.Warn().Msg("WIRESUM_API_TOKEN_HASH not set; API is unauthenticated")
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing app")
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("version", app.Version).
		Str("db", cfg.DBPath).
		Strs("sources", a.Syncer.Sources()).
		Bool("enrichment", a.Enricher.Enabled()).
		Msg("starting wiresum")

	if err := a.Start(ctx); err != nil {
		return err
	}

	srv := server.NewServer(a, server.Config{ServerURL: cfg.ServerURL, Verifier: verifier})
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Address()) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
