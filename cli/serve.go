package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/Dosada05/bracket-automation/db"
	"github.com/Dosada05/bracket-automation/handlers"
	"github.com/Dosada05/bracket-automation/routes"
	"github.com/Dosada05/bracket-automation/services"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var migrateFirst bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the websocket hub and the automation supervisor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts, migrateFirst)
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func runServe(ctx context.Context, opts *RootOptions, migrateFirst bool) error {
	cfg, logger, err := opts.setup()
	if err != nil {
		return err
	}
	logger.Info().Int("port", cfg.ServerPort).Str("store", cfg.StoreDriver).Msg("configuration loaded")

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if migrateFirst && a.db != nil {
		version, err := db.Migrate(a.db, 0)
		if err != nil {
			return err
		}
		logger.Info().Uint("version", version).Msg("migrations applied")
	}

	supervisor, err := services.NewSupervisor(a.tournamentRepo, a.monitor, a.automation, services.SupervisorConfig{
		ReconcileInterval:   cfg.SupervisorInterval,
		HealthSweepInterval: cfg.HealthSweepInterval,
	}, logger)
	if err != nil {
		return fmt.Errorf("create supervisor: %w", err)
	}
	supervisor.Start()
	defer func() {
		if err := supervisor.Stop(); err != nil {
			logger.Error().Err(err).Msg("supervisor shutdown failed")
		}
	}()

	router := chi.NewRouter()
	routes.SetupRoutes(router, routes.Handlers{
		Tournament: handlers.NewTournamentHandler(a.tournaments, a.matches),
		Match:      handlers.NewMatchHandler(a.matches),
		Automation: handlers.NewAutomationHandler(a.automation),
		WebSocket:  handlers.NewWebSocketHandler(a.hub, a.tournaments, a.monitor, cfg.CORSAllowedOrigins, logger),
	}, routes.Options{
		JWTSecret:      []byte(cfg.JWTSecretKey),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("address", server.Addr).Msg("starting server")
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info().Msg("server stopped gracefully")
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		logger.Info().Dur("timeout", 15*time.Second).Msg("shutting down server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to force close server")
			}
			return err
		}
		logger.Info().Msg("server shutdown complete")
	}
	return nil
}
