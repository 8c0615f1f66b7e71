package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"democrm-backend/pkg/database"
	"democrm-backend/pkg/server"

	"github.com/spf13/cobra"
)

type serveOptions struct {
	port    string
	migrate bool
	memory  bool
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.port, "port", "", "Port to listen on (default from PORT)")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "Apply the database schema before serving")
	cmd.Flags().BoolVar(&opts.memory, "memory", false, "Use the in-memory store instead of PostgreSQL")
	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.port != "" {
		cfg.Port = opts.port
	}
	if opts.memory {
		cfg.UseLocalDB = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := server.BuildDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.CloseDatabase()

	if opts.migrate {
		if err := database.Migrate(ctx, deps.DB); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("🚀 DemoCRM listening on :%s (%s)\n", cfg.Port, cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	fmt.Printf("🛑 Shutting down\n")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
