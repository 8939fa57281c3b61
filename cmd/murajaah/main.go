package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/conorfennell/murajaah/internal/auth"
	"github.com/conorfennell/murajaah/internal/catalog"
	"github.com/conorfennell/murajaah/internal/config"
	"github.com/conorfennell/murajaah/internal/reconcile"
	"github.com/conorfennell/murajaah/internal/storage"
	"github.com/conorfennell/murajaah/internal/tracker"
	"github.com/conorfennell/murajaah/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

// runReconcile repairs every stored profile and prints a summary, also
// when some profiles failed.
func runReconcile(ctx context.Context, store reconcile.Store, w io.Writer) error {
	res, err := reconcile.Run(ctx, store)
	fmt.Fprintf(w, "Checked %d profiles, updated %d, %d errors.\n", res.Checked, res.Updated, len(res.Errors))
	return err
}

func run() error {
	// 1. Parse flags and load the configuration
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the database
	db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
		}
	}()
	slog.Info("Database opened successfully", "driver", cfg.Database.Driver)

	// 3. Bulk repair of stored profiles, then exit
	if config.Reconcile(flags) {
		return runReconcile(ctx, db, os.Stdout)
	}

	// 4. Load the surah catalog and wire the services
	cat, err := catalog.Load(ctx, catalog.Source{
		Location: cfg.Catalog.Source,
		File:     cfg.Catalog.File,
		Branch:   cfg.Catalog.Branch,
		CacheDir: cfg.Catalog.CacheDir,
	})
	if err != nil {
		return err
	}

	authSvc, err := auth.NewService(db, auth.Config{
		Secret:       cfg.Auth.Secret,
		SessionTTL:   cfg.Auth.SessionTTL,
		CookieName:   cfg.Auth.CookieName,
		CookieSecure: cfg.Auth.CookieSecure,
	})
	if err != nil {
		return err
	}
	trackerSvc := tracker.NewService(db, cat, cfg.Location())

	srv, err := web.NewServer(authSvc, trackerSvc, db, web.Options{
		Logger:         logger,
		RequestTimeout: cfg.Server.RequestTimeout,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	// 5. Serve until interrupted
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}
