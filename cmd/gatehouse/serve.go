// ABOUTME: serve subcommand that runs the gatehouse HTTP server
// ABOUTME: Wires config, store, verifier, trust delegate, and the gate together

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/me/gatehouse/internal/config"
	"github.com/me/gatehouse/internal/secure"
	"github.com/me/gatehouse/internal/server"
	"github.com/me/gatehouse/internal/store"
	"github.com/me/gatehouse/internal/trust"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gatehouse server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer sqlStore.Close()

	verifier := store.NewVerifier(sqlStore)

	var delegate secure.TrustDelegate
	if cfg.Trust.Enabled {
		td, err := trust.New(trust.Config{
			Secret:    []byte(cfg.Trust.Secret),
			Header:    cfg.Trust.Header,
			Issuer:    cfg.Trust.Issuer,
			ReplayTTL: cfg.Trust.ReplayTTL,
		})
		if err != nil {
			return err
		}
		defer td.Close()
		delegate = td
	}

	srv, err := server.New(cfg, sqlStore, verifier, delegate)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting gatehouse", "addr", cfg.Server.HTTPAddr, "trust", cfg.Trust.Enabled)
	return srv.Run(ctx)
}

// setupLogger builds the process logger from the logging config.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
