// Package main is the entry point for the hangout server.
//
// MAIN PACKAGE:
// main stays minimal. It parses flags, loads configuration, builds the
// logger and hands over to internal/server. All real logic lives in the
// internal packages.
//
// COMMANDS:
//
//	hangout [serve]   run the HTTP server (the default)
//	hangout verify    check configuration, the Daily key and the store
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/hangout/internal/config"
	"github.com/sakif/hangout/internal/server"
)

type options struct {
	envFile string
	timeout time.Duration
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	serve := newServeCommand(opts)

	cmd := &cobra.Command{
		Use:           "hangout",
		Short:         "Audio hangout backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "verify timeout")

	cmd.AddCommand(serve, newVerifyCommand(opts))
	return cmd
}

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.envFile)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Env, cfg.Debug)
			for _, w := range cfg.Warnings() {
				logger.Warn(w)
			}

			srv, err := server.New(cfg, logger)
			if err != nil {
				logger.Error("failed to create server", slog.String("error", err.Error()))
				return err
			}
			if err := srv.Start(); err != nil {
				logger.Error("server failed", slog.String("error", err.Error()))
				return err
			}
			return nil
		},
	}
}

// newVerifyCommand checks everything the server needs before it is
// deployed. It exits non-zero on the first hard failure.
func newVerifyCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check configuration, the Daily API key and the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.envFile)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Env, cfg.Debug)
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "config: ok")
			for _, w := range cfg.Warnings() {
				fmt.Fprintln(out, "  warning:", w)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			rooms := server.NewDailyClient(cfg, logger)
			domain, err := rooms.DomainConfig(ctx)
			if err != nil {
				return fmt.Errorf("daily: %w", err)
			}
			fmt.Fprintf(out, "daily: ok (domain %v)\n", domain["domain_name"])

			store, err := server.OpenStore(cfg, logger)
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			defer store.Close()
			if err := store.Ping(ctx); err != nil {
				return fmt.Errorf("store: %w", err)
			}
			fmt.Fprintf(out, "store: ok (%s)\n", cfg.Store.Backend)
			return nil
		},
	}
}

// setupLogger picks a handler by environment: readable text locally,
// JSON everywhere else. DEBUG lowers the level in any environment.
func setupLogger(env string, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug || env == config.EnvLocal {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	switch env {
	case config.EnvDev, config.EnvProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
}
