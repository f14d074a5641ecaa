package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"NewsDigest/internal/app"
	"NewsDigest/internal/config"
	"NewsDigest/internal/logging"
)

type options struct {
	configPath string
	envFile    string
	noPublish  bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "newsdigest",
		Short:         "Weekly topic news digest",
		Long:          "newsdigest collects this week's topic news from RSS/Atom feeds, enriches it with images and scripts, and publishes a Telegram digest.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(opts.envFile)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config (defaults to $NEWSDIGEST_CONFIG)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and publish the digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.Application) error {
				report, digest, err := a.RunOnce(ctx, !opts.noPublish)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d items committed (fetched %d, selected %d)\n",
					report.Committed, report.Fetched, report.Selected)
				if digest != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "digest: %d sent, %d degraded, %d failed\n",
						digest.Sent, digest.Degraded, digest.Failed)
				}
				return nil
			})
		},
	}
	runCmd.Flags().BoolVar(&opts.noPublish, "no-publish", false, "skip the Telegram digest")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.Application) error {
				return a.Serve(ctx)
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove persisted items, scripts and stored images",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.Application) error {
				report, err := a.Clear(ctx)
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(report); encErr != nil {
					return encErr
				}
				return err
			})
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "newsdigest %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}

	root.AddCommand(runCmd, serveCmd, clearCmd, versionCmd)
	return root
}

func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func withApp(parent context.Context, opts *options, fn func(context.Context, *app.Application) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load(opts.configPath)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer application.Close()

	if err := fn(ctx, application); err != nil {
		logger.Error("command failed", "error", err)
		return err
	}
	return nil
}
