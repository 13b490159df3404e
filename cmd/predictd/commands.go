package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/app"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/config"
)

func serveCmd() *cobra.Command {
	var ephemeral bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, WebSocket hub and export scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(func(c *config.Config) {
				if ephemeral {
					c.Ephemeral = true
				}
			})
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel, os.Stdout)
			logger.Info("predictd starting",
				slog.String("mode", cfg.Mode),
				slog.String("config", configPath),
				slog.Any("settings", config.RedactedConfig(cfg)),
			)

			application := app.New(cfg, logger)
			defer application.Close()

			err = application.Run(cmd.Context())
			if err != nil && !errors.Is(err, cmd.Context().Err()) {
				return err
			}
			logger.Info("predictd stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "keep all data in memory instead of Postgres and Redis")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			newLogger(cfg.LogLevel, os.Stderr)

			applied, err := app.Migrate(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}

func analyzeCmd() *cobra.Command {
	var stream bool
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Request a news analysis from the upstream server",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := oneShot()
			if err != nil {
				return err
			}
			defer application.Close()
			return application.Analyze(cmd.Context(), stream, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&stream, "stream", false, "print content as it streams in")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print overall and per-industry prediction accuracy",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := oneShot()
			if err != nil {
				return err
			}
			defer application.Close()
			return application.PrintStats(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write one snapshot of industries and predictions to S3",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := oneShot()
			if err != nil {
				return err
			}
			defer application.Close()

			res, err := application.ExportOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d predictions -> %s\n", res.Predictions, res.PredictionsPath)
			fmt.Fprintf(cmd.OutOrStdout(), "%d industries -> %s\n", res.Industries, res.IndustriesPath)
			return nil
		},
	}
}

// oneShot builds an App for a command that runs once and exits. Logs go to
// stderr so stdout carries only the command output.
func oneShot() (*app.App, error) {
	cfg, err := loadConfig(nil)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, newLogger(cfg.LogLevel, os.Stderr)), nil
}
