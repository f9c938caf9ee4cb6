package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/artexin/internal/config"
	"github.com/JakeFAU/artexin/internal/server"
	pgstore "github.com/JakeFAU/artexin/internal/storage/postgres"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API and the worker pool",
		Long: `Starts the job API on the configured port together with a worker pool
that drains the job queue. The process drains in-flight work and exits on
SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), env.cfg, env.logger)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Runs the worker pool without the HTTP API",
		Long: `Starts only the worker pool. Use it with a shared queue backend
(postgres or pubsub) so jobs submitted to a separate serve process reach it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if env.cfg.Queue.Backend == config.BackendMemory {
				env.logger.Warn("worker started with the in-memory queue; it only sees jobs it enqueues itself")
			}
			app, err := server.Build(cmd.Context(), env.cfg, env.logger)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			return app.RunWorkers(cmd.Context())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applies the Postgres schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if env.cfg.Store.DSN == "" {
				return errors.New("store.dsn is required to migrate")
			}
			if err := pgstore.Migrate(cmd.Context(), env.cfg.Store.DSN); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			env.logger.Info("database migrations applied")
			return nil
		},
	}
}
