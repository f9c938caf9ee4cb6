package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/artexin/internal/config"
	"github.com/JakeFAU/artexin/internal/logging"
)

// envKeyType is the key for storing the command environment in the context.
type envKeyType string

const envKey envKeyType = "env"

// cliEnv carries what every subcommand needs once flags are parsed.
type cliEnv struct {
	cfg    config.Config
	logger *zap.Logger
}

// loadConfig is a variable so tests can supply configuration without files.
var loadConfig = config.Load

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "artexin",
		Short: "Collects web pages into self-contained, signed archives.",
		Long: `artexin fetches web pages, extracts their main content, downloads the
images they reference and packages the result into a zip archive, optionally
signed with an OpenPGP key. It runs as an HTTP job service or as one-off
commands.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &cliEnv{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(envKey).(*cliEnv); ok && rt != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); ARTEXIN_* env vars override it")

	cmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newMigrateCmd(),
		newCollectCmd(),
		newBatchCmd(),
		newFetchListCmd(),
		newVerifyCmd(),
	)
	return cmd
}

func resolveEnv(ctx context.Context) (*cliEnv, error) {
	rt, ok := ctx.Value(envKey).(*cliEnv)
	if !ok || rt == nil {
		return nil, errors.New("command environment not initialized")
	}
	return rt, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "artexin: %v\n", err)
		os.Exit(1)
	}
}
