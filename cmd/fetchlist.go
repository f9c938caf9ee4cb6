package cmd

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/artexin/internal/batch"
	"github.com/JakeFAU/artexin/internal/jobs"
	"github.com/JakeFAU/artexin/internal/packager"
	"github.com/JakeFAU/artexin/internal/server"
)

var reportHeader = []string{"url", "size", "elapsed", "hash", "title", "image_count"}

type fetchListConfig struct {
	OutDir     string
	ReportPath string
	FailedPath string
	Options    jobs.FetchableOptions
}

type fetchListSummary struct {
	Collected int
	Skipped   int
	Failed    int
}

func newFetchListCmd() *cobra.Command {
	var (
		flags      collectFlags
		list       string
		key        string
		keyring    string
		passphrase string
		report     string
		failed     string
	)
	cmd := &cobra.Command{
		Use:   "fetch-list",
		Short: "Collects and signs every URL in a list, resuming where it left off",
		Long: `Processes the URLs in --list one at a time. A URL whose signed archive
<out>/<md5(url)>.sig already exists is skipped, so an interrupted run can be
restarted. Each success appends url,size,elapsed,hash,title,image_count to the
report; each failure appends the URL to the failed list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			cfg := flags.apply(env.cfg)
			if keyring != "" {
				cfg.Signing.Keyring = keyring
			}
			if passphrase != "" {
				cfg.Signing.Passphrase = passphrase
			}
			cfg.Signing.Key = key
			if !cfg.Signing.Enabled() {
				return errors.New("fetch-list signs every archive: --key, --keyring and --passphrase (or signing.*) are required")
			}
			if cfg.Output.Dir == "" {
				return errors.New("--out is required")
			}

			urls, err := readURLFile(list)
			if err != nil {
				return err
			}
			p, err := server.NewPipeline(cfg, env.logger.Named("pipeline"))
			if err != nil {
				return err
			}
			defer p.Close()

			fl := fetchListConfig{
				OutDir:     cfg.Output.Dir,
				ReportPath: report,
				FailedPath: failed,
				Options:    flags.options(),
			}
			sum, err := fetchList(cmd.Context(), p.Collector, urls, fl, env.logger.Named("fetch-list"))
			fmt.Fprintf(cmd.OutOrStdout(), "collected %d, skipped %d, failed %d\n", sum.Collected, sum.Skipped, sum.Failed)
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&list, "list", "", "file with one URL per line")
	cmd.Flags().StringVar(&key, "key", "", "signing key id or user id")
	cmd.Flags().StringVar(&keyring, "keyring", "", "keyring path (default signing.keyring)")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "key passphrase (default signing.passphrase)")
	cmd.Flags().StringVar(&report, "report", "", "CSV report path (default <out>/report.csv)")
	cmd.Flags().StringVar(&failed, "failed", "", "failed URL list path (default <out>/failed.urls)")
	_ = cmd.MarkFlagRequired("list")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

// fetchList collects urls sequentially into cfg.OutDir. Per-URL failures are
// recorded and do not stop the run; only report I/O errors and cancellation
// are returned.
func fetchList(ctx context.Context, c batch.Collector, urls []string, cfg fetchListConfig, logger *zap.Logger) (sum fetchListSummary, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReportPath == "" {
		cfg.ReportPath = filepath.Join(cfg.OutDir, "report.csv")
	}
	if cfg.FailedPath == "" {
		cfg.FailedPath = filepath.Join(cfg.OutDir, "failed.urls")
	}
	if err := os.MkdirAll(cfg.OutDir, 0o750); err != nil {
		return sum, fmt.Errorf("create output dir: %w", err)
	}

	reportFile, err := openAppend(cfg.ReportPath)
	if err != nil {
		return sum, err
	}
	defer func() { err = errors.Join(err, reportFile.Close()) }()
	report := csv.NewWriter(reportFile)
	if info, statErr := reportFile.Stat(); statErr == nil && info.Size() == 0 {
		if err := writeRow(report, reportHeader); err != nil {
			return sum, err
		}
	}

	failedFile, err := openAppend(cfg.FailedPath)
	if err != nil {
		return sum, err
	}
	defer func() { err = errors.Join(err, failedFile.Close()) }()

	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		logger := logger.With(zap.String("url", u))
		sig := filepath.Join(cfg.OutDir, packager.Checksum(u)+".sig")
		if _, statErr := os.Stat(sig); statErr == nil {
			logger.Info("already collected, skipping", zap.String("path", sig))
			sum.Skipped++
			continue
		}

		start := time.Now()
		res := c.Collect(ctx, u, cfg.Options, nil)
		elapsed := time.Since(start)
		if res.Failed() {
			logger.Warn("collect failed", zap.String("error", res.Error))
			sum.Failed++
			if _, err := io.WriteString(failedFile, u+"\n"); err != nil {
				return sum, fmt.Errorf("write failed list: %w", err)
			}
			continue
		}

		row := []string{
			u,
			strconv.FormatInt(res.Size, 10),
			strconv.FormatFloat(elapsed.Seconds(), 'f', 2, 64),
			res.Hash,
			res.Title,
			strconv.Itoa(res.Images),
		}
		if err := writeRow(report, row); err != nil {
			return sum, err
		}
		sum.Collected++
	}
	return sum, nil
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) // #nosec G304 -- operator-supplied path.
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

func writeRow(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
