package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/artexin/internal/batch"
	"github.com/JakeFAU/artexin/internal/config"
	"github.com/JakeFAU/artexin/internal/jobs"
	"github.com/JakeFAU/artexin/internal/server"
)

// collectFlags are shared by the commands that run the pipeline directly.
type collectFlags struct {
	javascript bool
	extract    bool
	out        string
	keepSrc    bool
}

func (f *collectFlags) register(cmd *cobra.Command) {
	defaults := jobs.DefaultFetchableOptions()
	cmd.Flags().BoolVar(&f.javascript, "javascript", defaults.Javascript, "render pages in a headless browser")
	cmd.Flags().BoolVar(&f.extract, "extract", defaults.Extract, "keep only the main article content")
	cmd.Flags().StringVar(&f.out, "out", "", "output directory (default output.dir)")
	cmd.Flags().BoolVar(&f.keepSrc, "keep-src", false, "keep the unzipped staging directory")
}

func (f *collectFlags) options() jobs.FetchableOptions {
	return jobs.FetchableOptions{Javascript: f.javascript, Extract: f.extract}
}

// apply overlays the flags on cfg. Headless rendering is only started when
// a page asks for it.
func (f *collectFlags) apply(cfg config.Config) config.Config {
	if f.out != "" {
		cfg.Output.Dir = f.out
	}
	if f.keepSrc {
		cfg.Output.KeepSrc = true
	}
	cfg.Headless.Enabled = cfg.Headless.Enabled && f.javascript
	return cfg
}

func newCollectCmd() *cobra.Command {
	var flags collectFlags
	cmd := &cobra.Command{
		Use:   "collect <url>",
		Short: "Collects and packages a single page",
		Long: `Fetches the page, extracts its content, downloads its images and writes
<out>/<md5(url)>.zip (or .sig when signing is configured). The result is
printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			p, err := server.NewPipeline(flags.apply(env.cfg), env.logger.Named("pipeline"))
			if err != nil {
				return err
			}
			defer p.Close()

			res := p.Collector.Collect(cmd.Context(), args[0], flags.options(), nil)
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if res.Failed() {
				return fmt.Errorf("collect %s: %s", args[0], res.Error)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newBatchCmd() *cobra.Command {
	var (
		flags collectFlags
		pool  int
	)
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Collects every URL listed in a file",
		Long: `Reads one URL per line (blank lines and lines starting with # are
skipped) and collects them concurrently. Results are printed as a JSON object
keyed by URL; one failing URL never stops the others.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			urls, err := readURLFile(args[0])
			if err != nil {
				return err
			}
			if pool <= 0 {
				pool = env.cfg.Batch.PoolSize
			}
			p, err := server.NewPipeline(flags.apply(env.cfg), env.logger.Named("pipeline"))
			if err != nil {
				return err
			}
			defer p.Close()

			results := batch.Run(cmd.Context(), p.Collector, batch.Targets(urls, flags.options()), pool, env.logger.Named("batch"))
			return printJSON(cmd.OutOrStdout(), results)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&pool, "pool", 0, "concurrent collections (default batch.pool_size, then CPU count)")
	return cmd
}

func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer func() { _ = f.Close() }()
	urls, err := readURLs(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return urls, nil
}

func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, errors.New("no urls found")
	}
	return urls, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
