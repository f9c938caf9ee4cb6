package server

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/artexin/internal/config"
	"github.com/JakeFAU/artexin/internal/fetcher"
	collyfetcher "github.com/JakeFAU/artexin/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/artexin/internal/fetcher/headless"
	"github.com/JakeFAU/artexin/internal/images"
	"github.com/JakeFAU/artexin/internal/packager"
	"github.com/JakeFAU/artexin/internal/pipeline"
	"github.com/JakeFAU/artexin/internal/policy/ratelimit"
)

// Pipeline bundles a Collector with the collaborators the handlers share.
type Pipeline struct {
	Collector *pipeline.Collector
	Packager  *packager.Packager
	// Reachability is the plain fetcher used for reachability checks.
	Reachability fetcher.Fetcher
	Sign         *packager.SignParams

	headless *headlessfetcher.Fetcher
}

// Close releases the headless browser, if one was started.
func (p *Pipeline) Close() {
	if p.headless != nil {
		p.headless.Close()
	}
}

// SignParams converts the signing section into packager parameters. It
// returns nil when signing is disabled.
func SignParams(cfg config.SigningConfig) *packager.SignParams {
	if !cfg.Enabled() {
		return nil
	}
	return &packager.SignParams{
		Keyring:    cfg.Keyring,
		Key:        cfg.Key,
		Passphrase: cfg.Passphrase,
	}
}

// NewPipeline builds the fetchers, image resolver, packager and collector
// described by cfg.
func NewPipeline(cfg config.Config, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	page := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.HTTP.UserAgent,
		Timeout:     cfg.HTTPTimeout(),
		MaxBodySize: cfg.HTTP.MaxBodyBytes,
	})
	logger.Info("using colly page fetcher", zap.String("user_agent", cfg.HTTP.UserAgent))

	p := &Pipeline{Reachability: page, Sign: SignParams(cfg.Signing)}

	var rendered fetcher.Fetcher = headlessfetcher.NewNoop()
	if cfg.Headless.Enabled {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
			SettleDelay:       cfg.SettleDelay(),
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		p.headless = hf
		rendered = hf
		logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Headless.MaxParallel))
	} else {
		logger.Info("headless rendering disabled")
	}

	var imageFetcher fetcher.Fetcher = page
	if cfg.Images.RatePerSecond > 0 {
		imageFetcher = ratelimit.Wrap(ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Images.RatePerSecond,
			DefaultBurst: cfg.Images.Burst,
		}), page)
		logger.Info("image rate limiter enabled",
			zap.Float64("rps", cfg.Images.RatePerSecond),
			zap.Int("burst", cfg.Images.Burst),
		)
	}

	p.Packager = packager.New(packager.VerifiedSigner{Signer: packager.OpenPGPSigner{}}, logger)
	p.Collector = pipeline.NewCollector(pipeline.Deps{
		Page:     page,
		Rendered: rendered,
		Resolver: images.NewResolver(imageFetcher, cfg.Images.MaxParallel, logger),
		Packager: p.Packager,
	}, pipeline.Config{
		TempDir: cfg.Output.TempDir,
		OutDir:  cfg.Output.Dir,
		KeepSrc: cfg.Output.KeepSrc,
		Sign:    p.Sign,
	}, logger)
	return p, nil
}
