// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. ARTEXIN_SERVER_PORT.
const EnvPrefix = "ARTEXIN"

// Backend names shared by several sections.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendPubSub   = "pubsub"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
)

// Tracing exporters.
const (
	TracingNone   = "none"
	TracingStdout = "stdout"
	TracingGCP    = "gcp"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Images    ImagesConfig    `mapstructure:"images"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Output    OutputConfig    `mapstructure:"output"`
	Signing   SigningConfig   `mapstructure:"signing"`
	Store     StoreConfig     `mapstructure:"store"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// WorkerConfig sizes the dispatcher pool and in-memory queue.
type WorkerConfig struct {
	Concurrency         int `mapstructure:"concurrency"`
	QueueDepth          int `mapstructure:"queue_depth"`
	ErrorBackoffSeconds int `mapstructure:"error_backoff_seconds"`
}

// HTTPConfig configures the plain page and image fetcher.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	SettleSeconds int  `mapstructure:"settle_seconds"`
}

// ImagesConfig bounds image downloads.
type ImagesConfig struct {
	MaxParallel   int     `mapstructure:"max_parallel"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// BatchConfig sizes batch fan-out.
type BatchConfig struct {
	PoolSize int `mapstructure:"pool_size"`
}

// OutputConfig sets where archives are written.
type OutputConfig struct {
	Dir     string `mapstructure:"dir"`
	KeepSrc bool   `mapstructure:"keep_src"`
	TempDir string `mapstructure:"temp_dir"`
}

// SigningConfig selects the OpenPGP key used to sign archives.
type SigningConfig struct {
	Keyring    string `mapstructure:"keyring"`
	Key        string `mapstructure:"key"`
	Passphrase string `mapstructure:"passphrase"`
}

// Enabled reports whether archives should be signed.
func (s SigningConfig) Enabled() bool {
	return s.Keyring != "" && s.Key != "" && s.Passphrase != ""
}

func (s SigningConfig) partial() bool {
	return !s.Enabled() && (s.Keyring != "" || s.Key != "" || s.Passphrase != "")
}

// StoreConfig selects the job record store.
type StoreConfig struct {
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// QueueConfig selects the job dispatch queue.
type QueueConfig struct {
	Backend        string `mapstructure:"backend"`
	ProjectID      string `mapstructure:"project_id"`
	Topic          string `mapstructure:"topic"`
	Subscription   string `mapstructure:"subscription"`
	Table          string `mapstructure:"table"`
	PollIntervalMs int    `mapstructure:"poll_interval_ms"`
	LeaseSeconds   int    `mapstructure:"lease_seconds"`
}

// ArtifactsConfig selects where finished archives are mirrored.
type ArtifactsConfig struct {
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// NotifyConfig selects where job-finished events are published.
type NotifyConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// TelemetryConfig selects the trace exporter.
type TelemetryConfig struct {
	Tracing     string `mapstructure:"tracing"`
	ServiceName string `mapstructure:"service_name"`
	ProjectID   string `mapstructure:"project_id"`
}

// LoggingConfig selects the zap encoder and minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment. Every key has a default so that
// AutomaticEnv overrides reach Unmarshal.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.queue_depth", 64)
	v.SetDefault("worker.error_backoff_seconds", 1)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "artexin/1.0")
	v.SetDefault("http.max_body_bytes", 20*1024*1024)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 60)
	v.SetDefault("headless.settle_seconds", 1)
	v.SetDefault("images.max_parallel", 8)
	v.SetDefault("images.rate_per_second", 0)
	v.SetDefault("images.burst", 1)
	v.SetDefault("batch.pool_size", 0)
	v.SetDefault("output.dir", "out")
	v.SetDefault("output.keep_src", false)
	v.SetDefault("output.temp_dir", "")
	v.SetDefault("signing.keyring", "")
	v.SetDefault("signing.key", "")
	v.SetDefault("signing.passphrase", "")
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("store.max_conn_lifetime", time.Hour)
	v.SetDefault("store.migrate", false)
	v.SetDefault("queue.backend", BackendMemory)
	v.SetDefault("queue.project_id", "")
	v.SetDefault("queue.topic", "")
	v.SetDefault("queue.subscription", "")
	v.SetDefault("queue.table", "job_queue")
	v.SetDefault("queue.poll_interval_ms", 500)
	v.SetDefault("queue.lease_seconds", 600)
	v.SetDefault("artifacts.backend", BackendNone)
	v.SetDefault("artifacts.base_dir", "")
	v.SetDefault("artifacts.bucket", "")
	v.SetDefault("artifacts.prefix", "archives")
	v.SetDefault("notify.backend", BackendNone)
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "artexin-jobs")
	v.SetDefault("telemetry.tracing", TracingNone)
	v.SetDefault("telemetry.service_name", "artexin")
	v.SetDefault("telemetry.project_id", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
//
//nolint:gocognit,gocyclo // one check per knob
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.Worker.QueueDepth <= 0 {
		return fmt.Errorf("worker.queue_depth must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Headless.Enabled && c.Headless.NavTimeoutSec <= 0 {
		return fmt.Errorf("headless.nav_timeout_seconds must be > 0 when headless is enabled")
	}
	if c.Images.MaxParallel <= 0 {
		return fmt.Errorf("images.max_parallel must be > 0")
	}
	if c.Images.RatePerSecond < 0 {
		return fmt.Errorf("images.rate_per_second must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Signing.partial() {
		return fmt.Errorf("signing.keyring, signing.key and signing.passphrase must be set together")
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend %q must be memory or postgres", c.Store.Backend)
	}

	switch c.Queue.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the postgres queue")
		}
		if c.Queue.PollIntervalMs <= 0 {
			return fmt.Errorf("queue.poll_interval_ms must be > 0")
		}
		if c.Queue.LeaseSeconds <= 0 {
			return fmt.Errorf("queue.lease_seconds must be > 0")
		}
	case BackendPubSub:
		if c.Queue.ProjectID == "" || c.Queue.Topic == "" || c.Queue.Subscription == "" {
			return fmt.Errorf("queue.project_id, queue.topic and queue.subscription must be set for pubsub")
		}
	default:
		return fmt.Errorf("queue.backend %q must be memory, postgres or pubsub", c.Queue.Backend)
	}

	switch c.Artifacts.Backend {
	case BackendNone, BackendMemory:
	case BackendLocal:
		if c.Artifacts.BaseDir == "" {
			return fmt.Errorf("artifacts.base_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Artifacts.Bucket == "" {
			return fmt.Errorf("artifacts.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("artifacts.backend %q must be none, memory, local or gcs", c.Artifacts.Backend)
	}

	switch c.Notify.Backend {
	case BackendNone, BackendMemory:
	case BackendPubSub:
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic must be set for pubsub")
		}
	default:
		return fmt.Errorf("notify.backend %q must be none, memory or pubsub", c.Notify.Backend)
	}

	switch c.Telemetry.Tracing {
	case TracingNone, TracingStdout:
	case TracingGCP:
		if c.Telemetry.ProjectID == "" {
			return fmt.Errorf("telemetry.project_id must be set for gcp tracing")
		}
	default:
		return fmt.Errorf("telemetry.tracing %q must be none, stdout or gcp", c.Telemetry.Tracing)
	}
	return nil
}

// HTTPTimeout is the per-request budget for plain fetches.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout is the per-page budget for rendered fetches.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// SettleDelay is how long a rendered page is given to finish scripting.
func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.Headless.SettleSeconds) * time.Second
}

// RequestTimeout bounds each API request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// PollInterval is how often the postgres queue looks for work.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Queue.PollIntervalMs) * time.Millisecond
}

// QueueLease is how long a postgres queue row stays claimed before another
// worker may take it.
func (c Config) QueueLease() time.Duration {
	return time.Duration(c.Queue.LeaseSeconds) * time.Second
}

// ErrorBackoff is how long a worker waits after a failed dequeue.
func (c Config) ErrorBackoff() time.Duration {
	return time.Duration(c.Worker.ErrorBackoffSeconds) * time.Second
}
