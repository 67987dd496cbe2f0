// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/ycrawler/internal/crawler"
)

// EnvPrefix is prepended to every environment override, e.g.
// YCRAWLER_CRAWLER_MAX_REQUESTS.
const EnvPrefix = "YCRAWLER"

// Storage backends.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// CrawlerConfig governs the poll loop and the fetch pipeline.
type CrawlerConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	MaxRequests  int           `mapstructure:"max_requests"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	UserAgent    string        `mapstructure:"user_agent"`
	LedgerPolicy string        `mapstructure:"ledger_policy"`
	Once         bool          `mapstructure:"once"`
}

// HTTPConfig configures the fetch client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// StorageConfig selects and configures the content store backend.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	OutputDir string `mapstructure:"output_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional retrieval catalog.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for story notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the admin HTTP server. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features and the level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls OpenTelemetry tracing. Exporter is one of none,
// stdout or gcp; ProjectID falls back to pubsub.project_id.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	Exporter    string  `mapstructure:"exporter"`
	ProjectID   string  `mapstructure:"project_id"`
}

// Load builds a Config from an optional file plus the environment.
func Load(path string) (Config, error) {
	return LoadFromViper(viper.New(), path)
}

// LoadFromViper is Load for a caller-provided Viper instance, typically one
// with command-line flags already bound.
func LoadFromViper(v *viper.Viper, path string) (Config, error) {
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
	v.SetDefault("crawler.base_url", "https://news.ycombinator.com")
	v.SetDefault("crawler.max_requests", 5)
	v.SetDefault("crawler.poll_interval", "5s")
	v.SetDefault("crawler.user_agent", "ycrawler/1.0")
	v.SetDefault("crawler.ledger_policy", string(crawler.LedgerPolicyAlways))
	v.SetDefault("crawler.once", false)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.output_dir", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "retrievals")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("server.port", 0)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "ycrawler")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.project_id", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.MaxRequests <= 0 {
		return fmt.Errorf("crawler.max_requests must be > 0")
	}
	if c.Crawler.PollInterval < 0 {
		return fmt.Errorf("crawler.poll_interval must be >= 0")
	}
	u, err := url.Parse(c.Crawler.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("crawler.base_url must be an absolute http(s) URL, got %q", c.Crawler.BaseURL)
	}
	switch crawler.LedgerPolicy(c.Crawler.LedgerPolicy) {
	case crawler.LedgerPolicyAlways, crawler.LedgerPolicyOnSuccess:
	default:
		return fmt.Errorf("crawler.ledger_policy must be %q or %q",
			crawler.LedgerPolicyAlways, crawler.LedgerPolicyOnSuccess)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Storage.OutputDir) == "" {
			return fmt.Errorf("storage.output_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be one of local, gcs, memory")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is")
	}
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	switch c.Telemetry.Exporter {
	case "", "none", "stdout":
	case "gcp":
		if c.TraceProjectID() == "" {
			return fmt.Errorf("telemetry.project_id (or pubsub.project_id) is required for the gcp exporter")
		}
	default:
		return fmt.Errorf("telemetry.exporter must be one of none, stdout, gcp")
	}
	return nil
}

// Timeout converts the HTTP timeout into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// TraceProjectID returns the Cloud Trace project, defaulting to the Pub/Sub
// project.
func (c Config) TraceProjectID() string {
	if c.Telemetry.ProjectID != "" {
		return c.Telemetry.ProjectID
	}
	return c.PubSub.ProjectID
}

// Policy returns the configured ledger policy.
func (c Config) Policy() crawler.LedgerPolicy {
	return crawler.LedgerPolicy(c.Crawler.LedgerPolicy)
}
