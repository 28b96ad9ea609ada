// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/citypop-crawler/internal/citypop"
	"github.com/JakeFAU/citypop-crawler/internal/logging"
	"github.com/JakeFAU/citypop-crawler/internal/source"
	"github.com/JakeFAU/citypop-crawler/internal/telemetry"
)

// Storage backends.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig         `mapstructure:"server"`
	Auth      AuthConfig           `mapstructure:"auth"`
	HTTP      HTTPConfig           `mapstructure:"http"`
	Headless  HeadlessConfig       `mapstructure:"headless"`
	Pipeline  PipelineConfig       `mapstructure:"pipeline"`
	Sources   []citypop.SourceSpec `mapstructure:"sources"`
	Report    ReportConfig         `mapstructure:"report"`
	Output    OutputConfig         `mapstructure:"output"`
	Storage   StorageConfig        `mapstructure:"storage"`
	DB        DBConfig             `mapstructure:"db"`
	PubSub    PubSubConfig         `mapstructure:"pubsub"`
	Logging   logging.Config       `mapstructure:"logging"`
	Telemetry telemetry.Config     `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                int `mapstructure:"port"`
	ShutdownTimeoutSecs int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// HTTPConfig configures outbound page fetches.
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	UserAgent      string  `mapstructure:"user_agent"`
	PerHostRPS     float64 `mapstructure:"per_host_rps"`
	RespectRobots  bool    `mapstructure:"respect_robots"`
}

// HeadlessConfig configures the optional browser fetcher.
type HeadlessConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	WaitSelector  string `mapstructure:"wait_selector"`

	// PromoteStatic re-fetches static pages that look like JavaScript shells.
	PromoteStatic      bool `mapstructure:"promote_static"`
	PromotionThreshold int  `mapstructure:"promotion_threshold"`
}

// PipelineConfig drives the extraction run.
type PipelineConfig struct {
	MaxCities     int               `mapstructure:"max_cities"`
	DelaySeconds  float64           `mapstructure:"delay_seconds"`
	CountriesFile string            `mapstructure:"countries_file"`
	Countries     []citypop.Country `mapstructure:"countries"`
	MetadataFile  string            `mapstructure:"metadata_file"`
}

// ReportConfig shapes the spreadsheet.
type ReportConfig struct {
	IncludeAltName bool   `mapstructure:"include_alt_name"`
	SheetName      string `mapstructure:"sheet_name"`
}

// OutputConfig names the artifact written each run.
type OutputConfig struct {
	Dir      string `mapstructure:"dir"`
	Filename string `mapstructure:"filename"`
}

// StorageConfig selects where the artifact is stored.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the run-history database. An empty DSN keeps
// history in memory.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DefaultCountries is the built-in country list.
func DefaultCountries() []citypop.Country {
	return []citypop.Country{
		{Name: "China", AltName: "中国"},
		{Name: "United States", AltName: "美国"},
		{Name: "Egypt", AltName: "埃及"},
		{Name: "Nigeria", AltName: "尼日利亚"},
		{Name: "India", AltName: "印度"},
	}
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CITYPOP")
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
	// List-valued defaults are applied only when the key is absent, so an
	// explicit empty list stays empty.
	if !v.IsSet("pipeline.countries") {
		cfg.Pipeline.Countries = DefaultCountries()
	}
	if !v.IsSet("sources") {
		cfg.Sources = source.DefaultSpecs()
	}
	for i := range cfg.Sources {
		if cfg.Sources[i].Policy == "" {
			cfg.Sources[i].Policy = citypop.ParsePolicyZero
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (compatible; citypop-bot/0.1)")
	v.SetDefault("http.per_host_rps", 2.0)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.wait_selector", "table")
	v.SetDefault("headless.promote_static", true)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("pipeline.max_cities", 10)
	v.SetDefault("pipeline.delay_seconds", 1.0)
	v.SetDefault("report.include_alt_name", true)
	v.SetDefault("report.sheet_name", "Population")
	v.SetDefault("output.dir", "data")
	v.SetDefault("output.filename", "global_country_population.xlsx")
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("db.table", "citypop_runs")
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "citypop-crawler")
	v.SetDefault("telemetry.version", "dev")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.PerHostRPS < 0 {
		return fmt.Errorf("http.per_host_rps must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Headless.PromotionThreshold < 0 {
		return fmt.Errorf("headless.promotion_threshold must be >= 0")
	}
	if c.Pipeline.MaxCities <= 0 {
		return fmt.Errorf("pipeline.max_cities must be > 0")
	}
	if c.Pipeline.DelaySeconds < 0 {
		return fmt.Errorf("pipeline.delay_seconds must be >= 0")
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("sources must not be empty")
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for _, spec := range c.Sources {
		if err := source.Validate(spec); err != nil {
			return fmt.Errorf("sources: %w", err)
		}
		if _, dup := seen[spec.Name]; dup {
			return fmt.Errorf("sources: duplicate name %q", spec.Name)
		}
		seen[spec.Name] = struct{}{}
	}
	if strings.TrimSpace(c.Output.Filename) == "" {
		return fmt.Errorf("output.filename is required")
	}
	switch c.Storage.Backend {
	case BackendLocal, BackendMemory:
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of local, memory, gcs", c.Storage.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.topic_name is set")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout is the per-request budget for outbound fetches.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Delay is the pause between countries.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Pipeline.DelaySeconds * float64(time.Second))
}
