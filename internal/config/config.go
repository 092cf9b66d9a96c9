package config

import (
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data    DataConfig    `yaml:"data" mapstructure:"data"`
	Census  CensusConfig  `yaml:"census" mapstructure:"census"`
	ACS     ACSConfig     `yaml:"acs" mapstructure:"acs"`
	LODES   LODESConfig   `yaml:"lodes" mapstructure:"lodes"`
	Roads   RoadsConfig   `yaml:"roads" mapstructure:"roads"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Sink    SinkConfig    `yaml:"sink" mapstructure:"sink"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the on-disk artifact tree.
type DataConfig struct {
	Root string `yaml:"root" mapstructure:"root" validate:"required"`
}

// Raw is where downloaded source files land.
func (d DataConfig) Raw() string { return filepath.Join(d.Root, "raw") }

// External holds reference tables.
func (d DataConfig) External() string { return filepath.Join(d.Root, "external") }

// ShapeFiles holds downloaded TIGER archives and their extracted shapefiles.
func (d DataConfig) ShapeFiles() string { return filepath.Join(d.Root, "shape_files") }

// Interim holds normalized geometry tables.
func (d DataConfig) Interim() string { return filepath.Join(d.Root, "interim") }

// Processed holds aggregate tables and assembled graph views.
func (d DataConfig) Processed() string { return filepath.Join(d.Root, "processed") }

// ManifestPath is the persisted download manifest.
func (d DataConfig) ManifestPath() string { return filepath.Join(d.Root, "manifest.yaml") }

// CensusConfig holds Census Bureau endpoints and the API key.
type CensusConfig struct {
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	APIBaseURL string `yaml:"api_base_url" mapstructure:"api_base_url" validate:"required,url"`
	FilesURL   string `yaml:"files_url" mapstructure:"files_url" validate:"required,url"`
	MOVSURL    string `yaml:"movs_url" mapstructure:"movs_url" validate:"required,url"`
}

// ACSConfig configures microdata aggregation. Years stop at 2021: later
// samples carry 2020 PUMA codes, which do not join to the puma10 geometry.
type ACSConfig struct {
	Years          []int `yaml:"years" mapstructure:"years" validate:"required,dive,gte=2005,lte=2021"`
	IncomeBaseYear int   `yaml:"income_base_year" mapstructure:"income_base_year" validate:"gte=2010,lte=2023"`
}

// LODESConfig configures origin-destination flow retrieval.
type LODESConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	Version string `yaml:"version" mapstructure:"version" validate:"required,oneof=LODES7 LODES8"`
	JobType string `yaml:"job_type" mapstructure:"job_type" validate:"required"`
	Years   []int  `yaml:"years" mapstructure:"years" validate:"required,dive,gte=2002,lte=2030"`
}

// RoadsConfig configures road-length computation.
type RoadsConfig struct {
	Years   []int `yaml:"years" mapstructure:"years" validate:"required,dive,gte=2011,lte=2030"`
	Workers int   `yaml:"workers" mapstructure:"workers" validate:"gte=0"`
}

// FetchConfig configures the HTTP retriever.
type FetchConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gt=0"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries" validate:"gt=0"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec" validate:"gt=0"`
}

// SinkConfig configures the optional PostGIS sink.
type SinkConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema" validate:"required"`
}

// MetricsConfig configures the optional Pushgateway export and run alerts.
type MetricsConfig struct {
	PushgatewayURL       string  `yaml:"pushgateway_url" mapstructure:"pushgateway_url" validate:"omitempty,url"`
	Job                  string  `yaml:"job" mapstructure:"job"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url" validate:"omitempty,url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold" validate:"gte=0,lte=1"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=json console"`
}

var defaultYears = []int{2012, 2013, 2014, 2015, 2016, 2017, 2018, 2019}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COMMUTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.root", "data")
	v.SetDefault("census.api_key", "")
	v.SetDefault("census.api_base_url", "https://api.census.gov/data")
	v.SetDefault("census.files_url", "https://www2.census.gov")
	v.SetDefault("census.movs_url", "https://www2.census.gov/ces/movs/movs_st_main2005.csv")
	v.SetDefault("acs.years", defaultYears)
	v.SetDefault("acs.income_base_year", 2019)
	v.SetDefault("lodes.base_url", "https://lehd.ces.census.gov/data/lodes")
	v.SetDefault("lodes.version", "LODES8")
	v.SetDefault("lodes.job_type", "JT00")
	v.SetDefault("lodes.years", defaultYears)
	v.SetDefault("roads.years", defaultYears)
	v.SetDefault("roads.workers", 0)
	v.SetDefault("fetch.timeout_secs", 300)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "commute-cli/1.0")
	v.SetDefault("fetch.rate_per_sec", 10)
	v.SetDefault("sink.database_url", "")
	v.SetDefault("sink.schema", "commute")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "commute_pipeline")
	v.SetDefault("metrics.webhook_url", "")
	v.SetDefault("metrics.failure_rate_threshold", 0.10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct-level constraints on the loaded configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return eris.Wrap(err, "config: validate")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// ValidateFor checks the settings a specific command depends on.
func (c *Config) ValidateFor(mode string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	switch mode {
	case "pull", "process", "graph":
		return nil
	case "load":
		if c.Sink.DatabaseURL == "" {
			return eris.New("config: sink.database_url is required")
		}
		return nil
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
}
