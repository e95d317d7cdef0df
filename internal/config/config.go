// Package config provides configuration management for cpx using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultGlossaryTTLDays   = 30
	defaultMaxBiasTerms      = 200
	defaultTopCastNames      = 15
	defaultDownloadTimeout   = 10 * time.Minute
	defaultAPITimeout        = 2 * time.Minute
	defaultFilenameMaxLen    = 35
	defaultCleanupCron       = "0 0 3 * * *"
	defaultBudgetLimitUsd    = 50.0
	defaultAlertThresholdPct = 80
)

// Config holds all configuration for the application.
type Config struct {
	Storage     StorageConfig     `mapstructure:"storage"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Download    DownloadConfig    `mapstructure:"download"`
	Glossary    GlossaryConfig    `mapstructure:"glossary"`
	Pricing     PricingConfig     `mapstructure:"pricing"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Budget      BudgetConfig      `mapstructure:"budget"`
}

// StorageConfig holds the on-disk layout rooted at BaseDir.
// BaseDir defaults to ~/.cp-whisperx when left empty.
type StorageConfig struct {
	BaseDir     string `mapstructure:"base_dir"`
	CostsDir    string `mapstructure:"costs_dir"`
	UsersDir    string `mapstructure:"users_dir"`
	CacheDir    string `mapstructure:"cache_dir"`
	DownloadDir string `mapstructure:"download_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// DownloadConfig holds online media download configuration.
type DownloadConfig struct {
	FormatQuality  string        `mapstructure:"format_quality"` // best, 1080p, 720p, 480p, audio
	AudioOnly      bool          `mapstructure:"audio_only"`
	Timeout        time.Duration `mapstructure:"timeout"`
	FilenameMaxLen int           `mapstructure:"filename_max_len"`
}

// GlossaryConfig holds glossary subsystem configuration.
type GlossaryConfig struct {
	ProjectRoot     string `mapstructure:"project_root"`
	TTLDays         int    `mapstructure:"ttl_days"`
	LearningEnabled bool   `mapstructure:"learning_enabled"`
	MaxBiasTerms    int    `mapstructure:"max_bias_terms"`
	TopCastNames    int    `mapstructure:"top_cast_names"`
}

// PricingConfig holds cost tracker pricing configuration.
// When Path is empty, the embedded default pricing table is used.
type PricingConfig struct {
	Path       string        `mapstructure:"path"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

// DatabaseConfig holds the run-history database configuration.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN      string `mapstructure:"dsn"`    // empty = {base_dir}/cpx.db for sqlite
	LogLevel string `mapstructure:"log_level"`
}

// MaintenanceConfig holds scheduled maintenance configuration.
type MaintenanceConfig struct {
	CacheCleanupCron string `mapstructure:"cache_cleanup_cron"` // 6-field cron expression
}

// BudgetConfig holds default budget values for new user profiles.
type BudgetConfig struct {
	MonthlyLimitUsd       float64 `mapstructure:"monthly_limit_usd"`
	AlertThresholdPercent int     `mapstructure:"alert_threshold_percent"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with CPX_ and use underscores for nesting.
// Example: CPX_STORAGE_BASE_DIR=/var/lib/cpx.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.cp-whisperx")
		v.AddConfigPath("/etc/cpx")
	}

	v.SetEnvPrefix("CPX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.ResolveBaseDir(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Storage defaults; base_dir is resolved to ~/.cp-whisperx at load time
	v.SetDefault("storage.base_dir", "")
	v.SetDefault("storage.costs_dir", "costs")
	v.SetDefault("storage.users_dir", "users")
	v.SetDefault("storage.cache_dir", "glossary_cache")
	v.SetDefault("storage.download_dir", "downloads")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Download defaults
	v.SetDefault("download.format_quality", "best")
	v.SetDefault("download.audio_only", false)
	v.SetDefault("download.timeout", defaultDownloadTimeout)
	v.SetDefault("download.filename_max_len", defaultFilenameMaxLen)

	// Glossary defaults
	v.SetDefault("glossary.project_root", ".")
	v.SetDefault("glossary.ttl_days", defaultGlossaryTTLDays)
	v.SetDefault("glossary.learning_enabled", true)
	v.SetDefault("glossary.max_bias_terms", defaultMaxBiasTerms)
	v.SetDefault("glossary.top_cast_names", defaultTopCastNames)

	// Pricing defaults
	v.SetDefault("pricing.path", "")
	v.SetDefault("pricing.api_timeout", defaultAPITimeout)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.log_level", "warn")

	// Maintenance defaults
	v.SetDefault("maintenance.cache_cleanup_cron", defaultCleanupCron)

	// Budget defaults for new profiles
	v.SetDefault("budget.monthly_limit_usd", defaultBudgetLimitUsd)
	v.SetDefault("budget.alert_threshold_percent", defaultAlertThresholdPct)
}

// ResolveBaseDir fills in the default base directory when unset.
func (c *Config) ResolveBaseDir() error {
	if c.Storage.BaseDir != "" {
		return nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}
	c.Storage.BaseDir = filepath.Join(home, ".cp-whisperx")
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	validQualities := map[string]bool{"best": true, "1080p": true, "720p": true, "480p": true, "audio": true}
	if !validQualities[c.Download.FormatQuality] {
		return fmt.Errorf("download.format_quality must be one of: best, 1080p, 720p, 480p, audio")
	}
	if c.Download.FilenameMaxLen < 1 {
		return fmt.Errorf("download.filename_max_len must be at least 1")
	}

	if c.Glossary.TTLDays < 1 {
		return fmt.Errorf("glossary.ttl_days must be at least 1")
	}
	if c.Glossary.MaxBiasTerms < 1 {
		return fmt.Errorf("glossary.max_bias_terms must be at least 1")
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}

	if c.Budget.MonthlyLimitUsd < 0 {
		return fmt.Errorf("budget.monthly_limit_usd must not be negative")
	}
	if c.Budget.AlertThresholdPercent < 1 || c.Budget.AlertThresholdPercent > 100 {
		return fmt.Errorf("budget.alert_threshold_percent must be between 1 and 100")
	}

	return nil
}

// CostsPath returns the full path to the monthly cost log directory.
func (c *StorageConfig) CostsPath() string {
	return filepath.Join(c.BaseDir, c.CostsDir)
}

// UsersPath returns the full path to the user profile directory.
func (c *StorageConfig) UsersPath() string {
	return filepath.Join(c.BaseDir, c.UsersDir)
}

// CachePath returns the full path to the glossary cache directory.
func (c *StorageConfig) CachePath() string {
	return filepath.Join(c.BaseDir, c.CacheDir)
}

// DownloadPath returns the full path to the media download cache directory.
func (c *StorageConfig) DownloadPath() string {
	return filepath.Join(c.BaseDir, c.DownloadDir)
}

// DatabaseDSN returns the effective DSN, defaulting sqlite to {base_dir}/cpx.db.
func (c *Config) DatabaseDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	if c.Database.Driver == "sqlite" {
		return filepath.Join(c.Storage.BaseDir, "cpx.db")
	}
	return ""
}
