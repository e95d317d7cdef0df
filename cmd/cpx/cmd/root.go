// Package cmd implements the CLI commands for cpx.
package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clearpath-media/cp-whisperx/internal/config"
	"github.com/clearpath-media/cp-whisperx/internal/costs"
	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/observability"
	"github.com/clearpath-media/cp-whisperx/internal/users"
	"github.com/clearpath-media/cp-whisperx/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// appCfg is the effective configuration, loaded by PersistentPreRunE.
var appCfg *config.Config

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "cpx",
	Short:   "Staged media transcription and subtitling pipeline",
	Version: version.Short(),
	Long: `cpx turns video into transcripts, translations, and subtitled video
through a staged pipeline with resumable, hash-verified stage directories.

Jobs live in a job directory holding a job.json descriptor; each stage
writes its artifacts and manifest under {ordinal}_{stage}/ so interrupted
runs resume where they left off.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("cpx: %w", err)
	}
	return nil
}

func init() {
	// PersistentPreRunE is set here to avoid an initialization cycle
	// (initApp references rootCmd.PersistentFlags).
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initApp()
	}

	// These flags are not bound to viper: they only override the resolved
	// config when explicitly set, preserving flag > env > file > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ~/.cp-whisperx, /etc/cpx)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// initApp loads the configuration and installs the default logger with
// credential redaction applied.
func initApp() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logCfg := cfg.Logging
	if rootCmd.PersistentFlags().Changed("log-level") {
		logCfg.Level, _ = rootCmd.PersistentFlags().GetString("log-level")
		logCfg.Level = strings.ToLower(logCfg.Level)
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		logCfg.Format, _ = rootCmd.PersistentFlags().GetString("log-format")
		logCfg.Format = strings.ToLower(logCfg.Format)
	}

	logger := observability.NewLogger(logCfg)
	observability.SetDefault(observability.WithComponent(logger, "cpx"))

	appCfg = cfg
	return nil
}

// newUserStore builds the profile store from the effective configuration.
func newUserStore(logger *slog.Logger) (*users.Store, error) {
	return users.NewStore(appCfg.Storage.UsersPath(),
		users.WithDefaultBudget(models.Budget{
			MonthlyLimitUsd:       appCfg.Budget.MonthlyLimitUsd,
			AlertThresholdPercent: appCfg.Budget.AlertThresholdPercent,
		}),
		users.WithLegacySecretsPath(legacySecretsPath()),
		users.WithLogger(logger),
	)
}

// loadPricing returns the configured pricing table, or the embedded default
// when no pricing file is configured.
func loadPricing() (costs.Table, error) {
	if appCfg.Pricing.Path == "" {
		return costs.DefaultTable(), nil
	}
	table, err := costs.LoadTable(appCfg.Pricing.Path)
	if err != nil {
		return nil, fmt.Errorf("loading pricing table: %w", err)
	}
	return table, nil
}

// legacySecretsPath is the pre-profile secrets file honored for migration.
func legacySecretsPath() string {
	return filepath.Join(appCfg.Storage.BaseDir, "secrets.env")
}
