package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/clearpath-media/cp-whisperx/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

Redirect this output to a file to create a configuration template:

  cpx config dump > config.yaml

Configuration is read from config.yaml (searched in ., ~/.cp-whisperx,
/etc/cpx) and overridden by CPX_-prefixed environment variables using
underscores for nesting, for example CPX_STORAGE_BASE_DIR.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		v := viper.New()
		config.SetDefaults(v)

		data, err := yaml.Marshal(v.AllSettings())
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
		fmt.Println("# cpx configuration file")
		fmt.Println("# All values shown are defaults.")
		fmt.Println()
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configDumpCmd)
	rootCmd.AddCommand(configCmd)
}
