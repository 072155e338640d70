package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/sweetshop/apiserver/config"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "apiserver",
	Short: "Sweet shop inventory API server",
	Long: `Sweet shop inventory API server. Usage:

	apiserver server
	apiserver migrate up
	apiserver export --key snapshots/today.json
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to a YAML config file; environment variables take precedence")
}

func loadConfig() (config.Config, error) {
	return config.LoadFile(configPath)
}
