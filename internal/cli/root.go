// Package cli 命令行入口
package cli

import (
	"context"
	"os"

	"nni-keeper/internal/config"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "config/config.yaml"

var Version = "0.1.0"

type configKey struct{}

// NewRootCmd 创建根命令
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "nni-keeper",
		Short: "Watch NNI experiments and promote their best model",
		Long: `nni-keeper polls NNI experiments, keeps the best trial models staged while
they run, and promotes the winner into the production model tables once the
experiment finishes.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			path := cfgFile
			if path == "" {
				if _, err := os.Stat(defaultConfigPath); err == nil {
					path = defaultConfigPath
				}
			}
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./"+defaultConfigPath+" if present)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newMigrateCmd())
	return rootCmd
}

func configFrom(cmd *cobra.Command) *config.Config {
	if cfg, ok := cmd.Context().Value(configKey{}).(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

// Execute 执行根命令
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}
