// Package commands 是 recserve 命令行：serve / config / inspect / version。
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rushteam/recserve/config"
	_ "github.com/rushteam/recserve/config/builders"
)

// configPathEnv 在未指定 --config 时提供配置文件路径
const configPathEnv = "RECSERVE_CONFIG"

var configPath string

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recserve",
		Short: "Recommendation serving engine",
		Long: `recserve serves precomputed recommendation models over HTTP.

It loads a model bundle (item catalog, interactions, model artifacts),
answers user / similar-item / popular / batch requests with cold-start
fallbacks, and caches results in memory or Redis.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML), defaults to $"+configPathEnv)

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewInspectCmd())
	cmd.AddCommand(NewVersionCmd())
	return cmd
}

func Execute() error {
	return NewRootCmd().Execute()
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	return config.Load(path)
}
