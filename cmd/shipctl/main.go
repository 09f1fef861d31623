// shipctl 是运费服务的运维命令行：离线试算报价、调用线上服务、迁移表结构、导入规则。
package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "shipctl",
		Short:         "Operator tooling for the shipping quote service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap.Load(configPath)
			if err != nil {
				return err
			}
			bootstrap.SetCurrentConfig(cfg)
			logger.Init("shipctl", cfg.App.LogLevel, true)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to the service config file")

	root.AddCommand(newQuoteCmd(), newMigrateCmd(), newImportCmd())
	return root
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("shipctl failed")
		os.Exit(1)
	}
}
