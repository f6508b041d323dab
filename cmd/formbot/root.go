package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/formbot/core/bootstrap"
	coreconfig "github.com/m3rciful/formbot/core/config"
	"github.com/m3rciful/formbot/form/app"
)

var rootCmd = &cobra.Command{
	Use:           "formbot",
	Short:         "Telegram bot collecting facade work applications",
	Long:          `formbot asks a fixed set of questions in Russian or Uzbek, stores each finished application and forwards it to a group chat.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default $CONFIG_PATH or config.yaml)")
}

// configPath prefers the --config flag over CONFIG_PATH.
func configPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p
	}
	return coreconfig.Path()
}

// openStores loads the config and opens storage without starting the bot
// or the file logger.
func openStores(ctx context.Context, cmd *cobra.Command) (*coreconfig.Config, *app.Stores, func() error, error) {
	cfg, err := coreconfig.Load(configPath(cmd))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	infra, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:     cfg,
		LoggerInit: func(*coreconfig.Config) error { return nil },
	})
	if err != nil {
		return nil, nil, nil, err
	}
	stores, err := app.OpenStores(cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, nil, nil, err
	}
	return cfg, stores, infra.Close, nil
}
