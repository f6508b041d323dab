package main

import (
	"context"

	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/formbot/core/cmd"
	coreconfig "github.com/m3rciful/formbot/core/config"
	"github.com/m3rciful/formbot/form/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot (webhook or long polling)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return corecmd.Run(corecmd.Options{
			ConfigPath: configPath(cmd),
			Bootstrap: func(ctx context.Context, cfg *coreconfig.Config) (corecmd.TelegramApp, error) {
				a, err := app.Bootstrap(ctx, cfg)
				if err != nil {
					return nil, err
				}
				return a, nil
			},
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
