package cmd

import (
	"github.com/jrschumacher/linkdash/internal/config"
	"github.com/jrschumacher/linkdash/server"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"start"},
	Short:   "Start the linkdash server",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		return server.Start(cfg, assets)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
