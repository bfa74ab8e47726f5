package cmd

import (
	"io/fs"
	"os"

	"github.com/jrschumacher/linkdash/internal/config"
	"github.com/jrschumacher/linkdash/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfg    *config.Config
	assets fs.FS
)

var rootCmd = &cobra.Command{
	Use:   "linkdash",
	Short: "linkdash CLI",
	Long:  `linkdash is the session gateway and dashboard for the link shortener`,
}

// Execute runs the CLI with the loaded configuration and the embedded
// static/ and content/ trees.
func Execute(c *config.Config, a fs.FS) {
	cfg = c
	assets = a
	logger.Info("Starting CLI", "env", cfg.AppEnv)
	if err := rootCmd.Execute(); err != nil {
		logger.Error("CLI error", "error", err)
		os.Exit(1)
	}
}
