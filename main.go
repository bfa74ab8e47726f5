// Package main is the entry point for the linkdash application
package main

import (
	"github.com/jrschumacher/linkdash/cmd"
	"github.com/jrschumacher/linkdash/internal/config"
	"github.com/jrschumacher/linkdash/internal/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	cmd.Execute(cfg, Assets())
}
