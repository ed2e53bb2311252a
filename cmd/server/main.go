package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/skillguru/chat-server/internal/app"
	"github.com/skillguru/chat-server/internal/config"
	"github.com/skillguru/chat-server/internal/log"
)

func main() {
	var (
		configPath string
		addr       string
	)
	flag.StringVar(&configPath, "config", "", "path to config file (yaml)")
	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	bootLogger := log.New("info")

	cfg, source, err := config.Load(bootLogger, configPath)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	if addr != "" {
		cfg.Addr = addr
	}

	logger := log.New(cfg.LogLevel)
	logger.Info().Str("config", source).Str("addr", cfg.Addr).Msg("starting chat server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}

	if err := application.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
	logger.Info().Msg("server stopped")
}
