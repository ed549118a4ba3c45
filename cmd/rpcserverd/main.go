package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/edgerpc/internal/auth"
	"github.com/danmuck/edgerpc/internal/config"
	"github.com/danmuck/edgerpc/internal/logging"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const defaultConfigPath = "cmd/rpcserverd/config.toml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "server config path (.toml, .yaml, .json5)")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	_ = godotenv.Load()
	logging.ConfigureRuntime()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rpcserverd: %v\n", err)
		os.Exit(1)
	}
	logging.SetLevel(cfg.LogLevel)
	if *logLevel != "" {
		logging.SetLevel(*logLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Getenv(auth.EnvAdminToken)); err != nil {
		log.Error().Err(err).Msg("rpcserverd exited")
		os.Exit(1)
	}
	log.Info().Msg("rpcserverd shutdown")
}

// loadConfig falls back to defaults when the default path is absent.
func loadConfig(path string) (config.ServerConfig, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.DefaultServerConfig(), nil
		}
	}
	return config.LoadServerConfig(path)
}
