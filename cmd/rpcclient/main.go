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

const defaultConfigPath = "cmd/rpcclient/config.toml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "client config path (.toml, .yaml, .json5)")
	network := flag.String("network", "", "override network: tcp|unix|ws")
	address := flag.String("address", "", "override server address")
	count := flag.Int("count", -1, "override number of calls (0 runs until interrupted)")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	_ = godotenv.Load()
	logging.ConfigureRuntime()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rpcclient: %v\n", err)
		os.Exit(1)
	}
	if *network != "" {
		cfg.Network = *network
	}
	if *address != "" {
		cfg.Address = *address
	}
	if *count >= 0 {
		cfg.Count = *count
	}
	if err := config.ValidateClientConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "rpcclient: %v\n", err)
		os.Exit(1)
	}
	logging.SetLevel(cfg.LogLevel)
	if *logLevel != "" {
		logging.SetLevel(*logLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := run(ctx, cfg, os.Getenv(auth.EnvAdminToken))
	log.Info().
		Int("ok", stats.OK).
		Int("rpc_errors", stats.RPCErrors).
		Int("failures", stats.Failures).
		Int("reconnects", stats.Reconnects).
		Msg("rpcclient done")
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("rpcclient exited")
		os.Exit(1)
	}
}

// loadConfig falls back to defaults when the default path is absent.
func loadConfig(path string) (config.ClientConfig, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.DefaultClientConfig(), nil
		}
	}
	return config.LoadClientConfig(path)
}
