// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command lessoncast runs the streaming lesson player service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ManuGH/lessoncast/internal/config"
	"github.com/ManuGH/lessoncast/internal/daemon"
	xglog "github.com/ManuGH/lessoncast/internal/log"
	"github.com/ManuGH/lessoncast/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Safe defaults until config is loaded
	xglog.Configure(xglog.Config{Level: "info", Service: "lessoncast", Version: version.Version})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	const configEnv = config.EnvPrefix + "CONFIG"
	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = config.ParseString(configEnv, "")
	}

	// Precedence: ENV > File > Defaults
	loader := config.NewLoader(path, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
	}
	for _, key := range loader.UnknownEnvKeys(os.Environ()) {
		if key == configEnv {
			continue
		}
		logger.Warn().Str("event", "config.unknown_env").Str("key", key).Msg("ignoring unknown environment variable")
	}

	xglog.Configure(xglog.Config{Level: cfg.Log.Level, Service: cfg.Log.Service, Version: cfg.Version})
	logger = xglog.WithComponent("daemon")

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str("event", "config.loaded").
		Str("source", source).
		Str("path", path).
		Msg("loaded configuration")

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.Server.ListenAddr).
		Msg("starting lessoncast")
	logger.Info().Msgf("→ Catalog: %s (%s)", cfg.API.Mode, cfg.CatalogBaseURL())
	logger.Info().Msgf("→ Manifests: %s strategy, cache %s", cfg.Manifest.Strategy, cfg.Manifest.CacheBackend)
	logger.Info().Msgf("→ Player: %d retries, credentials %s, autoplay %v", cfg.Player.MaxRetries, cfg.Player.Credentials, cfg.Player.Autoplay)
	logger.Info().Msgf("→ Progress: %s", cfg.Progress.Backend)
	if cfg.API.Mode == "live" && cfg.API.Token == "" {
		logger.Warn().Msg("→ API token: NOT configured, the live catalog may reject requests")
	}

	rt, err := daemon.Bootstrap(ctx, cfg)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "bootstrap.failed").
			Msg("failed to wire services")
	}

	mgr, err := daemon.NewManager(daemon.ServerConfig{
		ListenAddr:        cfg.Server.ListenAddr,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
	}, daemon.Deps{
		Logger:     logger,
		APIHandler: rt.Handler,
	})
	if err != nil {
		_ = rt.Close(context.Background())
		logger.Fatal().
			Err(err).
			Str("event", "manager.creation.failed").
			Msg("failed to create daemon manager")
	}
	rt.RegisterShutdownHooks(mgr)

	var holder *config.ConfigHolder
	if path != "" {
		holder = config.NewConfigHolder(cfg, loader)
	}

	app := daemon.NewApp(logger, mgr, holder)
	if err := app.Run(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "manager.failed").
			Msg("daemon app failed")
	}

	logger.Info().Msg("server exiting")
}
