// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package daemon wires the lessoncast services together and owns their
// lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ManuGH/lessoncast/internal/api"
	"github.com/ManuGH/lessoncast/internal/bus"
	"github.com/ManuGH/lessoncast/internal/cache"
	"github.com/ManuGH/lessoncast/internal/catalog"
	"github.com/ManuGH/lessoncast/internal/config"
	"github.com/ManuGH/lessoncast/internal/fetch"
	"github.com/ManuGH/lessoncast/internal/health"
	xglog "github.com/ManuGH/lessoncast/internal/log"
	"github.com/ManuGH/lessoncast/internal/manifest"
	"github.com/ManuGH/lessoncast/internal/mockapi"
	"github.com/ManuGH/lessoncast/internal/player"
	"github.com/ManuGH/lessoncast/internal/progress"
	"github.com/ManuGH/lessoncast/internal/streamclient"
	"github.com/ManuGH/lessoncast/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const cacheJanitorInterval = time.Minute

// Runtime is the wired service graph of one daemon instance.
type Runtime struct {
	Handler  http.Handler
	Players  *player.Registry
	Progress progress.Store
	Catalog  catalog.Client
	// Backend is the simulated backend, nil in live mode.
	Backend *mockapi.Server

	redis  redis.UniversalClient
	health *health.Manager
	hooks  []namedHook
	logger zerolog.Logger
}

// Bootstrap builds every service cfg describes. Resources acquired before a
// failure are released again.
func Bootstrap(ctx context.Context, cfg config.AppConfig) (rt *Runtime, err error) {
	rt = &Runtime{logger: xglog.WithComponent("daemon"), health: health.NewManager(cfg.Version)}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
			rt = nil
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return rt, err
	}
	rt.addHook("telemetry", tp.Shutdown)

	if cfg.Progress.Backend == "redis" || cfg.Manifest.CacheBackend == "redis" {
		// Progress lives in redis only for the redis backend; a cache outage
		// degrades manifest lookups but does not make the service unready.
		if err := rt.connectRedis(ctx, cfg.Redis, cfg.Progress.Backend == "redis"); err != nil {
			return rt, err
		}
	}

	store, err := progress.NewStore(cfg.Progress.Backend, progress.Options{Dir: cfg.Progress.Dir, Redis: rt.redis})
	if err != nil {
		return rt, fmt.Errorf("progress store: %w", err)
	}
	rt.Progress = store
	switch progress.Backend(store) {
	case "sqlite", "badger":
		rt.health.RegisterChecker(health.NewWritableDirChecker("progress_dir", cfg.Progress.Dir))
	}
	rt.addHook("progress", func(context.Context) error { return store.Close() })

	var sources cache.Cache
	switch cfg.Manifest.CacheBackend {
	case "memory":
		mc := cache.NewMemoryCache(cacheJanitorInterval)
		rt.addHook("manifest-cache", func(context.Context) error { return mc.Close() })
		sources = mc
	case "redis":
		sources = cache.NewRedisCacheFromClient(rt.redis, "", xglog.WithComponent("cache"))
	}

	mounts := map[string]http.Handler{}
	mode, err := catalog.ParseMode(cfg.API.Mode)
	if err != nil {
		return rt, err
	}
	if mode == catalog.ModeMock {
		lessons, err := catalog.NewMock(cfg.CatalogBaseURL())
		if err != nil {
			return rt, err
		}
		backend, err := mockapi.New(lessons)
		if err != nil {
			return rt, err
		}
		rt.Catalog = lessons
		rt.Backend = backend
		mounts[config.MockPrefix] = backend
	} else {
		rt.Catalog, err = catalog.New(catalog.Config{
			Mode:    mode,
			BaseURL: cfg.CatalogBaseURL(),
			Token:   cfg.API.Token,
			Timeout: cfg.API.Timeout,
		})
		if err != nil {
			return rt, err
		}
	}

	resolver, err := manifest.Build(manifest.Config{
		Strategy:  cfg.Manifest.Strategy,
		BaseURL:   cfg.ManifestBaseURL(),
		Direct:    cfg.Manifest.Direct,
		SignParam: cfg.Manifest.SignParam,
		SignToken: cfg.Manifest.SignToken,
		CacheTTL:  cfg.Manifest.CacheTTL,
	}, rt.Catalog, sources)
	if err != nil {
		return rt, err
	}

	fetcher, err := fetch.NewHTTPFetcher(fetch.Config{
		Timeout:          cfg.Fetch.Timeout,
		Origin:           cfg.Server.PublicURL,
		Token:            cfg.API.Token,
		SegmentRate:      cfg.Fetch.SegmentRate,
		SegmentBurst:     cfg.Fetch.SegmentBurst,
		BreakerThreshold: cfg.Fetch.BreakerThreshold,
		BreakerReset:     cfg.Fetch.BreakerReset,
	})
	if err != nil {
		return rt, err
	}
	creds, err := fetch.ParseCredentialsMode(cfg.Player.Credentials)
	if err != nil {
		return rt, err
	}

	events := bus.NewMemoryBus()
	clients := &streamclient.HLSFactory{Fetcher: fetcher}
	playerCfg := player.Config{
		MaxRetries:       cfg.Player.MaxRetries,
		RetryDelay:       cfg.Player.RetryDelay,
		Credentials:      creds,
		MaxBandwidth:     cfg.Player.MaxBandwidth,
		FragRetries:      cfg.Player.FragRetries,
		ProgressInterval: cfg.Player.ProgressInterval,
	}
	newSurface := surfaceFactory(cfg.Player)
	if cfg.Player.Surface == "file" {
		rt.health.RegisterChecker(health.NewWritableDirChecker("offline_dir", cfg.Player.OfflineDir))
	}
	rt.Players = player.NewRegistry(func(id string) (*player.Player, error) {
		return player.New(id, playerCfg, player.Deps{
			Resolver: resolver,
			Fetcher:  fetcher,
			Clients:  clients,
			Surface:  newSurface(id),
			Progress: store,
			Bus:      events,
		})
	})
	rt.Players.SetLimit(cfg.Server.MaxPlayers)
	rt.addHook("players", func(context.Context) error { return rt.Players.Close() })

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = cfg.Log.Service
	}
	srv, err := api.New(api.Config{
		RateLimit:      cfg.Server.RateLimit,
		Autoplay:       cfg.Player.Autoplay,
		TracingService: tracing,
	}, api.Deps{
		Players:  rt.Players,
		Progress: store,
		Bus:      events,
		Catalog:  rt.Catalog,
		Health:   rt.health,
		Mounts:   mounts,
	})
	if err != nil {
		return rt, err
	}
	rt.Handler = srv.Handler()

	rt.logger.Info().
		Str("event", "daemon.bootstrapped").
		Str("catalog", string(mode)).
		Str("strategy", cfg.Manifest.Strategy).
		Str("progress", progress.Backend(store)).
		Str("cache", cfg.Manifest.CacheBackend).
		Str("surface", cfg.Player.Surface).
		Bool("telemetry", cfg.Telemetry.Enabled).
		Msg("services wired")
	return rt, nil
}

func (rt *Runtime) connectRedis(ctx context.Context, cfg config.RedisConfig, critical bool) error {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis connection failed: %w", err)
	}
	rt.redis = client
	var checker health.Checker = health.NewFuncChecker("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if !critical {
		checker = health.Informational(checker)
	}
	rt.health.RegisterChecker(checker)
	rt.addHook("redis", func(context.Context) error { return client.Close() })
	rt.logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to redis")
	return nil
}

func (rt *Runtime) addHook(name string, hook ShutdownHook) {
	rt.hooks = append(rt.hooks, namedHook{name: name, hook: hook})
}

// RegisterShutdownHooks hands the runtime's cleanup to m. Resources are
// released in reverse acquisition order.
func (rt *Runtime) RegisterShutdownHooks(m Manager) {
	for _, h := range rt.hooks {
		m.RegisterShutdownHook(h.name, h.hook)
	}
	rt.hooks = nil
}

// Close releases everything not yet handed to a Manager.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.hooks) - 1; i >= 0; i-- {
		if err := rt.hooks[i].hook(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rt.hooks[i].name, err))
		}
	}
	rt.hooks = nil
	return errors.Join(errs...)
}
