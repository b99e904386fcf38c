// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"time"

	"github.com/ManuGH/lessoncast/internal/validate"
)

var (
	apiModes         = []string{"mock", "live"}
	credentialModes  = []string{"omit", "same-origin", "include"}
	strategies       = []string{"base", "direct", "signed", "catalog"}
	cacheBackends    = []string{"none", "memory", "redis"}
	progressBackends = []string{"memory", "sqlite", "redis", "badger"}
	surfaces         = []string{"memory", "file"}
	exporters        = []string{"grpc", "http"}
)

// Validate checks cfg and reports every problem at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.ListenAddr("server.listenAddr", cfg.Server.ListenAddr)
	v.URL("server.publicUrl", cfg.Server.PublicURL, []string{"http", "https"})
	v.NonNegative("server.rateLimit", cfg.Server.RateLimit)
	v.Duration("server.shutdownTimeout", cfg.Server.ShutdownTimeout, time.Second, 5*time.Minute)
	v.Range("server.maxPlayers", cfg.Server.MaxPlayers, 1, 100_000)

	if _, err := validate.ParseLogLevel(cfg.Log.Level); err != nil {
		v.AddError("log.level", err.Error(), cfg.Log.Level)
	}

	v.OneOf("api.mode", cfg.API.Mode, apiModes)
	if cfg.API.Mode == "live" {
		v.URL("api.baseUrl", cfg.API.BaseURL, []string{"http", "https"})
	}
	v.Duration("api.timeout", cfg.API.Timeout, 100*time.Millisecond, 2*time.Minute)

	v.Range("player.maxRetries", cfg.Player.MaxRetries, 0, 20)
	v.Duration("player.retryDelay", cfg.Player.RetryDelay, 0, time.Minute)
	v.OneOf("player.credentials", cfg.Player.Credentials, credentialModes)
	v.NonNegative("player.maxBandwidth", cfg.Player.MaxBandwidth)
	v.Range("player.fragRetries", cfg.Player.FragRetries, 0, 10)
	v.Duration("player.progressInterval", cfg.Player.ProgressInterval, time.Second, 0)
	v.OneOf("player.surface", cfg.Player.Surface, surfaces)
	if cfg.Player.Surface == "file" {
		v.Directory("player.offlineDir", cfg.Player.OfflineDir, false)
	}

	v.Duration("fetch.timeout", cfg.Fetch.Timeout, 100*time.Millisecond, 5*time.Minute)
	if cfg.Fetch.SegmentRate < 0 {
		v.AddError("fetch.segmentRate", "value cannot be negative", cfg.Fetch.SegmentRate)
	}
	v.NonNegative("fetch.segmentBurst", cfg.Fetch.SegmentBurst)
	v.Range("fetch.breakerThreshold", cfg.Fetch.BreakerThreshold, 1, 100)
	v.Duration("fetch.breakerReset", cfg.Fetch.BreakerReset, time.Second, 10*time.Minute)

	v.OneOf("manifest.strategy", cfg.Manifest.Strategy, strategies)
	switch cfg.Manifest.Strategy {
	case "direct":
		if len(cfg.Manifest.Direct) == 0 {
			v.AddError("manifest.direct", "direct strategy needs at least one lesson URL", nil)
		}
		for ref, u := range cfg.Manifest.Direct {
			v.URL(fmt.Sprintf("manifest.direct[%s]", ref), u, []string{"http", "https"})
		}
	case "signed":
		v.NotEmpty("manifest.signToken", cfg.Manifest.SignToken)
	}
	if cfg.Manifest.BaseURL != "" {
		v.URL("manifest.baseUrl", cfg.Manifest.BaseURL, []string{"http", "https"})
	}
	v.OneOf("manifest.cacheBackend", cfg.Manifest.CacheBackend, cacheBackends)
	v.Duration("manifest.cacheTTL", cfg.Manifest.CacheTTL, 0, 24*time.Hour)

	v.OneOf("progress.backend", cfg.Progress.Backend, progressBackends)
	switch cfg.Progress.Backend {
	case "sqlite", "badger":
		v.Directory("progress.dir", cfg.Progress.Dir, false)
	}

	if cfg.Progress.Backend == "redis" || cfg.Manifest.CacheBackend == "redis" {
		v.NotEmpty("redis.addr", cfg.Redis.Addr)
	}
	v.Range("redis.db", cfg.Redis.DB, 0, 15)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, exporters)
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		if cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1 {
			v.AddError("telemetry.sampleRate", "must be between 0 and 1", cfg.Telemetry.SampleRate)
		}
	}

	return v.Err()
}
