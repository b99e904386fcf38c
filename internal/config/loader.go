// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
	// ConsumedEnvKeys records every variable the last Load looked at.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader; configPath may be empty for ENV-only setups.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, def string) string {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseString(EnvPrefix+key, def)
}

func (l *Loader) envInt(key string, def int) int {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseInt(EnvPrefix+key, def)
}

func (l *Loader) envFloat(key string, def float64) float64 {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseFloat(EnvPrefix+key, def)
}

func (l *Loader) envBool(key string, def bool) bool {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseBool(EnvPrefix+key, def)
}

func (l *Loader) envDuration(key string, def time.Duration) time.Duration {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseDuration(EnvPrefix+key, def)
}

func (l *Loader) envMap(key string, def map[string]string) map[string]string {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseMap(EnvPrefix+key, def)
}

// Load builds defaults, overlays the file, overlays the environment and
// validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	l.mergeEnv(&cfg)

	cfg.Version = l.version
	cfg.Server.PublicURL = strings.TrimRight(cfg.Server.PublicURL, "/")
	for _, dir := range []*string{&cfg.Progress.Dir, &cfg.Player.OfflineDir} {
		if *dir == "" {
			continue
		}
		if abs, err := filepath.Abs(*dir); err == nil {
			*dir = abs
		}
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes path over cfg. Unknown keys, multiple documents and
// non-YAML files are rejected.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- the config path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.Server.ListenAddr = l.envString("LISTEN", cfg.Server.ListenAddr)
	cfg.Server.PublicURL = l.envString("PUBLIC_URL", cfg.Server.PublicURL)
	cfg.Server.RateLimit = l.envInt("RATE_LIMIT", cfg.Server.RateLimit)
	cfg.Server.ShutdownTimeout = l.envDuration("SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.MaxPlayers = l.envInt("MAX_PLAYERS", cfg.Server.MaxPlayers)

	cfg.Log.Level = l.envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = l.envString("LOG_SERVICE", cfg.Log.Service)

	cfg.API.Mode = l.envString("API_MODE", cfg.API.Mode)
	cfg.API.BaseURL = l.envString("API_BASE_URL", cfg.API.BaseURL)
	cfg.API.Token = l.envString("API_TOKEN", cfg.API.Token)
	cfg.API.Timeout = l.envDuration("API_TIMEOUT", cfg.API.Timeout)

	cfg.Player.MaxRetries = l.envInt("PLAYER_MAX_RETRIES", cfg.Player.MaxRetries)
	cfg.Player.RetryDelay = l.envDuration("PLAYER_RETRY_DELAY", cfg.Player.RetryDelay)
	cfg.Player.Credentials = l.envString("PLAYER_CREDENTIALS", cfg.Player.Credentials)
	cfg.Player.Autoplay = l.envBool("PLAYER_AUTOPLAY", cfg.Player.Autoplay)
	cfg.Player.MaxBandwidth = l.envInt("PLAYER_MAX_BANDWIDTH", cfg.Player.MaxBandwidth)
	cfg.Player.FragRetries = l.envInt("PLAYER_FRAG_RETRIES", cfg.Player.FragRetries)
	cfg.Player.ProgressInterval = l.envDuration("PLAYER_PROGRESS_INTERVAL", cfg.Player.ProgressInterval)
	cfg.Player.Surface = l.envString("PLAYER_SURFACE", cfg.Player.Surface)
	cfg.Player.OfflineDir = l.envString("PLAYER_OFFLINE_DIR", cfg.Player.OfflineDir)

	cfg.Fetch.Timeout = l.envDuration("FETCH_TIMEOUT", cfg.Fetch.Timeout)
	cfg.Fetch.SegmentRate = l.envFloat("FETCH_SEGMENT_RATE", cfg.Fetch.SegmentRate)
	cfg.Fetch.SegmentBurst = l.envInt("FETCH_SEGMENT_BURST", cfg.Fetch.SegmentBurst)
	cfg.Fetch.BreakerThreshold = l.envInt("FETCH_BREAKER_THRESHOLD", cfg.Fetch.BreakerThreshold)
	cfg.Fetch.BreakerReset = l.envDuration("FETCH_BREAKER_RESET", cfg.Fetch.BreakerReset)

	cfg.Manifest.Strategy = l.envString("MANIFEST_STRATEGY", cfg.Manifest.Strategy)
	cfg.Manifest.BaseURL = l.envString("MANIFEST_BASE_URL", cfg.Manifest.BaseURL)
	cfg.Manifest.Direct = l.envMap("MANIFEST_DIRECT", cfg.Manifest.Direct)
	cfg.Manifest.SignParam = l.envString("MANIFEST_SIGN_PARAM", cfg.Manifest.SignParam)
	cfg.Manifest.SignToken = l.envString("MANIFEST_SIGN_TOKEN", cfg.Manifest.SignToken)
	cfg.Manifest.CacheTTL = l.envDuration("MANIFEST_CACHE_TTL", cfg.Manifest.CacheTTL)
	cfg.Manifest.CacheBackend = l.envString("MANIFEST_CACHE_BACKEND", cfg.Manifest.CacheBackend)

	cfg.Progress.Backend = l.envString("PROGRESS_BACKEND", cfg.Progress.Backend)
	cfg.Progress.Dir = l.envString("PROGRESS_DIR", cfg.Progress.Dir)

	cfg.Redis.Addr = l.envString("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = l.envString("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = l.envInt("REDIS_DB", cfg.Redis.DB)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SampleRate = l.envFloat("TELEMETRY_SAMPLE_RATE", cfg.Telemetry.SampleRate)
	cfg.Telemetry.Environment = l.envString("TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)
}

// UnknownEnvKeys lists LESSONCAST_* variables in env that the loader never
// reads, usually typos.
func (l *Loader) UnknownEnvKeys(env []string) []string {
	known := maps.Clone(l.ConsumedEnvKeys)
	var unknown []string
	for _, kv := range env {
		k, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(k, EnvPrefix) {
			continue
		}
		if _, ok := known[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}
