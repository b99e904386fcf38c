// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads lessoncast configuration from defaults, a YAML file
// and LESSONCAST_* environment variables, in increasing precedence.
package config

import "time"

// AppConfig is the complete runtime configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	API       APIConfig       `yaml:"api"`
	Player    PlayerConfig    `yaml:"player"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Manifest  ManifestConfig  `yaml:"manifest"`
	Progress  ProgressConfig  `yaml:"progress"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	// PublicURL is how players reach this server; the simulated backend
	// is announced under PublicURL + MockPrefix.
	PublicURL       string        `yaml:"publicUrl"`
	RateLimit       int           `yaml:"rateLimit"` // requests per minute per client IP, 0 = off
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxPlayers      int           `yaml:"maxPlayers"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// APIConfig selects the lesson catalog backend.
type APIConfig struct {
	Mode    string        `yaml:"mode"` // mock | live
	BaseURL string        `yaml:"baseUrl"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type PlayerConfig struct {
	MaxRetries       int           `yaml:"maxRetries"`
	RetryDelay       time.Duration `yaml:"retryDelay"`
	Credentials      string        `yaml:"credentials"` // omit | same-origin | include
	Autoplay         bool          `yaml:"autoplay"`
	MaxBandwidth     int           `yaml:"maxBandwidth"`
	FragRetries      int           `yaml:"fragRetries"`
	ProgressInterval time.Duration `yaml:"progressInterval"`
	// Surface selects where segments go: memory, or file to assemble each
	// completed lesson under OfflineDir.
	Surface    string `yaml:"surface"`
	OfflineDir string `yaml:"offlineDir"`
}

type FetchConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	SegmentRate      float64       `yaml:"segmentRate"`
	SegmentBurst     int           `yaml:"segmentBurst"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

type ManifestConfig struct {
	Strategy     string            `yaml:"strategy"` // base | direct | signed | catalog
	BaseURL      string            `yaml:"baseUrl"`
	Direct       map[string]string `yaml:"direct"`
	SignParam    string            `yaml:"signParam"`
	SignToken    string            `yaml:"signToken"`
	CacheTTL     time.Duration     `yaml:"cacheTTL"`
	CacheBackend string            `yaml:"cacheBackend"` // none | memory | redis
}

type ProgressConfig struct {
	Backend string `yaml:"backend"` // memory | sqlite | redis | badger
	Dir     string `yaml:"dir"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // grpc | http
	Endpoint    string  `yaml:"endpoint"`
	SampleRate  float64 `yaml:"sampleRate"`
	Environment string  `yaml:"environment"`
}

// MockPrefix is where the daemon mounts the simulated backend.
const MockPrefix = "/mock"

// CatalogBaseURL is the catalog API root the daemon should talk to.
func (c AppConfig) CatalogBaseURL() string {
	if c.API.Mode == "mock" || c.API.BaseURL == "" {
		return c.Server.PublicURL + MockPrefix
	}
	return c.API.BaseURL
}

// ManifestBaseURL is the origin serving lesson manifests for the base strategy.
func (c AppConfig) ManifestBaseURL() string {
	if c.Manifest.BaseURL != "" {
		return c.Manifest.BaseURL
	}
	return c.CatalogBaseURL()
}
