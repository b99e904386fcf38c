// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import "time"

// Defaults returns the configuration used when neither file nor environment
// set a value.
func Defaults() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			ListenAddr:      ":8088",
			PublicURL:       "http://127.0.0.1:8088",
			RateLimit:       600,
			ShutdownTimeout: 10 * time.Second,
			MaxPlayers:      256,
		},
		Log: LogConfig{Level: "info", Service: "lessoncast"},
		API: APIConfig{Mode: "mock", Timeout: 10 * time.Second},
		Player: PlayerConfig{
			MaxRetries:       3,
			Credentials:      "include",
			Autoplay:         true,
			FragRetries:      2,
			ProgressInterval: 5 * time.Second,
			Surface:          "memory",
		},
		Fetch: FetchConfig{
			Timeout:          15 * time.Second,
			SegmentBurst:     4,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Manifest: ManifestConfig{
			Strategy:     "base",
			SignParam:    "sig",
			CacheTTL:     5 * time.Minute,
			CacheBackend: "memory",
		},
		Progress: ProgressConfig{Backend: "memory"},
		Telemetry: TelemetryConfig{
			Exporter:    "grpc",
			Endpoint:    "localhost:4317",
			SampleRate:  1.0,
			Environment: "development",
		},
	}
}
