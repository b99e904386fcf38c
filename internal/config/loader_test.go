// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/lessoncast/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lessoncast.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)

	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.Equal(t, ":8088", cfg.Server.ListenAddr)
	assert.Equal(t, "mock", cfg.API.Mode)
	assert.Equal(t, 3, cfg.Player.MaxRetries)
	assert.Equal(t, "include", cfg.Player.Credentials)
	assert.True(t, cfg.Player.Autoplay)
	assert.Equal(t, "base", cfg.Manifest.Strategy)
	assert.Equal(t, "http://127.0.0.1:8088/mock", cfg.CatalogBaseURL())
	assert.Equal(t, cfg.CatalogBaseURL(), cfg.ManifestBaseURL())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  publicUrl: http://lessons.local:9000/
log:
  level: debug
api:
  mode: live
  baseUrl: https://api.example.com
player:
  maxRetries: 5
  retryDelay: 250ms
  credentials: same-origin
manifest:
  strategy: direct
  direct:
    intro: https://cdn.example.com/intro/master.m3u8
`)
	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)

	assert.Equal(t, "http://lessons.local:9000", cfg.Server.PublicURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Player.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Player.RetryDelay)
	assert.Equal(t, "same-origin", cfg.Player.Credentials)
	assert.Equal(t, "https://api.example.com", cfg.CatalogBaseURL())
	assert.Equal(t, map[string]string{"intro": "https://cdn.example.com/intro/master.m3u8"}, cfg.Manifest.Direct)
	// untouched keys keep their defaults
	assert.Equal(t, 15*time.Second, cfg.Fetch.Timeout)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "player:\n  maxRetries: 5\n  autoplay: true\n")
	t.Setenv("LESSONCAST_PLAYER_MAX_RETRIES", "7")
	t.Setenv("LESSONCAST_PLAYER_AUTOPLAY", "no")
	t.Setenv("LESSONCAST_FETCH_SEGMENT_RATE", "12.5")
	t.Setenv("LESSONCAST_MANIFEST_STRATEGY", "direct")
	t.Setenv("LESSONCAST_MANIFEST_DIRECT", "a=https://cdn/a.m3u8, b=https://cdn/b.mp4")

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Player.MaxRetries)
	assert.False(t, cfg.Player.Autoplay)
	assert.InDelta(t, 12.5, cfg.Fetch.SegmentRate, 1e-9)
	assert.Equal(t, map[string]string{"a": "https://cdn/a.m3u8", "b": "https://cdn/b.mp4"}, cfg.Manifest.Direct)
}

func TestInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("LESSONCAST_PLAYER_MAX_RETRIES", "many")
	t.Setenv("LESSONCAST_FETCH_TIMEOUT", "soon")
	cfg, err := NewLoader("", "").Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Player.MaxRetries)
	assert.Equal(t, 15*time.Second, cfg.Fetch.Timeout)
}

func TestStrictFileParsing(t *testing.T) {
	t.Run("unknown field", func(t *testing.T) {
		_, err := NewLoader(writeConfig(t, "player:\n  retries: 3\n"), "").Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownConfigField)
	})
	t.Run("multiple documents", func(t *testing.T) {
		_, err := NewLoader(writeConfig(t, "log:\n  level: info\n---\nlog:\n  level: debug\n"), "").Load()
		assert.ErrorContains(t, err, "multiple documents")
	})
	t.Run("empty file", func(t *testing.T) {
		_, err := NewLoader(writeConfig(t, ""), "").Load()
		assert.NoError(t, err)
	})
	t.Run("not yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cfg.json")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
		_, err := NewLoader(path, "").Load()
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"), "").Load()
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.API.Mode = "live"
	cfg.Player.Credentials = "always"
	cfg.Player.MaxRetries = -1
	cfg.Manifest.Strategy = "signed"
	cfg.Progress.Backend = "redis"
	cfg.Log.Level = "loud"

	err := Validate(cfg)
	require.Error(t, err)
	var verr validate.ValidationError
	require.ErrorAs(t, err, &verr)

	fields := make([]string, 0, len(verr.Errors()))
	for _, e := range verr.Errors() {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{
		"log.level",
		"api.baseUrl",
		"player.maxRetries",
		"player.credentials",
		"manifest.signToken",
		"redis.addr",
	}, fields)
}

func TestValidateCreatesProgressDir(t *testing.T) {
	cfg := Defaults()
	cfg.Progress.Backend = "sqlite"
	cfg.Progress.Dir = filepath.Join(t.TempDir(), "progress")
	require.NoError(t, Validate(cfg))
	assert.DirExists(t, cfg.Progress.Dir)
}

func TestPlayerSurfaceSettings(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "memory", cfg.Player.Surface)

	cfg.Player.Surface = "disk"
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "player.surface")

	cfg.Player.Surface = "file"
	err = Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "player.offlineDir")

	dir := filepath.Join(t.TempDir(), "offline")
	t.Setenv("LESSONCAST_PLAYER_SURFACE", "file")
	t.Setenv("LESSONCAST_PLAYER_OFFLINE_DIR", dir)
	loaded, err := NewLoader("", "").Load()
	require.NoError(t, err)
	assert.Equal(t, "file", loaded.Player.Surface)
	assert.Equal(t, dir, loaded.Player.OfflineDir)
	assert.DirExists(t, dir)
}

func TestUnknownEnvKeys(t *testing.T) {
	l := NewLoader("", "")
	_, err := l.Load()
	require.NoError(t, err)

	unknown := l.UnknownEnvKeys([]string{
		"LESSONCAST_PLAYER_MAX_RETRIES=2",
		"LESSONCAST_PLAYER_MAXRETRIES=2",
		"HOME=/root",
	})
	assert.Equal(t, []string{"LESSONCAST_PLAYER_MAXRETRIES"}, unknown)
}
