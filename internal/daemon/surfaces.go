// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"path/filepath"
	"strings"

	"github.com/ManuGH/lessoncast/internal/config"
	"github.com/ManuGH/lessoncast/internal/surface"
)

const offlineExt = ".ts"

// surfaceFactory returns the playback surface constructor for a player.
func surfaceFactory(cfg config.PlayerConfig) func(playerID string) surface.Surface {
	if cfg.Surface != "file" {
		return func(string) surface.Surface { return surface.NewMemory() }
	}
	return func(playerID string) surface.Surface {
		return surface.NewFile(filepath.Join(cfg.OfflineDir, offlineName(playerID)+offlineExt))
	}
}

// offlineName maps a player ID onto a single safe path element.
func offlineName(playerID string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, playerID)
	if name == "" {
		return "player"
	}
	return name
}
