// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package streamclient is the adaptive-streaming client: it selects a quality
// level, loads media playlists and feeds segments into a surface, reporting
// progress and classified faults through an event callback.
package streamclient

import (
	"context"

	"github.com/ManuGH/lessoncast/internal/fetch"
	"github.com/ManuGH/lessoncast/internal/hls"
	"github.com/ManuGH/lessoncast/internal/surface"
)

// FaultType classifies client errors.
type FaultType string

const (
	FaultNetwork FaultType = "network"
	FaultMedia   FaultType = "media"
	FaultOther   FaultType = "other"
)

// EventKind tags client events.
type EventKind int

const (
	EventManifestParsed EventKind = iota + 1
	EventLevelSwitched
	EventFragBuffered
	EventEnded
	EventFault
)

func (k EventKind) String() string {
	switch k {
	case EventManifestParsed:
		return "manifest_parsed"
	case EventLevelSwitched:
		return "level_switched"
	case EventFragBuffered:
		return "frag_buffered"
	case EventEnded:
		return "ended"
	case EventFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Fault describes a client error.
type Fault struct {
	Type    FaultType
	Details string // short machine-readable detail, e.g. "fragLoadError"
	Fatal   bool
	Err     error
}

// Event is emitted by a client in the order things happen.
type Event struct {
	Kind     EventKind
	Levels   []hls.Variant // ManifestParsed
	Level    int           // LevelSwitched
	Fragment int           // FragBuffered: media sequence number
	Fault    *Fault        // Fault
}

// Client is an adaptive-streaming client handle. A handle is owned by exactly
// one playback session and is unusable after Destroy.
type Client interface {
	// Attach binds the surface the client appends media to.
	Attach(s surface.Surface) error
	// Load starts loading the given master playlist.
	Load(ctx context.Context, master *hls.MasterPlaylist) error
	// StartLoad resumes loading after a fatal network fault.
	StartLoad()
	// RecoverMediaError recreates the decode pipeline and re-appends the
	// current fragment without re-fetching the manifest.
	RecoverMediaError()
	// Destroy stops all loading and releases the surface. Idempotent.
	Destroy()
}

// Config configures a client.
type Config struct {
	Credentials  fetch.CredentialsMode
	MaxBandwidth int // level cap in bits/s, 0 = no cap
	FragRetries  int // internal per-fragment retries before a fatal network fault
}

// Factory builds a client handle that reports through emit.
type Factory interface {
	New(cfg Config, emit func(Event)) (Client, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(cfg Config, emit func(Event)) (Client, error)

// New implements Factory.
func (f FactoryFunc) New(cfg Config, emit func(Event)) (Client, error) { return f(cfg, emit) }

// SelectLevel picks the highest-bandwidth variant under maxBandwidth, or the
// lowest variant when every level exceeds the cap.
func SelectLevel(variants []hls.Variant, maxBandwidth int) int {
	best, lowest := -1, 0
	for i, v := range variants {
		if v.Bandwidth < variants[lowest].Bandwidth {
			lowest = i
		}
		if maxBandwidth > 0 && v.Bandwidth > maxBandwidth {
			continue
		}
		if best < 0 || v.Bandwidth > variants[best].Bandwidth {
			best = i
		}
	}
	if best < 0 {
		return lowest
	}
	return best
}
