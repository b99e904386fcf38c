// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package surface provides playback surfaces: the sink a streaming session
// renders into. A surface is owned by at most one session at a time.
package surface

import (
	"bytes"
	"errors"
	"time"
)

var (
	// ErrAttached is returned when a surface already has an owner.
	ErrAttached = errors.New("surface: already attached")
	// ErrDetached is returned for operations on a surface without an owner.
	ErrDetached = errors.New("surface: not attached")
	// ErrDecode reports media that the decode pipeline cannot consume.
	ErrDecode = errors.New("surface: decode error")
	// ErrNotSupported is returned by SetSource when native playback is unavailable.
	ErrNotSupported = errors.New("surface: native playback not supported")
)

// EventKind tags surface notifications.
type EventKind int

const (
	EventMetadataLoaded EventKind = iota + 1
	EventTimeUpdate
	EventEnded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventMetadataLoaded:
		return "metadata_loaded"
	case EventTimeUpdate:
		return "time_update"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a notification emitted by a surface to its owner.
type Event struct {
	Kind     EventKind
	Position time.Duration
	Duration time.Duration
	Err      error
}

// Segment is a unit of media appended to the decode pipeline.
type Segment struct {
	Sequence int
	Data     []byte
	Duration time.Duration
}

// Surface is the playback surface capability consumed by the player.
type Surface interface {
	// CanPlayNative reports whether the surface plays mime without a streaming client.
	CanPlayNative(mime string) bool
	// Attach hands ownership to a session; notify receives all events until Detach.
	Attach(notify func(Event)) error
	// Detach releases ownership and drops buffered state. Idempotent.
	Detach()
	// SetSource starts native playback of url.
	SetSource(url string) error
	// SetDuration announces the total presentation length.
	SetDuration(d time.Duration)
	// AppendSegment feeds media into the decode pipeline.
	AppendSegment(seg Segment) error
	// Reset recreates the decode pipeline, keeping the playback position.
	Reset() error
	// EndOfStream signals that no more segments follow.
	EndOfStream() error
	Play() error
	Pause() error
	Seek(pos time.Duration) error
}

// Sniff reports whether data looks like a decodable container:
// MPEG-TS (0x47 sync byte) or fragmented MP4 (ftyp/styp/moof box).
func Sniff(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if data[0] == 0x47 {
		return len(data) < 189 || data[188] == 0x47
	}
	if len(data) >= 8 {
		box := data[4:8]
		return bytes.Equal(box, []byte("ftyp")) || bytes.Equal(box, []byte("styp")) || bytes.Equal(box, []byte("moof"))
	}
	return false
}
