// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import "time"

// Playback paths.
const (
	PathClient = "client"
	PathNative = "native"
)

// Status is an immutable snapshot of a player's current session.
type Status struct {
	PlayerID        string         `json:"player_id"`
	SessionID       string         `json:"session_id,omitempty"`
	LessonRef       string         `json:"lesson_ref,omitempty"`
	State           State          `json:"state"`
	Loading         bool           `json:"loading"`
	Error           *PlaybackError `json:"error,omitempty"`
	Retries         int            `json:"retries"`
	MaxRetries      int            `json:"max_retries"`
	MediaRecoveries int            `json:"media_recoveries"`
	Path            string         `json:"path,omitempty"`
	Level           int            `json:"level"`
	Bandwidth       int            `json:"bandwidth,omitempty"`
	Fragments       int            `json:"fragments"`
	PositionSeconds float64        `json:"position_seconds"`
	DurationSeconds float64        `json:"duration_seconds,omitempty"`
	Ended           bool           `json:"ended,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
