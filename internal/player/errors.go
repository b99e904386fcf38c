// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind classifies terminal playback errors.
type ErrorKind string

const (
	KindManifestResolution ErrorKind = "ManifestResolutionError"
	KindNetwork            ErrorKind = "NetworkFault"
	KindMedia              ErrorKind = "MediaFault"
	KindUnsupportedFormat  ErrorKind = "UnsupportedFormatError"
	KindUnclassified       ErrorKind = "UnclassifiedFatalFault"
)

var (
	// ErrPlayerClosed is returned by operations on a closed player.
	ErrPlayerClosed = errors.New("player: closed")
	// ErrNoSession is returned by Retry before any session was started.
	ErrNoSession = errors.New("player: no session")
	// ErrPlayerLimit is returned by Registry.GetOrCreate when the registry is full.
	ErrPlayerLimit = errors.New("player: limit reached")
)

// PlaybackError is the terminal error of a failed session. Every terminal
// error can be retried by starting a fresh session for the same lesson.
type PlaybackError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func newPlaybackError(kind ErrorKind, err error, format string, args ...any) *PlaybackError {
	return &PlaybackError{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

func (e *PlaybackError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// Is matches another *PlaybackError of the same kind.
func (e *PlaybackError) Is(target error) bool {
	t, ok := target.(*PlaybackError)
	return ok && t.Kind == e.Kind && t.Detail == "" && t.Err == nil
}

// MarshalJSON renders the caller-facing error panel payload.
func (e *PlaybackError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind      ErrorKind `json:"kind"`
		Detail    string    `json:"detail"`
		Retryable bool      `json:"retryable"`
	}{e.Kind, e.Detail, true})
}

// KindOf returns the kind of a PlaybackError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var pe *PlaybackError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
