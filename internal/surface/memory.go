// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package surface

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process surface. Appended media counts as played while the
// surface is playing, so time updates track the buffered position. A seek
// ahead of the buffer holds the playhead until the buffer catches up.
type Memory struct {
	mu       sync.Mutex
	native   map[string]bool
	notify   func(Event)
	source   string
	duration time.Duration
	buffered time.Duration
	position time.Duration
	playing  bool
	metadata bool
	broken   bool
	segments int
	resets   int
	validate func([]byte) bool
}

// MemoryOption configures a Memory surface.
type MemoryOption func(*Memory)

// WithNativeTypes marks mime types the surface plays without a streaming client.
func WithNativeTypes(mimes ...string) MemoryOption {
	return func(m *Memory) {
		for _, t := range mimes {
			m.native[strings.ToLower(t)] = true
		}
	}
}

// WithValidator replaces the container sniffer.
func WithValidator(fn func([]byte) bool) MemoryOption {
	return func(m *Memory) { m.validate = fn }
}

// NewMemory creates an in-memory surface.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{native: make(map[string]bool), validate: Sniff}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) CanPlayNative(mime string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.native[strings.ToLower(mime)]
}

func (m *Memory) Attach(notify func(Event)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notify != nil {
		return ErrAttached
	}
	m.notify = notify
	m.resetLocked()
	return nil
}

func (m *Memory) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notify = nil
	m.resetLocked()
}

func (m *Memory) resetLocked() {
	m.source = ""
	m.duration = 0
	m.buffered = 0
	m.position = 0
	m.playing = false
	m.metadata = false
	m.broken = false
	m.segments = 0
	m.resets = 0
}

func (m *Memory) SetSource(url string) error {
	m.mu.Lock()
	if m.notify == nil {
		m.mu.Unlock()
		return ErrDetached
	}
	if len(m.native) == 0 {
		m.mu.Unlock()
		return ErrNotSupported
	}
	m.source = url
	m.metadata = true
	ev := Event{Kind: EventMetadataLoaded, Duration: m.duration}
	notify := m.notify
	m.mu.Unlock()

	notify(ev)
	return nil
}

func (m *Memory) SetDuration(d time.Duration) {
	m.mu.Lock()
	m.duration = d
	m.mu.Unlock()
}

func (m *Memory) AppendSegment(seg Segment) error {
	m.mu.Lock()
	if m.notify == nil {
		m.mu.Unlock()
		return ErrDetached
	}
	if m.broken {
		m.mu.Unlock()
		return fmt.Errorf("%w: pipeline needs reset", ErrDecode)
	}
	if !m.validate(seg.Data) {
		m.broken = true
		m.mu.Unlock()
		return fmt.Errorf("%w: segment %d is not a recognised container", ErrDecode, seg.Sequence)
	}

	var events []Event
	m.segments++
	m.buffered += seg.Duration
	if !m.metadata {
		m.metadata = true
		events = append(events, Event{Kind: EventMetadataLoaded, Duration: m.duration})
	}
	if m.playing {
		m.position = max(m.position, m.buffered)
		events = append(events, Event{Kind: EventTimeUpdate, Position: m.position, Duration: m.duration})
	}
	notify := m.notify
	m.mu.Unlock()

	for _, ev := range events {
		notify(ev)
	}
	return nil
}

func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notify == nil {
		return ErrDetached
	}
	m.broken = false
	m.resets++
	return nil
}

func (m *Memory) EndOfStream() error {
	m.mu.Lock()
	if m.notify == nil {
		m.mu.Unlock()
		return ErrDetached
	}
	ev := Event{Kind: EventEnded, Position: m.buffered, Duration: m.duration}
	notify := m.notify
	m.mu.Unlock()

	notify(ev)
	return nil
}

func (m *Memory) Play() error {
	m.mu.Lock()
	if m.notify == nil {
		m.mu.Unlock()
		return ErrDetached
	}
	m.playing = true
	m.position = max(m.position, m.buffered)
	ev := Event{Kind: EventTimeUpdate, Position: m.position, Duration: m.duration}
	notify := m.notify
	m.mu.Unlock()

	notify(ev)
	return nil
}

func (m *Memory) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notify == nil {
		return ErrDetached
	}
	m.playing = false
	return nil
}

func (m *Memory) Seek(pos time.Duration) error {
	m.mu.Lock()
	if m.notify == nil {
		m.mu.Unlock()
		return ErrDetached
	}
	if pos < 0 {
		pos = 0
	}
	if m.duration > 0 && pos > m.duration {
		pos = m.duration
	}
	m.position = pos
	ev := Event{Kind: EventTimeUpdate, Position: pos, Duration: m.duration}
	notify := m.notify
	m.mu.Unlock()

	notify(ev)
	return nil
}

// Stats is a snapshot used by diagnostics and tests.
type Stats struct {
	Attached bool
	Source   string
	Segments int
	Resets   int
	Buffered time.Duration
	Position time.Duration
	Playing  bool
}

// Stats returns a snapshot of the surface.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Attached: m.notify != nil,
		Source:   m.source,
		Segments: m.segments,
		Resets:   m.resets,
		Buffered: m.buffered,
		Position: m.position,
		Playing:  m.playing,
	}
}
