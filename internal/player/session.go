// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/lessoncast/internal/fetch"
	"github.com/ManuGH/lessoncast/internal/hls"
	"github.com/ManuGH/lessoncast/internal/manifest"
	"github.com/ManuGH/lessoncast/internal/streamclient"
	"github.com/rs/zerolog"
)

// SessionOptions parameterize one playback session.
type SessionOptions struct {
	Autoplay bool
	// Credentials applies to manifest and segment fetches; empty selects the player default.
	Credentials fetch.CredentialsMode
	// Principal owns the progress record; empty disables progress tracking.
	Principal string
}

// session is owned by the player loop; no other goroutine touches it.
type session struct {
	id     string
	ref    string
	opts   SessionOptions
	state  State
	err    *PlaybackError
	budget RetryBudget
	handle *SessionHandle
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer

	attached bool
	client   streamclient.Client
	source   manifest.Source
	master   *hls.MasterPlaylist
	path     string

	mediaRecovering bool
	mediaRecoveries int
	everReady       bool
	startedAt       time.Time
	resumeAt        time.Duration

	level     int
	bandwidth int
	fragments int
	position  time.Duration
	duration  time.Duration
	ended     bool
	savedAt   time.Duration
}

func (s *session) live() bool { return !s.state.IsTerminal() }

// after arms f to run once d has elapsed, replacing any pending timer.
func (s *session) after(d time.Duration, f func()) {
	s.stopTimer()
	s.timer = time.AfterFunc(d, f)
}

func (s *session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// SessionHandle is the caller's view of one session.
type SessionHandle struct {
	id     string
	ref    string
	player *Player
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	status Status
}

func newHandle(p *Player, id, ref string) *SessionHandle {
	return &SessionHandle{
		id:     id,
		ref:    ref,
		player: p,
		done:   make(chan struct{}),
		status: Status{PlayerID: p.id, SessionID: id, LessonRef: ref, State: StateIdle, Loading: true, MaxRetries: p.cfg.MaxRetries},
	}
}

// ID returns the session ID.
func (h *SessionHandle) ID() string { return h.id }

// LessonRef returns the normalized lesson reference of the session.
func (h *SessionHandle) LessonRef() string { return h.ref }

// Status returns the latest snapshot of this session.
func (h *SessionHandle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Done is closed once the session reached a terminal state.
func (h *SessionHandle) Done() <-chan struct{} { return h.done }

// Err returns the terminal error of a failed session, or nil.
func (h *SessionHandle) Err() error {
	if st := h.Status(); st.Error != nil {
		return st.Error
	}
	return nil
}

// Wait blocks until the session is terminal or ctx ends.
func (h *SessionHandle) Wait(ctx context.Context) (Status, error) {
	select {
	case <-h.done:
		return h.Status(), nil
	case <-ctx.Done():
		return h.Status(), ctx.Err()
	}
}

// Cancel destroys the session if it is still the player's current one.
func (h *SessionHandle) Cancel() {
	h.player.destroy(h.id)
}

func (h *SessionHandle) update(st Status) {
	h.mu.Lock()
	h.status = st
	h.mu.Unlock()
	if st.State.IsTerminal() {
		h.once.Do(func() { close(h.done) })
	}
}
