// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package player implements the streaming lesson player: one playback
// session at a time, driven by a single event loop through an explicit
// state machine, with a bounded retry policy for recoverable faults.
package player

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/lessoncast/internal/bus"
	"github.com/ManuGH/lessoncast/internal/fetch"
	xglog "github.com/ManuGH/lessoncast/internal/log"
	"github.com/ManuGH/lessoncast/internal/manifest"
	"github.com/ManuGH/lessoncast/internal/progress"
	"github.com/ManuGH/lessoncast/internal/streamclient"
	"github.com/ManuGH/lessoncast/internal/surface"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultProgressInterval = 5 * time.Second
	defaultPublishTimeout   = 100 * time.Millisecond
	progressWriteTimeout    = 2 * time.Second
)

// Config tunes the retry policy and client parameters of a player.
type Config struct {
	// MaxRetries bounds network-fault resumes per session; 0 selects DefaultMaxRetries.
	MaxRetries int
	// RetryDelay postpones each resume; 0 resumes immediately.
	RetryDelay time.Duration
	// Credentials is the default fetch policy for sessions that set none.
	Credentials fetch.CredentialsMode
	// MaxBandwidth caps level selection in bits/s; 0 = no cap.
	MaxBandwidth int
	// FragRetries is handed to the streaming client.
	FragRetries int
	// ProgressInterval throttles progress writes.
	ProgressInterval time.Duration
	// PublishTimeout bounds a status publish to a slow bus subscriber.
	PublishTimeout time.Duration
}

// Deps are the collaborators of a player. Resolver and Fetcher are required.
// Without Clients only natively playable sources work; without Surface every
// session fails immediately.
type Deps struct {
	Resolver manifest.Resolver
	Fetcher  fetch.Fetcher
	Clients  streamclient.Factory
	Surface  surface.Surface
	Progress progress.Store
	Bus      bus.Bus
	Now      func() time.Time
}

// Player owns at most one live session and serializes every event for it.
type Player struct {
	id     string
	cfg    Config
	deps   Deps
	logger zerolog.Logger

	box       *mailbox
	done      chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup

	obsMu     sync.Mutex
	observers map[int]func(Status)
	nextObs   int

	latest atomic.Pointer[Status]

	// Loop-owned.
	cur  *session
	last *session
}

// New starts a player and its event loop. Close releases it.
func New(id string, cfg Config, deps Deps) (*Player, error) {
	if deps.Resolver == nil {
		return nil, errors.New("player: resolver is required")
	}
	if deps.Fetcher == nil {
		return nil, errors.New("player: fetcher is required")
	}
	if id == "" {
		id = uuid.NewString()
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Credentials == "" {
		cfg.Credentials = fetch.CredentialsInclude
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaultProgressInterval
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	p := &Player{
		id:        id,
		cfg:       cfg,
		deps:      deps,
		logger:    xglog.WithComponent("player").With().Str(xglog.FieldPlayerID, id).Logger(),
		box:       newMailbox(),
		done:      make(chan struct{}),
		observers: make(map[int]func(Status)),
	}
	p.latest.Store(&Status{PlayerID: id, State: StateIdle, MaxRetries: cfg.MaxRetries})
	go p.run()
	return p, nil
}

// ID returns the player ID.
func (p *Player) ID() string { return p.id }

// StartSession discards the current session, if any, and starts a fresh one
// for ref. It returns immediately; progress is observable through the handle,
// Status and Subscribe.
func (p *Player) StartSession(ctx context.Context, ref string, opts SessionOptions) (*SessionHandle, error) {
	norm, err := manifest.NormalizeRef(ref)
	if err != nil {
		return nil, err
	}
	if opts.Credentials == "" {
		opts.Credentials = p.cfg.Credentials
	}
	h := newHandle(p, uuid.NewString(), norm)
	if !p.box.put(startCmd{handle: h, opts: opts, logCtx: ctx}) {
		return nil, ErrPlayerClosed
	}
	return h, nil
}

// Retry starts a fresh session for the lesson and options of the most
// recent session.
func (p *Player) Retry(ctx context.Context) (*SessionHandle, error) {
	reply := make(chan lastSession, 1)
	if !p.box.put(lastCmd{reply: reply}) {
		return nil, ErrPlayerClosed
	}
	var last lastSession
	select {
	case last = <-reply:
	case <-p.done:
		return nil, ErrPlayerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if last.ref == "" {
		return nil, ErrNoSession
	}
	return p.StartSession(ctx, last.ref, last.opts)
}

// DestroySession releases the current session's client and surface. It
// blocks until the release happened and is safe to call repeatedly.
// It must not be called from an observer callback.
func (p *Player) DestroySession() {
	p.destroy("")
}

func (p *Player) destroy(sessionID string) {
	reply := make(chan struct{})
	if !p.box.put(destroyCmd{sessionID: sessionID, reply: reply}) {
		return
	}
	select {
	case <-reply:
	case <-p.done:
	}
}

// Status returns the latest snapshot of the current session.
func (p *Player) Status() Status {
	return *p.latest.Load()
}

// Subscribe registers fn for every published status. Callbacks run on the
// player loop in publish order and must not block or call back into the
// player. The returned function unregisters fn.
func (p *Player) Subscribe(fn func(Status)) func() {
	p.obsMu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.obsMu.Unlock()

	return func() {
		p.obsMu.Lock()
		delete(p.observers, id)
		p.obsMu.Unlock()
	}
}

// Flush returns after every event queued before the call was processed.
func (p *Player) Flush() {
	reply := make(chan struct{})
	if !p.box.put(flushCmd{reply: reply}) {
		return
	}
	select {
	case <-reply:
	case <-p.done:
	}
}

// Close destroys the current session, stops the loop and waits for
// background work. Idempotent.
func (p *Player) Close() error {
	p.closeOnce.Do(func() {
		p.closing.Store(true)
		p.box.put(closeCmd{})
		<-p.done
		p.wg.Wait()
	})
	return nil
}

// Done is closed when the player loop stopped.
func (p *Player) Done() <-chan struct{} { return p.done }

// post is used by callbacks; stale or post-close events are dropped silently.
func (p *Player) post(ev any) {
	p.box.put(ev)
}

// Topic is the bus topic carrying status updates of player id.
func Topic(id string) string { return "player/" + id }
