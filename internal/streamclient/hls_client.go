// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package streamclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/lessoncast/internal/fetch"
	"github.com/ManuGH/lessoncast/internal/hls"
	xglog "github.com/ManuGH/lessoncast/internal/log"
	"github.com/ManuGH/lessoncast/internal/surface"
	"github.com/rs/zerolog"
)

const (
	defaultFragRetries    = 2
	defaultFragRetryDelay = 500 * time.Millisecond
)

var (
	// ErrDestroyed is returned by operations on a destroyed client.
	ErrDestroyed = errors.New("streamclient: client destroyed")
	// ErrNoSurface is returned by Load when no surface is attached.
	ErrNoSurface = errors.New("streamclient: no surface attached")
	// ErrAlreadyLoading is returned by a second Load on the same handle.
	ErrAlreadyLoading = errors.New("streamclient: source already loading")
)

type command int

const (
	cmdStartLoad command = iota + 1
	cmdRecoverMedia
)

// HLSFactory builds HLSClient handles that share one fetcher.
type HLSFactory struct {
	Fetcher    fetch.Fetcher
	RetryDelay time.Duration
}

// New implements Factory.
func (f *HLSFactory) New(cfg Config, emit func(Event)) (Client, error) {
	if f.Fetcher == nil {
		return nil, errors.New("streamclient: factory has no fetcher")
	}
	return NewHLS(f.Fetcher, cfg, emit, f.RetryDelay), nil
}

// HLSClient loads one lesson sequentially: media playlist, then segments in order.
type HLSClient struct {
	fetcher    fetch.Fetcher
	cfg        Config
	emitFn     func(Event)
	retryDelay time.Duration
	logger     zerolog.Logger

	mu        sync.Mutex
	surface   surface.Surface
	started   bool
	destroyed bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	cmds      chan command

	// Loader state, touched only by the run goroutine.
	master  *hls.MasterPlaylist
	level   int
	media   *hls.MediaPlaylist
	next    int
	lastSeq int
	lastPDT time.Time
	pending *surface.Segment
}

// NewHLS creates an HLS client handle. retryDelay <= 0 selects the default.
func NewHLS(fetcher fetch.Fetcher, cfg Config, emit func(Event), retryDelay time.Duration) *HLSClient {
	if cfg.FragRetries < 0 {
		cfg.FragRetries = 0
	} else if cfg.FragRetries == 0 {
		cfg.FragRetries = defaultFragRetries
	}
	if retryDelay < 0 {
		retryDelay = 0
	} else if retryDelay == 0 {
		retryDelay = defaultFragRetryDelay
	}
	return &HLSClient{
		fetcher:    fetcher,
		cfg:        cfg,
		emitFn:     emit,
		retryDelay: retryDelay,
		logger:     xglog.WithComponent("streamclient"),
		cmds:       make(chan command, 1),
		lastSeq:    -1,
	}
}

// Attach implements Client.
func (c *HLSClient) Attach(s surface.Surface) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	c.surface = s
	return nil
}

// Load implements Client.
func (c *HLSClient) Load(ctx context.Context, master *hls.MasterPlaylist) error {
	if master == nil || len(master.Variants) == 0 {
		return hls.ErrNoVariants
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.destroyed:
		return ErrDestroyed
	case c.surface == nil:
		return ErrNoSurface
	case c.started:
		return ErrAlreadyLoading
	}

	c.master = master
	c.level = SelectLevel(master.Variants, c.cfg.MaxBandwidth)
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.done = make(chan struct{})
	c.started = true

	c.emit(Event{Kind: EventManifestParsed, Levels: append([]hls.Variant(nil), master.Variants...)})
	go c.run(c.ctx, c.surface)
	return nil
}

// StartLoad implements Client.
func (c *HLSClient) StartLoad() { c.send(cmdStartLoad) }

// RecoverMediaError implements Client.
func (c *HLSClient) RecoverMediaError() { c.send(cmdRecoverMedia) }

func (c *HLSClient) send(cmd command) {
	select {
	case c.cmds <- cmd:
	default:
	}
}

// Destroy implements Client.
func (c *HLSClient) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	cancel, done := c.cancel, c.done
	c.surface = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *HLSClient) emit(ev Event) {
	if c.ctx != nil && c.ctx.Err() != nil {
		return
	}
	c.emitFn(ev)
}

func (c *HLSClient) run(ctx context.Context, s surface.Surface) {
	defer close(c.done)

	for {
		fault := c.load(ctx, s)
		if ctx.Err() != nil {
			return
		}
		if fault == nil {
			if err := s.EndOfStream(); err != nil && ctx.Err() == nil {
				c.logger.Warn().Err(err).Str(xglog.FieldEvent, "client.eos_failed").Msg("end of stream failed")
			}
			c.emit(Event{Kind: EventEnded})
			return
		}

		// Commands issued before this fault must not resume it.
		select {
		case <-c.cmds:
		default:
		}
		c.emit(Event{Kind: EventFault, Fault: fault})

		select {
		case <-ctx.Done():
			return
		case cmd := <-c.cmds:
			if cmd == cmdRecoverMedia {
				if err := s.Reset(); err != nil {
					c.emit(Event{Kind: EventFault, Fault: &Fault{Type: FaultMedia, Details: "mediaResetError", Fatal: true, Err: err}})
					return
				}
			}
		}
	}
}

// load runs until the stream ended (nil), a fatal fault occurred, or ctx is done.
func (c *HLSClient) load(ctx context.Context, s surface.Surface) *Fault {
	if c.media == nil {
		if f := c.loadLevel(ctx, s); f != nil || c.media == nil {
			return f
		}
	}

	for ctx.Err() == nil {
		if c.pending != nil {
			if f := c.appendPending(s); f != nil {
				return f
			}
		}
		if c.next < len(c.media.Segments) {
			seg := c.media.Segments[c.next]
			data, f := c.fetchFragment(ctx, seg)
			if f != nil || data == nil {
				return f
			}
			c.pending = &surface.Segment{Sequence: seg.Sequence, Data: data, Duration: seg.Duration}
			continue
		}
		if c.media.Ended || c.media.TypeVOD {
			return nil
		}
		if f := c.refreshLive(ctx); f != nil {
			return f
		}
	}
	return nil
}

func (c *HLSClient) loadLevel(ctx context.Context, s surface.Surface) *Fault {
	variant := c.master.Variants[c.level]
	pl, truth, f := c.fetchPlaylist(ctx, variant.URI)
	if f != nil || pl == nil {
		return f
	}
	c.media = pl
	c.next = 0
	c.lastPDT = truth.LastPDT
	s.SetDuration(truth.TotalDuration)

	c.logger.Debug().
		Str(xglog.FieldEvent, "client.level_loaded").
		Int(xglog.FieldLevel, c.level).
		Int(xglog.FieldBandwidth, variant.Bandwidth).
		Str(xglog.FieldResolution, variant.Resolution).
		Int("segments", len(pl.Segments)).
		Msg("media playlist loaded")
	c.emit(Event{Kind: EventLevelSwitched, Level: c.level})
	return nil
}

func (c *HLSClient) refreshLive(ctx context.Context) *Fault {
	wait := c.media.TargetDuration
	if wait <= 0 {
		wait = time.Second
	}
	timer := time.NewTimer(wait)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil
	case <-timer.C:
	}

	pl, truth, f := c.fetchPlaylist(ctx, c.media.URL)
	if f != nil || pl == nil {
		return f
	}
	if truth.HasPDT && truth.LastPDT.Before(c.lastPDT) {
		return &Fault{
			Type:    FaultOther,
			Details: "levelTimelineError",
			Fatal:   true,
			Err:     fmt.Errorf("live playlist went back in time: %s < %s", truth.LastPDT.Format(time.RFC3339), c.lastPDT.Format(time.RFC3339)),
		}
	}
	if truth.HasPDT {
		c.lastPDT = truth.LastPDT
	}
	c.media = pl
	c.next = len(pl.Segments)
	for i, seg := range pl.Segments {
		if seg.Sequence > c.lastSeq {
			c.next = i
			break
		}
	}
	return nil
}

// fetchPlaylist loads a media playlist and checks its timeline.
func (c *HLSClient) fetchPlaylist(ctx context.Context, uri string) (*hls.MediaPlaylist, *hls.SegmentTruth, *Fault) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.FragRetries; attempt++ {
		if attempt > 0 && !c.sleep(ctx, attempt) {
			return nil, nil, nil
		}
		body, err := c.fetcher.FetchText(ctx, uri, c.cfg.Credentials)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, nil
			}
			if errors.Is(err, fetch.ErrInvalidURL) {
				return nil, nil, &Fault{Type: FaultOther, Details: "levelLoadError", Fatal: true, Err: err}
			}
			lastErr = err
			if attempt < c.cfg.FragRetries {
				c.emit(Event{Kind: EventFault, Fault: &Fault{Type: FaultNetwork, Details: "levelLoadError", Err: err}})
			}
			continue
		}
		pl, err := hls.ParseMedia(body, uri)
		if err != nil {
			return nil, nil, &Fault{Type: FaultOther, Details: "levelParsingError", Fatal: true, Err: err}
		}
		truth, err := pl.Truth()
		if err != nil {
			return nil, nil, &Fault{Type: FaultOther, Details: "levelTimelineError", Fatal: true, Err: err}
		}
		return pl, truth, nil
	}
	return nil, nil, &Fault{Type: FaultNetwork, Details: "levelLoadError", Fatal: true, Err: lastErr}
}

func (c *HLSClient) fetchFragment(ctx context.Context, seg hls.Segment) ([]byte, *Fault) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.FragRetries; attempt++ {
		if attempt > 0 && !c.sleep(ctx, attempt) {
			return nil, nil
		}
		data, err := c.fetcher.FetchBytes(ctx, seg.URI, c.cfg.Credentials)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, nil
		}
		if errors.Is(err, fetch.ErrInvalidURL) {
			return nil, &Fault{Type: FaultOther, Details: "fragLoadError", Fatal: true, Err: err}
		}
		lastErr = err
		if attempt < c.cfg.FragRetries {
			c.emit(Event{Kind: EventFault, Fault: &Fault{
				Type:    FaultNetwork,
				Details: fmt.Sprintf("fragLoadError sn=%d attempt=%d", seg.Sequence, attempt+1),
				Err:     err,
			}})
		}
	}
	return nil, &Fault{Type: FaultNetwork, Details: "fragLoadError", Fatal: true, Err: lastErr}
}

func (c *HLSClient) appendPending(s surface.Surface) *Fault {
	seg := *c.pending
	if err := s.AppendSegment(seg); err != nil {
		if errors.Is(err, surface.ErrDecode) {
			return &Fault{Type: FaultMedia, Details: "bufferAppendError", Fatal: true, Err: err}
		}
		return &Fault{Type: FaultOther, Details: "bufferAppendingError", Fatal: true, Err: err}
	}
	c.pending = nil
	c.next++
	c.lastSeq = seg.Sequence
	c.emit(Event{Kind: EventFragBuffered, Fragment: seg.Sequence})
	return nil
}

// sleep backs off linearly; false means ctx ended.
func (c *HLSClient) sleep(ctx context.Context, attempt int) bool {
	if c.retryDelay == 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(time.Duration(attempt) * c.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
