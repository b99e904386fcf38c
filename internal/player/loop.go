// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/lessoncast/internal/fetch"
	"github.com/ManuGH/lessoncast/internal/hls"
	xglog "github.com/ManuGH/lessoncast/internal/log"
	"github.com/ManuGH/lessoncast/internal/manifest"
	"github.com/ManuGH/lessoncast/internal/metrics"
	"github.com/ManuGH/lessoncast/internal/progress"
	"github.com/ManuGH/lessoncast/internal/streamclient"
	"github.com/ManuGH/lessoncast/internal/surface"
	"github.com/ManuGH/lessoncast/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Commands.
type (
	startCmd struct {
		handle *SessionHandle
		opts   SessionOptions
		logCtx context.Context
	}
	destroyCmd struct {
		sessionID string // empty: current session
		reply     chan struct{}
	}
	flushCmd struct{ reply chan struct{} }
	lastCmd  struct{ reply chan lastSession }
	closeCmd struct{}
)

type lastSession struct {
	ref  string
	opts SessionOptions
}

// Session scoped events. sid identifies the session that produced them.
type (
	probeResult struct {
		sid      string
		source   manifest.Source
		master   *hls.MasterPlaylist
		resumeAt time.Duration
		err      error
	}
	clientEvent struct {
		sid string
		ev  streamclient.Event
	}
	surfaceEvent struct {
		sid string
		ev  surface.Event
	}
	resumeDue  struct{ sid string }
	reprobeDue struct{ sid string }
)

func (p *Player) run() {
	defer close(p.done)
	for range p.box.signal {
		for _, ev := range p.box.take() {
			if !p.handle(ev) {
				p.shutdown()
				return
			}
		}
	}
}

func (p *Player) shutdown() {
	if p.cur != nil && p.cur.live() {
		p.finish(p.cur, EvDestroy, nil)
	}
	for _, ev := range p.box.close() {
		switch c := ev.(type) {
		case destroyCmd:
			close(c.reply)
		case flushCmd:
			close(c.reply)
		case lastCmd:
			c.reply <- lastSession{}
		}
	}
}

// handle processes one event; false stops the loop.
func (p *Player) handle(ev any) bool {
	switch e := ev.(type) {
	case startCmd:
		p.start(e)
	case destroyCmd:
		if s := p.cur; s != nil && s.live() && (e.sessionID == "" || e.sessionID == s.id) {
			p.finish(s, EvDestroy, nil)
		}
		close(e.reply)
	case flushCmd:
		close(e.reply)
	case lastCmd:
		var last lastSession
		if p.last != nil {
			last = lastSession{ref: p.last.ref, opts: p.last.opts}
		}
		e.reply <- last
	case closeCmd:
		return false
	case probeResult:
		if s := p.session(e.sid); s != nil && s.state == StateIdle {
			p.onProbe(s, e)
		}
	case reprobeDue:
		if s := p.session(e.sid); s != nil && s.state == StateIdle {
			p.probe(s)
		}
	case resumeDue:
		if s := p.session(e.sid); s != nil && s.state == StateRecovering && s.client != nil {
			s.client.StartLoad()
		}
	case clientEvent:
		if s := p.session(e.sid); s != nil && s.client != nil {
			p.onClientEvent(s, e.ev)
		}
	case surfaceEvent:
		if s := p.session(e.sid); s != nil {
			p.onSurfaceEvent(s, e.ev)
		}
	}
	return true
}

// session returns the current session if sid names it and it is still live.
func (p *Player) session(sid string) *session {
	if s := p.cur; s != nil && s.id == sid && s.live() {
		return s
	}
	return nil
}

func (p *Player) start(cmd startCmd) {
	if prev := p.cur; prev != nil && prev.live() {
		p.finish(prev, EvDestroy, nil)
	}

	h := cmd.handle
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:        h.id,
		ref:       h.ref,
		opts:      cmd.opts,
		state:     StateIdle,
		budget:    NewRetryBudget(p.cfg.MaxRetries),
		handle:    h,
		ctx:       ctx,
		cancel:    cancel,
		startedAt: p.deps.Now(),
		logger: xglog.WithComponentFromContext(cmd.logCtx, "player").With().
			Str(xglog.FieldPlayerID, p.id).
			Str(xglog.FieldSessionID, h.id).
			Str(xglog.FieldLessonRef, h.ref).
			Logger(),
	}
	s.ctx = xglog.ContextWithSessionID(s.ctx, s.id)
	p.cur, p.last = s, s
	metrics.ActiveSessions.Inc()

	s.logger.Info().
		Str(xglog.FieldEvent, "player.session_started").
		Bool("autoplay", s.opts.Autoplay).
		Str("credentials", string(s.opts.Credentials)).
		Msg("playback session started")
	p.publish(s)

	if p.deps.Surface == nil {
		p.fail(s, newPlaybackError(KindUnclassified, nil, "no playback surface"))
		return
	}
	sid := s.id
	if err := p.deps.Surface.Attach(func(ev surface.Event) { p.post(surfaceEvent{sid: sid, ev: ev}) }); err != nil {
		p.fail(s, newPlaybackError(KindUnclassified, err, "playback surface unavailable"))
		return
	}
	s.attached = true
	p.probe(s)
}

// probe resolves the manifest and, for HLS, fetches the master playlist off
// the loop. The result comes back as a probeResult.
func (p *Player) probe(s *session) {
	if p.closing.Load() {
		return
	}
	p.wg.Add(1)
	go func(ctx context.Context, sid, ref string, opts SessionOptions) {
		defer p.wg.Done()
		ctx, span := telemetry.Tracer("lessoncast/player").Start(ctx, "player.probe",
			trace.WithAttributes(telemetry.SessionAttributes(p.id, sid, ref)...))
		defer span.End()

		res := probeResult{sid: sid}
		res.source, res.err = p.deps.Resolver.Resolve(ctx, ref)
		if res.err != nil {
			res.err = &resolveError{err: res.err}
		} else if res.source.IsHLS() {
			res.master, res.err = manifest.FetchMaster(ctx, p.deps.Fetcher, res.source, opts.Credentials)
		}
		if res.err != nil {
			telemetry.RecordError(span, "probe", res.err)
		} else {
			span.SetAttributes(attribute.String(telemetry.SourceMIMEKey, res.source.MIME))
			if res.master != nil {
				span.SetAttributes(attribute.Int(telemetry.VariantsKey, len(res.master.Variants)))
			}
		}
		if res.err == nil && p.deps.Progress != nil && opts.Principal != "" {
			if st, err := p.deps.Progress.Get(ctx, opts.Principal, ref); err == nil && st != nil && !st.Finished {
				res.resumeAt = time.Duration(st.PosSeconds) * time.Second
			}
		}
		if ctx.Err() != nil {
			return
		}
		p.post(res)
	}(s.ctx, s.id, s.ref, s.opts)
}

type resolveError struct{ err error }

func (e *resolveError) Error() string { return e.err.Error() }
func (e *resolveError) Unwrap() error { return e.err }

func (p *Player) onProbe(s *session, res probeResult) {
	if res.err != nil {
		var rerr *resolveError
		switch {
		case errors.As(res.err, &rerr):
			p.fail(s, newPlaybackError(KindManifestResolution, rerr.err, "cannot resolve manifest for %s", s.ref))
		case errors.Is(res.err, hls.ErrNotPlaylist), errors.Is(res.err, hls.ErrNoVariants):
			p.fail(s, newPlaybackError(KindUnsupportedFormat, res.err, "manifest is not a playable playlist"))
		case errors.Is(res.err, fetch.ErrInvalidURL):
			p.fail(s, newPlaybackError(KindManifestResolution, res.err, "manifest address for %s is not fetchable", s.ref))
		case fetch.IsClientError(res.err):
			p.fail(s, newPlaybackError(KindManifestResolution, res.err, "manifest fetch rejected with HTTP %d", fetch.StatusCode(res.err)))
		case fetch.IsNetwork(res.err):
			p.networkRetry(s, res.err, func() { p.post(reprobeDue{sid: s.id}) })
		default:
			p.fail(s, newPlaybackError(KindUnclassified, res.err, "manifest probe failed"))
		}
		if !s.live() {
			metrics.IncSessionStart(false, "probe")
		}
		return
	}

	s.source, s.master, s.resumeAt = res.source, res.master, res.resumeAt
	sf := p.deps.Surface
	switch {
	case sf.CanPlayNative(s.source.MIME):
		p.startNative(s)
	case s.source.IsHLS() && p.deps.Clients != nil:
		p.startClient(s)
	default:
		p.fail(s, newPlaybackError(KindUnsupportedFormat, nil, "neither native nor client playback supports %s", s.source.MIME))
	}
}

func (p *Player) startNative(s *session) {
	s.path = PathNative
	if !p.transition(s, EvLoad) {
		return
	}
	if err := p.deps.Surface.SetSource(s.source.URL); err != nil {
		if errors.Is(err, surface.ErrNotSupported) {
			p.fail(s, newPlaybackError(KindUnsupportedFormat, err, "surface rejected %s", s.source.MIME))
		} else {
			p.fail(s, newPlaybackError(KindUnclassified, err, "set source"))
		}
		metrics.IncSessionStart(false, PathNative)
		return
	}
	metrics.IncSessionStart(true, PathNative)
}

func (p *Player) startClient(s *session) {
	s.path = PathClient
	sid := s.id
	client, err := p.deps.Clients.New(streamclient.Config{
		Credentials:  s.opts.Credentials,
		MaxBandwidth: p.cfg.MaxBandwidth,
		FragRetries:  p.cfg.FragRetries,
	}, func(ev streamclient.Event) { p.post(clientEvent{sid: sid, ev: ev}) })
	if err != nil {
		p.fail(s, newPlaybackError(KindUnclassified, err, "create streaming client"))
		metrics.IncSessionStart(false, PathClient)
		return
	}
	s.client = client

	if err := client.Attach(p.deps.Surface); err != nil {
		p.fail(s, newPlaybackError(KindUnclassified, err, "attach streaming client"))
		metrics.IncSessionStart(false, PathClient)
		return
	}
	if !p.transition(s, EvLoad) {
		return
	}
	if err := client.Load(s.ctx, s.master); err != nil {
		p.fail(s, newPlaybackError(KindUnclassified, err, "load manifest into client"))
		metrics.IncSessionStart(false, PathClient)
		return
	}
	metrics.IncSessionStart(true, PathClient)
}

func (p *Player) onClientEvent(s *session, ev streamclient.Event) {
	switch ev.Kind {
	case streamclient.EventManifestParsed:
		s.logger.Debug().
			Str(xglog.FieldEvent, "player.manifest_parsed").
			Int("levels", len(ev.Levels)).
			Msg("manifest parsed")
	case streamclient.EventLevelSwitched:
		s.level = ev.Level
		if s.master != nil && ev.Level >= 0 && ev.Level < len(s.master.Variants) {
			s.bandwidth = s.master.Variants[ev.Level].Bandwidth
		}
		p.publish(s)
	case streamclient.EventFragBuffered:
		s.fragments++
		if s.state.Busy() {
			p.ready(s)
		}
	case streamclient.EventEnded:
		s.ended = true
		if s.state.Busy() {
			p.ready(s)
			return
		}
		p.publish(s)
	case streamclient.EventFault:
		if ev.Fault != nil {
			p.onFault(s, ev.Fault)
		}
	}
}

// onFault applies the retry policy.
func (p *Player) onFault(s *session, f *streamclient.Fault) {
	metrics.IncFault(string(f.Type), f.Fatal)
	logEv := s.logger.Warn()
	if !f.Fatal {
		logEv = s.logger.Debug()
	}
	logEv.Err(f.Err).
		Str(xglog.FieldEvent, "player.fault").
		Str(xglog.FieldFaultType, string(f.Type)).
		Bool(xglog.FieldFatal, f.Fatal).
		Str("details", f.Details).
		Msg("streaming client fault")

	if !f.Fatal {
		return
	}
	switch f.Type {
	case streamclient.FaultNetwork:
		p.networkRetry(s, f.Err, func() { s.client.StartLoad() })
	case streamclient.FaultMedia:
		if s.mediaRecovering {
			p.fail(s, newPlaybackError(KindMedia, f.Err, "media recovery failed (%s)", f.Details))
			return
		}
		s.mediaRecovering = true
		s.mediaRecoveries++
		metrics.IncMediaRecovery()
		if p.transition(s, EvFault) {
			s.client.RecoverMediaError()
		}
	default:
		p.fail(s, newPlaybackError(KindUnclassified, f.Err, "fatal %s fault (%s)", f.Type, f.Details))
	}
}

// networkRetry consumes the budget and schedules resume, or fails the
// session once the budget is exhausted.
func (p *Player) networkRetry(s *session, cause error, resume func()) {
	if !s.budget.Consume() {
		p.fail(s, newPlaybackError(KindNetwork, cause, "retry budget exhausted after %d retries", s.budget.Used()))
		return
	}
	metrics.IncRetry()
	s.logger.Info().
		Str(xglog.FieldEvent, "player.retry").
		Int(xglog.FieldRetries, s.budget.Used()).
		Int("max_retries", s.budget.Max()).
		Msg("resuming after network fault")

	if s.state != StateIdle && !p.transition(s, EvFault) {
		return
	}
	if s.state == StateIdle {
		p.publish(s)
	}

	if p.cfg.RetryDelay <= 0 {
		if s.state == StateIdle {
			p.probe(s)
			return
		}
		resume()
		return
	}
	sid, idle := s.id, s.state == StateIdle
	s.after(p.cfg.RetryDelay, func() {
		if idle {
			p.post(reprobeDue{sid: sid})
		} else {
			p.post(resumeDue{sid: sid})
		}
	})
}

func (p *Player) onSurfaceEvent(s *session, ev surface.Event) {
	switch ev.Kind {
	case surface.EventMetadataLoaded:
		if ev.Duration > 0 {
			s.duration = ev.Duration
		}
		if s.path == PathNative && s.state == StateLoading {
			p.ready(s)
		}
	case surface.EventTimeUpdate:
		s.position = ev.Position
		if ev.Duration > 0 {
			s.duration = ev.Duration
		}
		p.saveProgress(s, false)
		p.publish(s)
	case surface.EventEnded:
		s.ended = true
		if ev.Position > 0 {
			s.position = ev.Position
		}
		p.saveProgress(s, true)
		p.publish(s)
	case surface.EventError:
		if s.path == PathNative {
			p.fail(s, newPlaybackError(KindMedia, ev.Err, "native playback error"))
		}
	}
}

func (p *Player) ready(s *session) {
	first := !s.everReady
	if !p.transition(s, EvReady) {
		return
	}
	s.mediaRecovering = false
	if !first {
		return
	}
	s.everReady = true
	metrics.ObserveTimeToReady(p.deps.Now().Sub(s.startedAt))

	sf := p.deps.Surface
	if s.resumeAt > 0 {
		if err := sf.Seek(s.resumeAt); err != nil {
			s.logger.Warn().Err(err).Msg("resume seek failed")
		}
	}
	if s.opts.Autoplay {
		if err := sf.Play(); err != nil {
			s.logger.Warn().Err(err).Str(xglog.FieldEvent, "player.autoplay_failed").Msg("autoplay failed")
		}
	}
}

func (p *Player) saveProgress(s *session, force bool) {
	if p.deps.Progress == nil || s.opts.Principal == "" {
		return
	}
	if !force && s.position-s.savedAt < p.cfg.ProgressInterval && s.savedAt <= s.position {
		return
	}
	s.savedAt = s.position

	ctx, cancel := context.WithTimeout(s.ctx, progressWriteTimeout)
	defer cancel()
	st := progress.NewState(s.position, s.duration, p.deps.Now())
	if force && s.ended {
		st.Finished = true
	}
	if err := p.deps.Progress.Put(ctx, s.opts.Principal, s.ref, st); err != nil {
		s.logger.Warn().Err(err).Str(xglog.FieldEvent, "player.progress_failed").Msg("progress write failed")
	}
}

func (p *Player) fail(s *session, perr *PlaybackError) {
	metrics.IncFailure(string(perr.Kind))
	p.finish(s, EvFail, perr)
}

// finish moves s to a terminal state and releases everything it owns:
// the client is destroyed before the surface is detached.
func (p *Player) finish(s *session, ev Event, perr *PlaybackError) {
	if ev == EvFail {
		s.err = perr
	}
	from := s.state
	tr, ok := TransitionFor(from, ev)
	if !ok {
		return
	}

	s.cancel()
	s.stopTimer()
	if s.client != nil {
		s.client.Destroy()
	}
	if s.attached {
		p.deps.Surface.Detach()
		s.attached = false
	}
	metrics.ActiveSessions.Dec()

	s.state = tr.To
	metrics.IncTransition(string(from), string(tr.To))
	logEv := s.logger.Info()
	if perr != nil {
		logEv = s.logger.Error().Str("kind", string(perr.Kind)).Str("detail", perr.Detail).AnErr("cause", perr.Err)
	}
	logEv.
		Str(xglog.FieldEvent, "player.session_"+string(tr.To)).
		Str(xglog.FieldOldState, string(from)).
		Str(xglog.FieldNewState, string(tr.To)).
		Int(xglog.FieldRetries, s.budget.Used()).
		Msg("playback session ended")
	p.publish(s)
}

// transition applies a non-terminal edge; illegal edges are logged and ignored.
func (p *Player) transition(s *session, ev Event) bool {
	if ev == EvFail || ev == EvDestroy {
		p.finish(s, ev, s.err)
		return false
	}
	from := s.state
	tr, ok := TransitionFor(from, ev)
	if !ok {
		s.logger.Warn().
			Str(xglog.FieldEvent, "player.illegal_transition").
			Str(xglog.FieldOldState, string(from)).
			Str("trigger", string(ev)).
			Msg("ignoring illegal transition")
		return false
	}
	s.state = tr.To
	if from != tr.To {
		metrics.IncTransition(string(from), string(tr.To))
		s.logger.Debug().
			Str(xglog.FieldEvent, "player.transition").
			Str(xglog.FieldOldState, string(from)).
			Str(xglog.FieldNewState, string(tr.To)).
			Msg("session state changed")
	}
	p.publish(s)
	return true
}

func (p *Player) snapshot(s *session) Status {
	st := Status{
		PlayerID:        p.id,
		SessionID:       s.id,
		LessonRef:       s.ref,
		State:           s.state,
		Loading:         s.state.Busy(),
		Error:           s.err,
		Retries:         s.budget.Used(),
		MaxRetries:      s.budget.Max(),
		MediaRecoveries: s.mediaRecoveries,
		Path:            s.path,
		Level:           s.level,
		Bandwidth:       s.bandwidth,
		Fragments:       s.fragments,
		PositionSeconds: s.position.Seconds(),
		DurationSeconds: s.duration.Seconds(),
		Ended:           s.ended,
		UpdatedAt:       p.deps.Now().UTC(),
	}
	if s.state == StateIdle {
		st.Loading = true
	}
	return st
}

func (p *Player) publish(s *session) {
	st := p.snapshot(s)
	p.latest.Store(&st)
	s.handle.update(st)

	p.obsMu.Lock()
	observers := make([]func(Status), 0, len(p.observers))
	for _, fn := range p.observers {
		observers = append(observers, fn)
	}
	p.obsMu.Unlock()
	for _, fn := range observers {
		fn(st)
	}

	if p.deps.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PublishTimeout)
		if err := p.deps.Bus.Publish(ctx, Topic(p.id), st); err != nil {
			s.logger.Debug().Err(err).Msg("status publish dropped")
		}
		cancel()
	}
}
