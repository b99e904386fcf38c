// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/lessoncast/internal/bus"
	"github.com/ManuGH/lessoncast/internal/fetch"
	"github.com/ManuGH/lessoncast/internal/hls"
	"github.com/ManuGH/lessoncast/internal/manifest"
	"github.com/ManuGH/lessoncast/internal/progress"
	"github.com/ManuGH/lessoncast/internal/streamclient"
	"github.com/ManuGH/lessoncast/internal/surface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	apiBase    = "https://api.example.com"
	masterBody = "#EXTM3U\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=854x480\n480p/index.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720\n720p/index.m3u8\n"
)

// fakeClient records the commands the player issues; the test drives events.
type fakeClient struct {
	factory *fakeFactory
	emit    func(streamclient.Event)
	cfg     streamclient.Config

	mu         sync.Mutex
	startLoads int
	recovers   int
	destroyed  bool
}

func (c *fakeClient) Attach(surface.Surface) error { return nil }

func (c *fakeClient) Load(_ context.Context, m *hls.MasterPlaylist) error {
	c.emit(streamclient.Event{Kind: streamclient.EventManifestParsed, Levels: m.Variants})
	return nil
}

func (c *fakeClient) StartLoad() {
	c.mu.Lock()
	c.startLoads++
	c.mu.Unlock()
}

func (c *fakeClient) RecoverMediaError() {
	c.mu.Lock()
	c.recovers++
	c.mu.Unlock()
}

func (c *fakeClient) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.destroyed {
		c.destroyed = true
		c.factory.release()
	}
}

func (c *fakeClient) counts() (startLoads, recovers int, destroyed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLoads, c.recovers, c.destroyed
}

func (c *fakeClient) fault(typ streamclient.FaultType, fatal bool) {
	c.emit(streamclient.Event{Kind: streamclient.EventFault, Fault: &streamclient.Fault{
		Type: typ, Details: "test", Fatal: fatal, Err: errors.New(string(typ) + " fault"),
	}})
}

func (c *fakeClient) buffered(sn int) {
	c.emit(streamclient.Event{Kind: streamclient.EventFragBuffered, Fragment: sn})
}

type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	live    int
	maxLive int
}

func (f *fakeFactory) New(cfg streamclient.Config, emit func(streamclient.Event)) (streamclient.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live++
	if f.live > f.maxLive {
		f.maxLive = f.live
	}
	c := &fakeClient{factory: f, emit: emit, cfg: cfg}
	f.clients = append(f.clients, c)
	return c, nil
}

func (f *fakeFactory) release() {
	f.mu.Lock()
	f.live--
	f.mu.Unlock()
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fakeFactory) client(i int) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[i]
}

// fakeFetcher serves the master playlist for every lesson except those
// listed in status, which answer with that HTTP status.
type fakeFetcher struct {
	mu     sync.Mutex
	status map[string][]int
	calls  map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{status: map[string][]int{}, calls: map[string]int{}}
}

func (f *fakeFetcher) respond(ref string, codes ...int) {
	f.mu.Lock()
	f.status[ref] = codes
	f.mu.Unlock()
}

func (f *fakeFetcher) callsFor(ref string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ref]
}

func (f *fakeFetcher) FetchText(_ context.Context, url string, _ fetch.CredentialsMode) (string, error) {
	ref := strings.TrimSuffix(strings.TrimPrefix(url, apiBase+"/lessons/"), "/master-manifest")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[ref]++
	if codes := f.status[ref]; len(codes) > 0 {
		code := codes[0]
		f.status[ref] = codes[1:]
		if code != 200 {
			return "", &fetch.StatusError{Code: code, URL: url}
		}
	}
	if ref == "not-hls" {
		return "<html>", nil
	}
	return masterBody, nil
}

func (f *fakeFetcher) FetchBytes(context.Context, string, fetch.CredentialsMode) ([]byte, error) {
	return nil, errors.New("segments are not fetched by the player")
}

type harness struct {
	p       *Player
	clients *fakeFactory
	fetcher *fakeFetcher
	surface *surface.Memory
}

func newHarness(t *testing.T, cfg Config, mutate ...func(*Deps)) *harness {
	t.Helper()
	base, err := manifest.NewBaseURL(apiBase)
	require.NoError(t, err)

	h := &harness{clients: &fakeFactory{}, fetcher: newFakeFetcher(), surface: surface.NewMemory()}
	deps := Deps{
		Resolver: base,
		Fetcher:  h.fetcher,
		Clients:  h.clients,
		Surface:  h.surface,
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	h.p, err = New("p1", cfg, deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.p.Close() })
	return h
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.p.Flush()
		return h.p.Status().State == want
	}, 2*time.Second, time.Millisecond, "waiting for state %s", want)
}

func (h *harness) waitClients(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.p.Flush()
		return h.clients.count() >= n
	}, 2*time.Second, time.Millisecond, "waiting for %d clients", n)
}

// ready starts a session and brings it to ready.
func (h *harness) ready(t *testing.T, ref string, opts SessionOptions) (*SessionHandle, *fakeClient) {
	t.Helper()
	n := h.clients.count()
	sh, err := h.p.StartSession(context.Background(), ref, opts)
	require.NoError(t, err)
	h.waitClients(t, n+1)
	c := h.clients.client(n)
	h.waitState(t, StateLoading)
	c.buffered(0)
	// Surface events raised while becoming ready are queued behind the first flush.
	h.p.Flush()
	h.p.Flush()
	require.Equal(t, StateReady, h.p.Status().State)
	return sh, c
}

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) observe(st Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.states); n == 0 || r.states[n-1] != st.State {
		r.states = append(r.states, st.State)
	}
}

func (r *recorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func TestLessonReachesReady(t *testing.T) {
	h := newHarness(t, Config{})
	rec := &recorder{}
	defer h.p.Subscribe(rec.observe)()

	sh, c := h.ready(t, "lesson-42", SessionOptions{Autoplay: true})

	st := h.p.Status()
	assert.Nil(t, st.Error)
	assert.False(t, st.Loading)
	assert.Equal(t, "lesson-42", st.LessonRef)
	assert.Equal(t, PathClient, st.Path)
	assert.Equal(t, []State{StateIdle, StateLoading, StateReady}, rec.snapshot())
	assert.Equal(t, sh.Status(), st)
	assert.True(t, h.surface.Stats().Playing, "autoplay starts playback on ready")
	assert.Equal(t, fetch.CredentialsInclude, c.cfg.Credentials)

	select {
	case <-sh.Done():
		t.Fatal("ready session must not be done")
	default:
	}
}

func TestStartSessionTwiceKeepsOneClient(t *testing.T) {
	h := newHarness(t, Config{})
	first, c1 := h.ready(t, "lesson-42", SessionOptions{})

	second, err := h.p.StartSession(context.Background(), "lesson-43", SessionOptions{})
	require.NoError(t, err)
	h.waitClients(t, 2)

	_, _, destroyed := c1.counts()
	assert.True(t, destroyed)
	h.clients.mu.Lock()
	assert.Equal(t, 1, h.clients.maxLive, "two client handles were alive at once")
	h.clients.mu.Unlock()

	<-first.Done()
	assert.Equal(t, StateDestroyed, first.Status().State)

	// Events of the discarded client must not touch the new session.
	h.waitState(t, StateLoading)
	c1.buffered(7)
	h.p.Flush()
	assert.Equal(t, StateLoading, h.p.Status().State)
	assert.Equal(t, second.ID(), h.p.Status().SessionID)
}

func TestNetworkFaultsExhaustBudget(t *testing.T) {
	h := newHarness(t, Config{})
	sh, c := h.ready(t, "lesson-42", SessionOptions{})

	for i := 1; i <= 3; i++ {
		c.fault(streamclient.FaultNetwork, true)
		h.p.Flush()
		st := h.p.Status()
		require.Equal(t, StateRecovering, st.State)
		require.True(t, st.Loading)
		assert.Equal(t, i, st.Retries)
		starts, _, _ := c.counts()
		assert.Equal(t, i, starts)

		c.buffered(i)
		h.p.Flush()
		require.Equal(t, StateReady, h.p.Status().State)
	}

	c.fault(streamclient.FaultNetwork, true)
	h.p.Flush()

	st := h.p.Status()
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, 3, st.Retries)
	require.NotNil(t, st.Error)
	assert.Equal(t, KindNetwork, st.Error.Kind)
	starts, _, destroyed := c.counts()
	assert.Equal(t, 3, starts)
	assert.True(t, destroyed)
	<-sh.Done()
	assert.ErrorIs(t, sh.Err(), &PlaybackError{Kind: KindNetwork})
}

func TestConsecutiveNetworkFaultsFailOnFourth(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 3})
	_, c := h.ready(t, "lesson-42", SessionOptions{})

	for i := 0; i < 3; i++ {
		c.fault(streamclient.FaultNetwork, true)
	}
	h.p.Flush()
	assert.Equal(t, StateRecovering, h.p.Status().State)
	assert.Equal(t, 3, h.p.Status().Retries)

	c.fault(streamclient.FaultNetwork, true)
	h.p.Flush()
	assert.Equal(t, StateFailed, h.p.Status().State)
	assert.LessOrEqual(t, h.p.Status().Retries, h.p.Status().MaxRetries)
}

func TestMediaFaultGetsOneRecovery(t *testing.T) {
	h := newHarness(t, Config{})
	_, c := h.ready(t, "lesson-42", SessionOptions{})

	c.fault(streamclient.FaultMedia, true)
	h.p.Flush()
	assert.Equal(t, StateRecovering, h.p.Status().State)
	_, recovers, _ := c.counts()
	assert.Equal(t, 1, recovers)

	c.fault(streamclient.FaultMedia, true)
	h.p.Flush()
	st := h.p.Status()
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, KindMedia, st.Error.Kind)
	assert.Equal(t, 0, st.Retries, "media recovery does not consume the retry budget")
	_, recovers, _ = c.counts()
	assert.Equal(t, 1, recovers)
}

func TestMediaFaultAfterReadyRecoversAgain(t *testing.T) {
	h := newHarness(t, Config{})
	_, c := h.ready(t, "lesson-42", SessionOptions{})

	c.fault(streamclient.FaultMedia, true)
	c.buffered(1)
	c.fault(streamclient.FaultMedia, true)
	h.p.Flush()

	assert.Equal(t, StateRecovering, h.p.Status().State)
	assert.Equal(t, 2, h.p.Status().MediaRecoveries)
	_, recovers, _ := c.counts()
	assert.Equal(t, 2, recovers)
}

func TestNonFatalFaultIsObservedOnly(t *testing.T) {
	h := newHarness(t, Config{})
	_, c := h.ready(t, "lesson-42", SessionOptions{})
	before := h.p.Status()

	c.fault(streamclient.FaultNetwork, false)
	c.fault(streamclient.FaultMedia, false)
	c.fault(streamclient.FaultOther, false)
	h.p.Flush()

	st := h.p.Status()
	assert.Equal(t, StateReady, st.State)
	assert.Equal(t, before.Retries, st.Retries)
	starts, recovers, _ := c.counts()
	assert.Zero(t, starts)
	assert.Zero(t, recovers)
}

func TestFatalOtherFaultFailsImmediately(t *testing.T) {
	h := newHarness(t, Config{})
	_, c := h.ready(t, "lesson-42", SessionOptions{})

	c.fault(streamclient.FaultOther, true)
	h.p.Flush()
	st := h.p.Status()
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, KindUnclassified, st.Error.Kind)
	starts, recovers, destroyed := c.counts()
	assert.Zero(t, starts)
	assert.Zero(t, recovers)
	assert.True(t, destroyed)
}

func TestManifest404FailsFromIdle(t *testing.T) {
	h := newHarness(t, Config{})
	h.fetcher.respond("lesson-404", 404)
	rec := &recorder{}
	defer h.p.Subscribe(rec.observe)()

	sh, err := h.p.StartSession(context.Background(), "lesson-404", SessionOptions{})
	require.NoError(t, err)
	_, err = sh.Wait(context.Background())
	require.NoError(t, err)

	st := sh.Status()
	assert.Equal(t, StateFailed, st.State)
	require.NotNil(t, st.Error)
	assert.Equal(t, KindManifestResolution, st.Error.Kind)
	assert.Equal(t, []State{StateIdle, StateFailed}, rec.snapshot())
	assert.Equal(t, 1, h.fetcher.callsFor("lesson-404"), "no retry on 404")
	assert.Equal(t, 0, st.Retries)
	assert.Zero(t, h.clients.count())
	assert.False(t, h.surface.Stats().Attached, "surface released on failure")
}

func TestResolverErrorIsManifestResolution(t *testing.T) {
	h := newHarness(t, Config{}, func(d *Deps) {
		d.Resolver = &manifest.Direct{URLs: map[string]string{}}
	})
	sh, err := h.p.StartSession(context.Background(), "unknown", SessionOptions{})
	require.NoError(t, err)
	<-sh.Done()
	assert.Equal(t, KindManifestResolution, KindOf(sh.Err()))
	assert.ErrorIs(t, sh.Err(), manifest.ErrNotFound)
}

func TestManifestNetworkErrorConsumesBudget(t *testing.T) {
	h := newHarness(t, Config{})
	h.fetcher.respond("lesson-42", 503, 503)

	_, err := h.p.StartSession(context.Background(), "lesson-42", SessionOptions{})
	require.NoError(t, err)
	h.waitState(t, StateLoading)
	assert.Equal(t, 2, h.p.Status().Retries)
	assert.Equal(t, 3, h.fetcher.callsFor("lesson-42"))
}

func TestUnfetchableManifestAddressFailsWithoutRetry(t *testing.T) {
	f, err := fetch.NewHTTPFetcher(fetch.Config{Timeout: time.Second})
	require.NoError(t, err)
	h := newHarness(t, Config{}, func(d *Deps) {
		d.Resolver = &manifest.Direct{URLs: map[string]string{"lesson-1": "ftp://example.invalid/master.m3u8"}}
		d.Fetcher = f
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sh, err := h.p.StartSession(ctx, "lesson-1", SessionOptions{})
	require.NoError(t, err)
	st, err := sh.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, StateFailed, st.State)
	require.NotNil(t, st.Error)
	assert.Equal(t, KindManifestResolution, st.Error.Kind)
	assert.ErrorIs(t, st.Error, fetch.ErrInvalidURL)
	assert.Equal(t, 0, st.Retries)
}

func TestManifestNetworkErrorsExhaustBudget(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 1})
	h.fetcher.respond("lesson-42", 502, 502, 502)

	sh, err := h.p.StartSession(context.Background(), "lesson-42", SessionOptions{})
	require.NoError(t, err)
	<-sh.Done()
	assert.Equal(t, KindNetwork, KindOf(sh.Err()))
	assert.Equal(t, 2, h.fetcher.callsFor("lesson-42"))
}

func TestNotAPlaylistIsUnsupported(t *testing.T) {
	h := newHarness(t, Config{})
	sh, err := h.p.StartSession(context.Background(), "not-hls", SessionOptions{})
	require.NoError(t, err)
	<-sh.Done()
	assert.Equal(t, KindUnsupportedFormat, KindOf(sh.Err()))
}

func TestDestroyIgnoresLaterEvents(t *testing.T) {
	h := newHarness(t, Config{})
	sh, c := h.ready(t, "lesson-42", SessionOptions{})

	h.p.DestroySession()
	h.p.DestroySession()
	sh.Cancel()
	<-sh.Done()
	destroyed := h.p.Status()
	assert.Equal(t, StateDestroyed, destroyed.State)

	var updates int
	defer h.p.Subscribe(func(Status) { updates++ })()
	c.fault(streamclient.FaultNetwork, true)
	c.fault(streamclient.FaultMedia, true)
	c.buffered(9)
	h.p.Flush()

	assert.Zero(t, updates)
	assert.Equal(t, destroyed, h.p.Status())
	starts, recovers, _ := c.counts()
	assert.Zero(t, starts)
	assert.Zero(t, recovers)
}

func TestDestroyWhileLoading(t *testing.T) {
	h := newHarness(t, Config{})
	sh, err := h.p.StartSession(context.Background(), "lesson-42", SessionOptions{})
	require.NoError(t, err)
	h.waitClients(t, 1)
	h.waitState(t, StateLoading)
	c := h.clients.client(0)

	rec := &recorder{}
	defer h.p.Subscribe(rec.observe)()
	h.p.DestroySession()
	<-sh.Done()

	c.buffered(0)
	c.fault(streamclient.FaultOther, true)
	h.p.Flush()

	assert.Equal(t, []State{StateDestroyed}, rec.snapshot())
	_, _, destroyed := c.counts()
	assert.True(t, destroyed)
	assert.False(t, h.surface.Stats().Attached)
}

func TestStaleCancelDoesNotDestroyNewSession(t *testing.T) {
	h := newHarness(t, Config{})
	first, _ := h.ready(t, "lesson-42", SessionOptions{})
	h.ready(t, "lesson-43", SessionOptions{})

	first.Cancel()
	h.p.Flush()
	assert.Equal(t, StateReady, h.p.Status().State)
}

func TestNativePlayback(t *testing.T) {
	native := surface.NewMemory(surface.WithNativeTypes(hls.MIMEType))
	h := newHarness(t, Config{}, func(d *Deps) { d.Surface = native })

	_, err := h.p.StartSession(context.Background(), "lesson-42", SessionOptions{Autoplay: true})
	require.NoError(t, err)
	h.waitState(t, StateReady)

	assert.Equal(t, PathNative, h.p.Status().Path)
	assert.Zero(t, h.clients.count())
	assert.Equal(t, apiBase+"/lessons/lesson-42/master-manifest", native.Stats().Source)
	assert.True(t, native.Stats().Playing)
}

func TestUnsupportedWithoutClientOrNativeSupport(t *testing.T) {
	h := newHarness(t, Config{}, func(d *Deps) { d.Clients = nil })
	sh, err := h.p.StartSession(context.Background(), "lesson-42", SessionOptions{})
	require.NoError(t, err)
	<-sh.Done()
	assert.Equal(t, KindUnsupportedFormat, KindOf(sh.Err()))

	mp4 := &manifest.Direct{URLs: map[string]string{"intro": "https://cdn/intro.mp4"}}
	h2 := newHarness(t, Config{}, func(d *Deps) { d.Resolver = mp4 })
	sh, err = h2.p.StartSession(context.Background(), "intro", SessionOptions{})
	require.NoError(t, err)
	<-sh.Done()
	assert.Equal(t, KindUnsupportedFormat, KindOf(sh.Err()))
}

func TestMissingSurfaceFailsImmediately(t *testing.T) {
	h := newHarness(t, Config{}, func(d *Deps) { d.Surface = nil })
	sh, err := h.p.StartSession(context.Background(), "lesson-42", SessionOptions{})
	require.NoError(t, err)
	<-sh.Done()
	assert.Equal(t, KindUnclassified, KindOf(sh.Err()))
}

func TestRetryStartsFreshSession(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 1})

	_, err := h.p.Retry(context.Background())
	require.ErrorIs(t, err, ErrNoSession)

	first, c := h.ready(t, "lesson-42", SessionOptions{Autoplay: true})
	c.fault(streamclient.FaultNetwork, true)
	c.fault(streamclient.FaultNetwork, true)
	<-first.Done()
	require.Equal(t, KindNetwork, KindOf(first.Err()))

	second, err := h.p.Retry(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, "lesson-42", second.LessonRef())
	h.waitClients(t, 2)
	h.waitState(t, StateLoading)
	st := h.p.Status()
	assert.Equal(t, 0, st.Retries)
	assert.Nil(t, st.Error)
}

func TestProgressIsRecorded(t *testing.T) {
	store := progress.NewMemoryStore()
	h := newHarness(t, Config{ProgressInterval: time.Second}, func(d *Deps) { d.Progress = store })
	ctx := context.Background()

	h.ready(t, "lesson-42", SessionOptions{Principal: "alice"})
	h.surface.SetDuration(20 * time.Second)
	require.NoError(t, h.surface.Seek(10*time.Second))
	h.p.Flush()

	st, err := store.Get(ctx, "alice", "lesson-42")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, int64(10), st.PosSeconds)
	assert.False(t, st.Finished)

	require.NoError(t, h.surface.Seek(19500*time.Millisecond))
	h.p.Flush()
	st, err = store.Get(ctx, "alice", "lesson-42")
	require.NoError(t, err)
	assert.Equal(t, int64(19), st.PosSeconds)
	assert.True(t, st.Finished)
}

func TestProgressResumesPosition(t *testing.T) {
	store := progress.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "bob", "lesson-42", &progress.State{PosSeconds: 42}))
	h := newHarness(t, Config{}, func(d *Deps) { d.Progress = store })

	h.ready(t, "lesson-42", SessionOptions{Principal: "bob"})
	assert.Equal(t, 42*time.Second, h.surface.Stats().Position)
}

func TestProgressResumesPositionWithAutoplay(t *testing.T) {
	store := progress.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "bob", "lesson-42", &progress.State{PosSeconds: 42}))
	h := newHarness(t, Config{ProgressInterval: time.Second}, func(d *Deps) { d.Progress = store })

	h.ready(t, "lesson-42", SessionOptions{Principal: "bob", Autoplay: true})
	h.p.Flush()

	stats := h.surface.Stats()
	assert.True(t, stats.Playing)
	assert.Equal(t, 42*time.Second, stats.Position)

	st, err := store.Get(ctx, "bob", "lesson-42")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, int64(42), st.PosSeconds, "autoplay must not rewind the stored position")
}

func TestStatusIsPublishedOnBus(t *testing.T) {
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), Topic("p1"))
	require.NoError(t, err)
	defer sub.Close()

	h := newHarness(t, Config{}, func(d *Deps) { d.Bus = b })
	h.ready(t, "lesson-42", SessionOptions{})

	var states []State
	for len(states) < 3 {
		select {
		case msg := <-sub.C():
			st := msg.(Status)
			if len(states) == 0 || states[len(states)-1] != st.State {
				states = append(states, st.State)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out, got %v", states)
		}
	}
	assert.Equal(t, []State{StateIdle, StateLoading, StateReady}, states)
}

func TestStartSessionValidation(t *testing.T) {
	h := newHarness(t, Config{})
	_, err := h.p.StartSession(context.Background(), "  ", SessionOptions{})
	assert.ErrorIs(t, err, manifest.ErrInvalidReference)

	require.NoError(t, h.p.Close())
	require.NoError(t, h.p.Close())
	_, err = h.p.StartSession(context.Background(), "lesson-42", SessionOptions{})
	assert.ErrorIs(t, err, ErrPlayerClosed)
	_, err = h.p.Retry(context.Background())
	assert.ErrorIs(t, err, ErrPlayerClosed)
	h.p.DestroySession()
	h.p.Flush()
}

func TestCloseDestroysCurrentSession(t *testing.T) {
	h := newHarness(t, Config{})
	sh, c := h.ready(t, "lesson-42", SessionOptions{})
	require.NoError(t, h.p.Close())

	<-sh.Done()
	assert.Equal(t, StateDestroyed, sh.Status().State)
	_, _, destroyed := c.counts()
	assert.True(t, destroyed)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New("x", Config{}, Deps{})
	assert.Error(t, err)
	_, err = New("x", Config{}, Deps{Resolver: &manifest.Direct{}})
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	base, err := manifest.NewBaseURL(apiBase)
	require.NoError(t, err)
	r := NewRegistry(func(id string) (*Player, error) {
		return New(id, Config{}, Deps{Resolver: base, Fetcher: newFakeFetcher(), Surface: surface.NewMemory()})
	})

	a, err := r.GetOrCreate("a")
	require.NoError(t, err)
	again, err := r.GetOrCreate("a")
	require.NoError(t, err)
	assert.Same(t, a, again)
	_, err = r.GetOrCreate("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, r.IDs())

	assert.True(t, r.Remove("a"))
	assert.False(t, r.Remove("a"))
	<-a.Done()

	require.NoError(t, r.Close())
	_, err = r.GetOrCreate("c")
	assert.ErrorIs(t, err, ErrPlayerClosed)
	assert.Empty(t, r.IDs())
}

func TestRegistryLimitUnderConcurrentCreates(t *testing.T) {
	base, err := manifest.NewBaseURL(apiBase)
	require.NoError(t, err)
	r := NewRegistry(func(id string) (*Player, error) {
		return New(id, Config{}, Deps{Resolver: base, Fetcher: newFakeFetcher(), Surface: surface.NewMemory()})
	})
	r.SetLimit(3)
	t.Cleanup(func() { _ = r.Close() })

	const callers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		refused int
	)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.GetOrCreate(fmt.Sprintf("p%02d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrPlayerLimit):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, created)
	assert.Equal(t, callers-3, refused)
	assert.Len(t, r.IDs(), 3)

	// Known players stay reachable at the limit, and removal frees a slot.
	ids := r.IDs()
	_, err = r.GetOrCreate(ids[0])
	require.NoError(t, err)
	require.True(t, r.Remove(ids[0]))
	_, err = r.GetOrCreate("fresh")
	require.NoError(t, err)
}
