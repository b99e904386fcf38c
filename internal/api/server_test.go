// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/lessoncast/internal/bus"
	"github.com/ManuGH/lessoncast/internal/catalog"
	"github.com/ManuGH/lessoncast/internal/fetch"
	"github.com/ManuGH/lessoncast/internal/health"
	"github.com/ManuGH/lessoncast/internal/manifest"
	"github.com/ManuGH/lessoncast/internal/mockapi"
	"github.com/ManuGH/lessoncast/internal/player"
	"github.com/ManuGH/lessoncast/internal/progress"
	"github.com/ManuGH/lessoncast/internal/streamclient"
	"github.com/ManuGH/lessoncast/internal/surface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	backend  *mockapi.Server
	players  *player.Registry
	progress *progress.MemoryStore
	lessons  *catalog.MockClient
	srv      *httptest.Server
	client   *http.Client
}

type harnessOption func(cfg *Config, deps *Deps)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	lessons, err := catalog.NewMock("")
	require.NoError(t, err)
	backend, err := mockapi.New(lessons, mockapi.WithSegmentCount(3), mockapi.WithSegmentDuration(2*time.Second))
	require.NoError(t, err)
	backendSrv := httptest.NewServer(backend)
	t.Cleanup(backendSrv.Close)

	fetcher, err := fetch.NewHTTPFetcher(fetch.Config{Timeout: 5 * time.Second})
	require.NoError(t, err)
	resolver, err := manifest.NewBaseURL(backendSrv.URL)
	require.NoError(t, err)
	clients := &streamclient.HLSFactory{Fetcher: fetcher, RetryDelay: 10 * time.Millisecond}
	store := progress.NewMemoryStore()
	events := bus.NewMemoryBus()

	reg := player.NewRegistry(func(id string) (*player.Player, error) {
		return player.New(id, player.Config{}, player.Deps{
			Resolver: resolver,
			Fetcher:  fetcher,
			Clients:  clients,
			Surface:  surface.NewMemory(),
			Progress: store,
			Bus:      events,
		})
	})
	t.Cleanup(func() { _ = reg.Close() })

	cfg := Config{Autoplay: true, HeartbeatInterval: 50 * time.Millisecond}
	deps := Deps{Players: reg, Progress: store, Bus: events, Catalog: lessons}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	s, err := New(cfg, deps)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	client := srv.Client()
	t.Cleanup(client.CloseIdleConnections)
	return &harness{backend: backend, players: reg, progress: store, lessons: lessons, srv: srv, client: client}
}

func (h *harness) do(t *testing.T, method, path, body string, hdr ...string) (int, http.Header, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(t, err)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, resp.Header, data
}

type statusBody struct {
	PlayerID  string       `json:"player_id"`
	SessionID string       `json:"session_id"`
	LessonRef string       `json:"lesson_ref"`
	State     player.State `json:"state"`
	Fragments int          `json:"fragments"`
	Path      string       `json:"path"`
	Error     *struct {
		Kind      string `json:"kind"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

func (h *harness) status(t *testing.T, playerID string) statusBody {
	t.Helper()
	code, _, data := h.do(t, http.MethodGet, "/api/v1/players/"+playerID+"/session", "")
	require.Equal(t, http.StatusOK, code, string(data))
	var st statusBody
	require.NoError(t, json.Unmarshal(data, &st))
	return st
}

func (h *harness) waitState(t *testing.T, playerID string, want player.State) statusBody {
	t.Helper()
	var st statusBody
	require.Eventually(t, func() bool {
		st = h.status(t, playerID)
		return st.State == want
	}, 5*time.Second, 10*time.Millisecond, "player %s never reached %s", playerID, want)
	return st
}

func decodeError(t *testing.T, data []byte) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(data, &e), string(data))
	return e
}

func TestNewRequiresRegistry(t *testing.T) {
	_, err := New(Config{}, Deps{})
	require.Error(t, err)
}

func TestHealthAndReadiness(t *testing.T) {
	var notReady error
	h := newHarness(t, func(_ *Config, d *Deps) {
		d.Health = health.NewManager("test")
		d.Health.RegisterChecker(health.NewFuncChecker("progress", func(context.Context) error { return notReady }))
	})

	code, _, _ := h.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	code, _, _ = h.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, code)

	notReady = errors.New("progress store offline")
	code, _, data := h.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	var ready health.ReadinessResponse
	require.NoError(t, json.Unmarshal(data, &ready))
	assert.False(t, ready.Ready)
	assert.Equal(t, "progress store offline", ready.Checks["progress"].Error)

	// Liveness stays up while a component is down.
	code, _, _ = h.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodGet, "/healthz", "")

	code, _, data := h.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(data), "lessoncast_http_request_duration_seconds")
}

func TestUnknownRouteIsJSON(t *testing.T) {
	h := newHarness(t)
	code, hdr, data := h.do(t, http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "application/json", hdr.Get("Content-Type"))
	assert.Equal(t, "not_found", decodeError(t, data).Error)
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)

	code, hdr, data := h.do(t, http.MethodPost, "/api/v1/players/p1/session", `{"lesson":" lesson-42 "}`)
	require.Equal(t, http.StatusAccepted, code, string(data))
	assert.Equal(t, "/api/v1/players/p1/session", hdr.Get("Location"))
	var started sessionResponse
	require.NoError(t, json.Unmarshal(data, &started))
	require.NotEmpty(t, started.SessionID)
	assert.Equal(t, "lesson-42", started.Status.LessonRef)

	st := h.waitState(t, "p1", player.StateReady)
	assert.Equal(t, started.SessionID, st.SessionID)
	assert.Equal(t, player.PathClient, st.Path)
	assert.Positive(t, st.Fragments)
	assert.Positive(t, h.backend.Hits("/lessons/lesson-42/master-manifest"))

	code, _, data = h.do(t, http.MethodGet, "/api/v1/players", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"players":["p1"]}`, string(data))

	code, _, _ = h.do(t, http.MethodDelete, "/api/v1/players/p1/session", "")
	require.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, player.StateDestroyed, h.status(t, "p1").State)

	code, _, data = h.do(t, http.MethodPost, "/api/v1/players/p1/session/retry", "")
	require.Equal(t, http.StatusAccepted, code, string(data))
	var retried sessionResponse
	require.NoError(t, json.Unmarshal(data, &retried))
	assert.NotEqual(t, started.SessionID, retried.SessionID)
	h.waitState(t, "p1", player.StateReady)

	code, _, _ = h.do(t, http.MethodDelete, "/api/v1/players/p1", "")
	require.Equal(t, http.StatusNoContent, code)
	code, _, data = h.do(t, http.MethodGet, "/api/v1/players/p1/session", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "player_not_found", decodeError(t, data).Error)

	code, _, _ = h.do(t, http.MethodDelete, "/api/v1/players/p1", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSessionFailsOnMissingManifest(t *testing.T) {
	h := newHarness(t)
	h.backend.SetFault("/lessons/lesson-41/master-manifest", http.StatusNotFound, -1)

	code, _, _ := h.do(t, http.MethodPost, "/api/v1/players/p1/session", `{"lesson":"lesson-41"}`)
	require.Equal(t, http.StatusAccepted, code)

	st := h.waitState(t, "p1", player.StateFailed)
	require.NotNil(t, st.Error)
	assert.Equal(t, string(player.KindManifestResolution), st.Error.Kind)
	assert.True(t, st.Error.Retryable)
	assert.Equal(t, 1, h.backend.Hits("/lessons/lesson-41/master-manifest"))
}

func TestStartSessionRejectsBadRequests(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name    string
		body    string
		errCode string
	}{
		{"malformed json", `{`, "invalid_body"},
		{"unknown field", `{"lesson":"lesson-42","speed":2}`, "invalid_body"},
		{"blank lesson", `{"lesson":"   "}`, "invalid_reference"},
		{"bad credentials", `{"lesson":"lesson-42","credentials":"always"}`, "invalid_credentials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, data := h.do(t, http.MethodPost, "/api/v1/players/p1/session", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, tt.errCode, decodeError(t, data).Error)
		})
	}
}

func TestRetryBeforeAnySession(t *testing.T) {
	h := newHarness(t)

	code, _, _ := h.do(t, http.MethodPost, "/api/v1/players/p1/session/retry", "")
	assert.Equal(t, http.StatusNotFound, code)

	// A rejected start still registers the player.
	code, _, _ = h.do(t, http.MethodPost, "/api/v1/players/p1/session", `{"lesson":""}`)
	require.Equal(t, http.StatusBadRequest, code)

	code, _, data := h.do(t, http.MethodPost, "/api/v1/players/p1/session/retry", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "no_session", decodeError(t, data).Error)
}

func TestPlayerLimit(t *testing.T) {
	h := newHarness(t, func(_ *Config, d *Deps) { d.Players.SetLimit(1) })

	code, _, _ := h.do(t, http.MethodPost, "/api/v1/players/p1/session", `{"lesson":"lesson-40"}`)
	require.Equal(t, http.StatusAccepted, code)
	code, _, data := h.do(t, http.MethodPost, "/api/v1/players/p2/session", `{"lesson":"lesson-40"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "player_limit", decodeError(t, data).Error)

	// The existing player is not subject to the limit.
	code, _, _ = h.do(t, http.MethodPost, "/api/v1/players/p1/session", `{"lesson":"lesson-41"}`)
	assert.Equal(t, http.StatusAccepted, code)
}

func TestProgressEndpoints(t *testing.T) {
	h := newHarness(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, h.progress.Put(context.Background(), "alice", "lesson-42",
		progress.NewState(90*time.Second, 600*time.Second, now)))

	code, _, data := h.do(t, http.MethodGet, "/api/v1/progress/lesson-42", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "missing_principal", decodeError(t, data).Error)

	code, _, data = h.do(t, http.MethodGet, "/api/v1/progress/lesson-42", "", HeaderPrincipal, "alice")
	require.Equal(t, http.StatusOK, code)
	var st progress.State
	require.NoError(t, json.Unmarshal(data, &st))
	assert.EqualValues(t, 90, st.PosSeconds)
	assert.False(t, st.Finished)

	code, _, _ = h.do(t, http.MethodGet, "/api/v1/progress/lesson-42", "", HeaderPrincipal, "bob")
	assert.Equal(t, http.StatusNotFound, code)

	code, _, _ = h.do(t, http.MethodDelete, "/api/v1/progress/lesson-42", "", HeaderPrincipal, "alice")
	require.Equal(t, http.StatusNoContent, code)
	code, _, data = h.do(t, http.MethodGet, "/api/v1/progress/lesson-42", "", HeaderPrincipal, "alice")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "no_progress", decodeError(t, data).Error)
}

func TestPlaybackRecordsProgressForPrincipal(t *testing.T) {
	h := newHarness(t)

	code, _, _ := h.do(t, http.MethodPost, "/api/v1/players/p1/session", `{"lesson":"lesson-42"}`, HeaderPrincipal, "alice")
	require.Equal(t, http.StatusAccepted, code)
	h.waitState(t, "p1", player.StateReady)

	// Three two second segments play to the end, which forces a final write.
	var st progress.State
	require.Eventually(t, func() bool {
		code, _, data := h.do(t, http.MethodGet, "/api/v1/progress/lesson-42", "", HeaderPrincipal, "alice")
		return code == http.StatusOK && json.Unmarshal(data, &st) == nil && st.Finished
	}, 5*time.Second, 20*time.Millisecond)
	assert.EqualValues(t, 6, st.PosSeconds)
}

func TestProgressDisabled(t *testing.T) {
	h := newHarness(t, func(_ *Config, d *Deps) { d.Progress = nil })
	code, _, data := h.do(t, http.MethodGet, "/api/v1/progress/lesson-42", "", HeaderPrincipal, "alice")
	assert.Equal(t, http.StatusNotImplemented, code)
	assert.Equal(t, "progress_disabled", decodeError(t, data).Error)
}

func TestCatalogEndpoints(t *testing.T) {
	h := newHarness(t)

	code, _, data := h.do(t, http.MethodGet, "/api/v1/lessons/lesson-42", "")
	require.Equal(t, http.StatusOK, code)
	var l catalog.Lesson
	require.NoError(t, json.Unmarshal(data, &l))
	assert.Equal(t, "go-basics", l.CourseID)

	code, _, data = h.do(t, http.MethodGet, "/api/v1/courses/go-basics/lessons", "")
	require.Equal(t, http.StatusOK, code)
	var course struct {
		Lessons []catalog.Lesson `json:"lessons"`
	}
	require.NoError(t, json.Unmarshal(data, &course))
	require.Len(t, course.Lessons, 3)
	assert.Equal(t, "lesson-40", course.Lessons[0].ID)

	code, _, data = h.do(t, http.MethodGet, "/api/v1/lessons/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "lesson_not_found", decodeError(t, data).Error)
}

func TestEventsStreamStatus(t *testing.T) {
	h := newHarness(t)

	code, _, _ := h.do(t, http.MethodGet, "/api/v1/players/p1/events", "")
	require.Equal(t, http.StatusNotFound, code)

	code, _, _ = h.do(t, http.MethodPost, "/api/v1/players/p1/session", `{"lesson":"lesson-42"}`)
	require.Equal(t, http.StatusAccepted, code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.srv.URL+"/api/v1/players/p1/events", nil)
	require.NoError(t, err)
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var states []player.State
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var st statusBody
		require.NoError(t, json.Unmarshal([]byte(data), &st))
		assert.Equal(t, "p1", st.PlayerID)
		states = append(states, st.State)
		if st.State == player.StateReady {
			break
		}
	}
	require.NotEmpty(t, states)
	assert.Equal(t, player.StateReady, states[len(states)-1])
}

func TestEventsWithoutBus(t *testing.T) {
	h := newHarness(t, func(_ *Config, d *Deps) { d.Bus = nil })
	code, _, data := h.do(t, http.MethodGet, "/api/v1/players/p1/events", "")
	assert.Equal(t, http.StatusNotImplemented, code)
	assert.Equal(t, "events_disabled", decodeError(t, data).Error)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid reference", manifest.ErrInvalidReference, http.StatusBadRequest},
		{"no principal", errNoPrincipal, http.StatusBadRequest},
		{"lesson missing", &catalog.Error{Sentinel: catalog.ErrLessonNotFound, Operation: "lesson x"}, http.StatusNotFound},
		{"catalog down", &catalog.Error{Sentinel: catalog.ErrUnavailable, Operation: "lesson x", Status: 502}, http.StatusBadGateway},
		{"no session", player.ErrNoSession, http.StatusConflict},
		{"closed", player.ErrPlayerClosed, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, tt.err)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}
