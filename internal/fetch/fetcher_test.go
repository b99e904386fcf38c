// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/lessoncast/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(t *testing.T, cfg Config) *HTTPFetcher {
	t.Helper()
	f, err := NewHTTPFetcher(cfg)
	require.NoError(t, err)
	return f
}

func TestParseCredentialsMode(t *testing.T) {
	tests := []struct {
		in      string
		want    CredentialsMode
		wantErr bool
	}{
		{in: "", want: CredentialsSameOrigin},
		{in: "include", want: CredentialsInclude},
		{in: " OMIT ", want: CredentialsOmit},
		{in: "same-origin", want: CredentialsSameOrigin},
		{in: "always", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseCredentialsMode(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestFetchText_CredentialsPolicy(t *testing.T) {
	var lastAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastAuth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("#EXTM3U\n"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{Origin: srv.URL, Token: "secret"})
	ctx := context.Background()

	tests := []struct {
		creds    CredentialsMode
		wantAuth string
	}{
		{creds: CredentialsInclude, wantAuth: "Bearer secret"},
		{creds: CredentialsOmit, wantAuth: ""},
		{creds: CredentialsSameOrigin, wantAuth: "Bearer secret"},
	}
	for _, tt := range tests {
		t.Run(string(tt.creds), func(t *testing.T) {
			body, err := f.FetchText(ctx, srv.URL+"/lessons/1/master-manifest", tt.creds)
			require.NoError(t, err)
			assert.Equal(t, "#EXTM3U\n", body)
			assert.Equal(t, tt.wantAuth, lastAuth.Load())
		})
	}
}

func TestFetchText_SameOriginSkipsForeignHost(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{Origin: "https://app.example.com", Token: "secret"})
	_, err := f.FetchText(context.Background(), srv.URL, CredentialsSameOrigin)
	require.NoError(t, err)
	assert.Equal(t, "", gotAuth.Load())
}

func TestFetch_CookiesRoundTripOnlyWithCredentials(t *testing.T) {
	var sawCookie atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("sid"); err == nil {
			sawCookie.Store(true)
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{})
	ctx := context.Background()

	_, err := f.FetchBytes(ctx, srv.URL+"/a", CredentialsInclude)
	require.NoError(t, err)
	_, err = f.FetchBytes(ctx, srv.URL+"/b", CredentialsOmit)
	require.NoError(t, err)
	assert.False(t, sawCookie.Load(), "omit must not send cookies")

	_, err = f.FetchBytes(ctx, srv.URL+"/c", CredentialsInclude)
	require.NoError(t, err)
	assert.True(t, sawCookie.Load())
}

func TestFetch_StatusClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/busy":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{BreakerThreshold: 100})
	ctx := context.Background()

	_, err := f.FetchText(ctx, srv.URL+"/missing", CredentialsOmit)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
	assert.True(t, IsClientError(err))
	assert.False(t, IsNetwork(err))

	_, err = f.FetchText(ctx, srv.URL+"/busy", CredentialsOmit)
	assert.True(t, IsNetwork(err))

	_, err = f.FetchBytes(ctx, srv.URL+"/seg.ts", CredentialsOmit)
	assert.True(t, IsNetwork(err))
	assert.False(t, IsClientError(err))
}

func TestFetch_TransportErrorIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	f := newTestFetcher(t, Config{Timeout: time.Second})
	_, err := f.FetchText(context.Background(), addr, CredentialsOmit)
	require.Error(t, err)
	assert.True(t, IsNetwork(err))
}

func TestFetch_BreakerOpensPerHost(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{BreakerThreshold: 2, BreakerReset: time.Minute})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := f.FetchBytes(ctx, srv.URL, CredentialsOmit)
		require.Error(t, err)
	}
	_, err := f.FetchBytes(ctx, srv.URL, CredentialsOmit)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.True(t, IsNetwork(err))
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetch_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 128))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{MaxSegmentBytes: 64})
	_, err := f.FetchBytes(context.Background(), srv.URL, CredentialsOmit)
	require.ErrorIs(t, err, ErrBodyTooLarge)
	assert.False(t, IsNetwork(err))
}

func TestFetch_InvalidURLIsNotNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	f := newTestFetcher(t, Config{BreakerThreshold: 1, BreakerReset: time.Minute})
	tests := []string{
		"ftp://example.invalid/master.m3u8",
		"/lessons/1/master-manifest",
		"http://%zz",
		"https:///no-host",
	}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, err := f.FetchText(context.Background(), raw, CredentialsOmit)
			require.ErrorIs(t, err, ErrInvalidURL)
			assert.False(t, IsNetwork(err))
		})
	}

	// Invalid addresses never count against the breaker.
	_, err := f.FetchText(context.Background(), srv.URL, CredentialsOmit)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestIsNetwork_CancelIsNotNetwork(t *testing.T) {
	assert.False(t, IsNetwork(context.Canceled))
	assert.False(t, IsNetwork(nil))
	assert.True(t, IsNetwork(errors.New("connection reset")))
}

func TestParseOrigin(t *testing.T) {
	a, err := ParseOrigin("HTTPS://Bücher.Example/x")
	require.NoError(t, err)
	assert.Equal(t, "https://xn--bcher-kva.example:443", a.String())

	b, err := ParseOrigin("https://xn--bcher-kva.example:443/other")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = ParseOrigin("/relative")
	require.Error(t, err)
}
