// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package fetch retrieves manifests and media segments under a per-call
// credentials policy.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	xglog "github.com/ManuGH/lessoncast/internal/log"
	"github.com/ManuGH/lessoncast/internal/metrics"
	"github.com/ManuGH/lessoncast/internal/resilience"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// CredentialsMode mirrors the browser fetch credentials policy.
type CredentialsMode string

const (
	CredentialsOmit       CredentialsMode = "omit"
	CredentialsSameOrigin CredentialsMode = "same-origin"
	CredentialsInclude    CredentialsMode = "include"
)

// ParseCredentialsMode validates s. The empty string maps to same-origin.
func ParseCredentialsMode(s string) (CredentialsMode, error) {
	switch CredentialsMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", CredentialsSameOrigin:
		return CredentialsSameOrigin, nil
	case CredentialsOmit:
		return CredentialsOmit, nil
	case CredentialsInclude:
		return CredentialsInclude, nil
	default:
		return "", fmt.Errorf("unknown credentials mode %q (want omit, same-origin or include)", s)
	}
}

// Fetcher is the manifest/segment fetch collaborator.
type Fetcher interface {
	// FetchText retrieves a playlist body.
	FetchText(ctx context.Context, rawURL string, creds CredentialsMode) (string, error)
	// FetchBytes retrieves binary segment content.
	FetchBytes(ctx context.Context, rawURL string, creds CredentialsMode) ([]byte, error)
}

// Config configures an HTTPFetcher.
type Config struct {
	Timeout          time.Duration
	Origin           string  // application origin used for same-origin decisions
	Token            string  // bearer token attached when credentials apply
	SegmentRate      float64 // segment requests per second, 0 = unlimited
	SegmentBurst     int
	BreakerThreshold int
	BreakerReset     time.Duration
	MaxTextBytes     int64
	MaxSegmentBytes  int64
}

// HTTPFetcher implements Fetcher over net/http.
type HTTPFetcher struct {
	client   *http.Client
	jar      http.CookieJar
	origin   Origin
	token    string
	limiter  *rate.Limiter
	breakers *resilience.Registry
	maxText  int64
	maxSeg   int64
	logger   zerolog.Logger
}

// NewHTTPFetcher builds a fetcher from cfg.
func NewHTTPFetcher(cfg Config) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	f := &HTTPFetcher{
		client:  newHTTPClient(cfg.Timeout),
		jar:     jar,
		token:   cfg.Token,
		maxText: cfg.MaxTextBytes,
		maxSeg:  cfg.MaxSegmentBytes,
		logger:  xglog.WithComponent("fetch"),
		breakers: resilience.NewRegistry(cfg.BreakerThreshold, cfg.BreakerReset,
			resilience.WithFailureFilter(IsNetwork)),
	}
	if f.maxText <= 0 {
		f.maxText = 4 << 20
	}
	if f.maxSeg <= 0 {
		f.maxSeg = 64 << 20
	}
	if cfg.Origin != "" {
		o, err := ParseOrigin(cfg.Origin)
		if err != nil {
			return nil, fmt.Errorf("fetch origin: %w", err)
		}
		f.origin = o
	}
	if cfg.SegmentRate > 0 {
		burst := cfg.SegmentBurst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.SegmentRate), burst)
	}
	return f, nil
}

// FetchText implements Fetcher.
func (f *HTTPFetcher) FetchText(ctx context.Context, rawURL string, creds CredentialsMode) (string, error) {
	body, err := f.do(ctx, "playlist", rawURL, creds, f.maxText)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FetchBytes implements Fetcher.
func (f *HTTPFetcher) FetchBytes(ctx context.Context, rawURL string, creds CredentialsMode) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("segment limiter: %w", err)
		}
	}
	return f.do(ctx, "segment", rawURL, creds, f.maxSeg)
}

func (f *HTTPFetcher) do(ctx context.Context, kind, rawURL string, creds CredentialsMode, limit int64) ([]byte, error) {
	u, err := parseFetchURL(rawURL)
	if err != nil {
		return nil, err
	}

	var body []byte
	breaker := f.breakers.Get(u.Host)
	err = breaker.Execute(func() error {
		var innerErr error
		body, innerErr = f.roundTrip(ctx, kind, u, creds, limit)
		return innerErr
	})
	if err != nil {
		f.logger.Debug().
			Err(err).
			Str(xglog.FieldEvent, "fetch.failed").
			Str("kind", kind).
			Str(xglog.FieldURL, redact(u)).
			Msg("fetch failed")
		return nil, err
	}
	return body, nil
}

// parseFetchURL accepts absolute http and https URLs only.
func parseFetchURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q in %s", ErrInvalidURL, u.Scheme, redact(u))
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %s", ErrInvalidURL, redact(u))
	}
	return u, nil
}

func (f *HTTPFetcher) roundTrip(ctx context.Context, kind string, u *url.URL, creds CredentialsMode, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	attach := f.credentialsApply(u, creds)
	if attach {
		for _, c := range f.jar.Cookies(u) {
			req.AddCookie(c)
		}
		if f.token != "" {
			req.Header.Set("Authorization", "Bearer "+f.token)
		}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		metrics.ObserveFetch(kind, 0, time.Since(start))
		return nil, fmt.Errorf("fetch %s: %w", redact(u), err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.ObserveFetch(kind, resp.StatusCode, time.Since(start))

	if attach {
		if cookies := resp.Cookies(); len(cookies) > 0 {
			f.jar.SetCookies(u, cookies)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, URL: redact(u)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", redact(u), err)
	}
	if int64(len(body)) > limit {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

// credentialsApply decides whether cookies and the bearer token go out with a request to u.
func (f *HTTPFetcher) credentialsApply(u *url.URL, creds CredentialsMode) bool {
	switch creds {
	case CredentialsInclude:
		return true
	case CredentialsOmit:
		return false
	default:
		if f.origin.IsZero() {
			return false
		}
		o, err := ParseOrigin(u.String())
		if err != nil {
			return false
		}
		return o == f.origin
	}
}

// redact strips userinfo and query (signatures, tokens) for logging.
func redact(u *url.URL) string {
	c := *u
	c.User = nil
	c.RawQuery = ""
	return c.String()
}
