// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultTimeout = 10 * time.Second

// LiveClient reads the catalog from the REST backend.
type LiveClient struct {
	base  string
	token string
	http  *http.Client
}

// NewLive builds a client for cfg.BaseURL.
func NewLive(cfg Config) (*LiveClient, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("catalog: live mode requires an absolute base url, got %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &LiveClient{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		token: cfg.Token,
		http:  &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}, nil
}

func (c *LiveClient) Lesson(ctx context.Context, id string) (Lesson, error) {
	var l Lesson
	op := "lesson " + id
	if err := c.get(ctx, op, "/api/lessons/"+url.PathEscape(id), &l); err != nil {
		return Lesson{}, err
	}
	return l, nil
}

func (c *LiveClient) Lessons(ctx context.Context, courseID string) ([]Lesson, error) {
	var p struct {
		Lessons []Lesson `json:"lessons"`
	}
	op := "course " + courseID
	if err := c.get(ctx, op, "/api/courses/"+url.PathEscape(courseID)+"/lessons", &p); err != nil {
		return nil, err
	}
	return p.Lessons, nil
}

func (c *LiveClient) get(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return &Error{Sentinel: ErrUnavailable, Operation: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &Error{Sentinel: ErrUnavailable, Operation: op, Err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return &Error{Sentinel: ErrLessonNotFound, Operation: op, Status: res.StatusCode}
	case res.StatusCode >= 500:
		return &Error{Sentinel: ErrUnavailable, Operation: op, Status: res.StatusCode}
	case res.StatusCode != http.StatusOK:
		return &Error{Sentinel: ErrBadResponse, Operation: op, Status: res.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(out); err != nil {
		return &Error{Sentinel: ErrBadResponse, Operation: op, Err: err}
	}
	return nil
}
