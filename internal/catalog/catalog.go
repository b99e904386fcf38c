// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package catalog is the course catalog data source. Whether it talks to the
// simulated backend or the live server is fixed at construction by Config.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mode selects the backend a Client talks to.
type Mode string

const (
	ModeMock Mode = "mock"
	ModeLive Mode = "live"
)

// ParseMode validates a mode string. Empty selects mock.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeMock:
		return ModeMock, nil
	case ModeLive:
		return ModeLive, nil
	default:
		return "", fmt.Errorf("catalog: unknown mode %q (supported: mock, live)", s)
	}
}

// Config configures a catalog client.
type Config struct {
	Mode    Mode
	BaseURL string // live: API base; mock: base the synthesized video URLs point at
	Token   string
	Timeout time.Duration
}

// Lesson is a single video lesson.
type Lesson struct {
	ID              string `json:"id" yaml:"id"`
	CourseID        string `json:"course_id" yaml:"course_id"`
	Title           string `json:"title" yaml:"title"`
	Order           int    `json:"order" yaml:"order"`
	DurationSeconds int    `json:"duration_seconds" yaml:"duration_seconds"`
	VideoURL        string `json:"video_url,omitempty" yaml:"video_url,omitempty"`
}

var (
	// ErrLessonNotFound is returned for unknown lesson or course IDs.
	ErrLessonNotFound = errors.New("catalog: lesson not found")
	// ErrUnavailable wraps transport failures and 5xx responses.
	ErrUnavailable = errors.New("catalog: backend unavailable")
	// ErrBadResponse is returned for undecodable payloads.
	ErrBadResponse = errors.New("catalog: invalid response")
)

// Error carries request context around one of the sentinel errors.
type Error struct {
	Sentinel  error
	Operation string
	Status    int
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Sentinel }

// Client reads lessons.
type Client interface {
	Lesson(ctx context.Context, id string) (Lesson, error)
	Lessons(ctx context.Context, courseID string) ([]Lesson, error)
}

// New builds the client for cfg.Mode.
func New(cfg Config) (Client, error) {
	switch cfg.Mode {
	case ModeMock, "":
		return NewMock(cfg.BaseURL)
	case ModeLive:
		return NewLive(cfg)
	default:
		return nil, fmt.Errorf("catalog: unknown mode %q", cfg.Mode)
	}
}
