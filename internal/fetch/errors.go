// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ManuGH/lessoncast/internal/resilience"
)

var (
	// ErrBodyTooLarge is returned when a response exceeds the configured limit.
	ErrBodyTooLarge = errors.New("fetch: response body too large")
	// ErrInvalidURL is returned for addresses that cannot be fetched at all:
	// unparsable, relative, or not http(s). Retrying never helps.
	ErrInvalidURL = errors.New("fetch: invalid url")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// StatusCode returns the HTTP status of err, or 0 when err is not a StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsClientError reports a definitive 4xx answer that retrying will not change.
// 408 and 429 are transient and excluded.
func IsClientError(err error) bool {
	code := StatusCode(err)
	return code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

// IsNetwork reports whether err is a transient transport-level failure:
// connection errors, timeouts, 5xx, 408, 429 and an open circuit.
// Caller cancellation is not a network fault.
func IsNetwork(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return true
	}
	if code := StatusCode(err); code != 0 {
		return !IsClientError(err)
	}
	return !errors.Is(err, ErrBodyTooLarge) && !errors.Is(err, ErrInvalidURL)
}
