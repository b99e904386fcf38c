// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package manifest maps lesson references to playable manifest addresses.
// Resolution strategies compose: a Signed resolver decorates a base one and
// Cached memoizes any of them.
package manifest

import (
	"errors"
	"net/url"
	"path"
	"strings"
	"unicode"

	"github.com/ManuGH/lessoncast/internal/hls"
	"golang.org/x/text/unicode/norm"
)

// MIMEProgressive is the media type of single-file lessons.
const MIMEProgressive = "video/mp4"

var (
	// ErrInvalidReference is returned for empty or malformed lesson references.
	ErrInvalidReference = errors.New("manifest: invalid lesson reference")
	// ErrNotFound is returned when a strategy has no manifest for a reference.
	ErrNotFound = errors.New("manifest: lesson has no manifest")
)

// Source is a resolved playable address.
type Source struct {
	URL  string `json:"url"`
	MIME string `json:"mime"`
}

// IsHLS reports whether the source needs a streaming client or native HLS support.
func (s Source) IsHLS() bool { return s.MIME == hls.MIMEType }

// InferMIME guesses the media type from the URL path. Unknown extensions,
// including the extensionless master-manifest endpoint, are treated as HLS.
func InferMIME(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".mp4", ".m4v":
		return MIMEProgressive
	case ".webm":
		return "video/webm"
	default:
		return hls.MIMEType
	}
}

// NormalizeRef returns the canonical (NFC, trimmed) form of ref. References
// must be non-empty and may not contain path separators, dot segments or
// control characters.
func NormalizeRef(ref string) (string, error) {
	ref = norm.NFC.String(strings.TrimSpace(ref))
	if ref == "" || ref == "." || ref == ".." {
		return "", ErrInvalidReference
	}
	if strings.ContainsAny(ref, `/\?#`) {
		return "", ErrInvalidReference
	}
	for _, r := range ref {
		if unicode.IsControl(r) {
			return "", ErrInvalidReference
		}
	}
	return ref, nil
}
