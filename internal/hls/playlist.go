// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package hls parses HLS master and media playlists.
package hls

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// MIMEType is the registered media type of HLS playlists.
const MIMEType = "application/vnd.apple.mpegurl"

var (
	// ErrNotPlaylist is returned when the body does not start with #EXTM3U.
	ErrNotPlaylist = errors.New("hls: missing #EXTM3U header")
	// ErrNoVariants is returned for master playlists without any variant stream.
	ErrNoVariants = errors.New("hls: master playlist has no variants")
)

// Variant is one quality level of a master playlist.
type Variant struct {
	Bandwidth  int
	Resolution string
	Codecs     string
	Name       string
	URI        string // absolute
}

// MasterPlaylist lists the quality levels of a lesson.
type MasterPlaylist struct {
	URL      string
	Variants []Variant
}

// Segment is a media segment of a media playlist.
type Segment struct {
	Sequence int
	URI      string // absolute
	Duration time.Duration
	PDT      time.Time
}

// MediaPlaylist is a variant's segment list.
type MediaPlaylist struct {
	URL            string
	TargetDuration time.Duration
	MediaSequence  int
	Segments       []Segment
	Ended          bool // #EXT-X-ENDLIST
	TypeVOD        bool // #EXT-X-PLAYLIST-TYPE:VOD
}

// ParseMaster parses a master playlist. Relative URIs are resolved against
// base. A media playlist body is accepted as a single-variant master so that
// lessons published without a ladder still play.
func ParseMaster(body, base string) (*MasterPlaylist, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("hls: invalid base url: %w", err)
	}
	if !hasHeader(body) {
		return nil, ErrNotPlaylist
	}

	mp := &MasterPlaylist{URL: base}
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pending *Variant
	isMedia := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
			v := &Variant{
				Resolution: attrs["RESOLUTION"],
				Codecs:     attrs["CODECS"],
				Name:       attrs["NAME"],
			}
			if bw, err := strconv.Atoi(attrs["BANDWIDTH"]); err == nil {
				v.Bandwidth = bw
			} else {
				return nil, fmt.Errorf("hls: invalid BANDWIDTH %q", attrs["BANDWIDTH"])
			}
			pending = v
		case strings.HasPrefix(line, "#EXTINF:"), strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			isMedia = true
		case strings.HasPrefix(line, "#"):
			continue
		default:
			if pending == nil {
				continue
			}
			abs, err := resolve(baseURL, line)
			if err != nil {
				return nil, err
			}
			pending.URI = abs
			mp.Variants = append(mp.Variants, *pending)
			pending = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(mp.Variants) == 0 {
		if isMedia {
			mp.Variants = []Variant{{URI: baseURL.String(), Name: "default"}}
			return mp, nil
		}
		return nil, ErrNoVariants
	}
	return mp, nil
}

// ParseMedia parses a media playlist. Relative segment URIs are resolved against base.
func ParseMedia(body, base string) (*MediaPlaylist, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("hls: invalid base url: %w", err)
	}
	if !hasHeader(body) {
		return nil, ErrNotPlaylist
	}

	pl := &MediaPlaylist{URL: base}
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		nextDuration time.Duration
		nextPDT      time.Time
		seq          int
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			secs, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"))
			if err != nil {
				return nil, fmt.Errorf("hls: invalid target duration: %s", line)
			}
			pl.TargetDuration = time.Duration(secs) * time.Second
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			n, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"))
			if err != nil {
				return nil, fmt.Errorf("hls: invalid media sequence: %s", line)
			}
			pl.MediaSequence = n
			seq = n
		case strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:"):
			pl.TypeVOD = strings.TrimPrefix(line, "#EXT-X-PLAYLIST-TYPE:") == "VOD"
		case line == "#EXT-X-ENDLIST":
			pl.Ended = true
		case strings.HasPrefix(line, "#EXT-X-PROGRAM-DATE-TIME:"):
			raw := strings.TrimPrefix(line, "#EXT-X-PROGRAM-DATE-TIME:")
			t, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return nil, fmt.Errorf("hls: invalid PDT format: %s", raw)
			}
			nextPDT = t
		case strings.HasPrefix(line, "#EXTINF:"):
			durPart := strings.TrimPrefix(line, "#EXTINF:")
			if idx := strings.Index(durPart, ","); idx != -1 {
				durPart = durPart[:idx]
			}
			secs, err := strconv.ParseFloat(durPart, 64)
			if err != nil {
				return nil, fmt.Errorf("hls: invalid EXTINF duration: %s", durPart)
			}
			nextDuration = time.Duration(secs * float64(time.Second))
		case strings.HasPrefix(line, "#"):
			continue
		default:
			abs, err := resolve(baseURL, line)
			if err != nil {
				return nil, err
			}
			pl.Segments = append(pl.Segments, Segment{
				Sequence: seq,
				URI:      abs,
				Duration: nextDuration,
				PDT:      nextPDT,
			})
			seq++
			nextDuration = 0
			nextPDT = time.Time{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pl, nil
}

func hasHeader(body string) bool {
	trimmed := strings.TrimLeft(body, "\ufeff \t\r\n")
	return strings.HasPrefix(trimmed, "#EXTM3U")
}

func resolve(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("hls: invalid uri %q: %w", ref, err)
	}
	return base.ResolveReference(u).String(), nil
}

// parseAttributes splits an attribute list (KEY=VALUE,KEY="A,B") honouring quotes.
func parseAttributes(s string) map[string]string {
	out := make(map[string]string)
	for len(s) > 0 {
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			break
		}
		key := strings.TrimSpace(s[:eq])
		s = s[eq+1:]

		var val string
		if strings.HasPrefix(s, `"`) {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				val, s = s[1:], ""
			} else {
				val = s[1 : end+1]
				s = s[end+2:]
			}
			s = strings.TrimPrefix(s, ",")
		} else {
			comma := strings.IndexByte(s, ',')
			if comma < 0 {
				val, s = s, ""
			} else {
				val, s = s[:comma], s[comma+1:]
			}
		}
		out[key] = val
	}
	return out
}
