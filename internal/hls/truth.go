// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package hls

import (
	"fmt"
	"time"
)

// SegmentTruth is timeline metadata derived from a media playlist.
type SegmentTruth struct {
	HasPDT        bool
	FirstPDT      time.Time
	LastPDT       time.Time
	LastDuration  time.Duration
	TotalDuration time.Duration
	IsVOD         bool
}

// Truth derives the timeline metadata of a parsed playlist and checks it:
// VOD vs live detection, PDT monotonicity, and full PDT coverage for live
// playlists.
func (p *MediaPlaylist) Truth() (*SegmentTruth, error) {
	truth := &SegmentTruth{IsVOD: p.TypeVOD || p.Ended}

	var lastPDT time.Time
	withPDT := 0
	for _, seg := range p.Segments {
		truth.TotalDuration += seg.Duration
		truth.LastDuration = seg.Duration
		if seg.PDT.IsZero() {
			continue
		}
		if !lastPDT.IsZero() && seg.PDT.Before(lastPDT) {
			return nil, fmt.Errorf("PDT non-monotonic: %v < %v", seg.PDT, lastPDT)
		}
		lastPDT = seg.PDT
		withPDT++
		if truth.FirstPDT.IsZero() {
			truth.FirstPDT = seg.PDT
		}
		truth.LastPDT = seg.PDT
	}
	truth.HasPDT = withPDT > 0

	if !truth.IsVOD && truth.HasPDT && withPDT != len(p.Segments) {
		return nil, fmt.Errorf("partial PDT coverage in live playlist (found %d/%d)", withPDT, len(p.Segments))
	}
	return truth, nil
}
