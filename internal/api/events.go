// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	xglog "github.com/ManuGH/lessoncast/internal/log"
	"github.com/ManuGH/lessoncast/internal/player"
)

// handleEvents streams status updates of one player as server-sent events.
// The current status is sent first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bus == nil {
		writeError(w, http.StatusNotImplemented, "events_disabled", "no event bus configured")
		return
	}
	p, err := s.existingPlayer(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	ctx := r.Context()
	sub, err := s.deps.Bus.Subscribe(ctx, player.Topic(p.ID()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer func() { _ = sub.Close() }()

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	if err := rc.Flush(); err != nil {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", err.Error())
		return
	}
	_ = rc.SetWriteDeadline(time.Time{})

	logger := xglog.WithComponentFromContext(ctx, "api")
	var seq int
	send := func(st player.Status) bool {
		data, err := json.Marshal(st)
		if err != nil {
			logger.Error().Err(err).Msg("encode status event")
			return false
		}
		seq++
		if _, err := fmt.Fprintf(w, "id: %d\nevent: status\ndata: %s\n\n", seq, data); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	if !send(p.Status()) {
		return
	}

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			st, ok := msg.(player.Status)
			if !ok {
				continue
			}
			if !send(st) {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil || rc.Flush() != nil {
				return
			}
		}
	}
}
