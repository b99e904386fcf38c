// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ManuGH/lessoncast/internal/fetch"
	xglog "github.com/ManuGH/lessoncast/internal/log"
	"github.com/ManuGH/lessoncast/internal/player"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 64 << 10

type startSessionRequest struct {
	Lesson      string `json:"lesson"`
	Autoplay    *bool  `json:"autoplay,omitempty"`
	Credentials string `json:"credentials,omitempty"`
}

type sessionResponse struct {
	SessionID string        `json:"session_id"`
	Status    player.Status `json:"status"`
}

func (s *Server) existingPlayer(r *http.Request) (*player.Player, error) {
	id := chi.URLParam(r, "playerID")
	p, ok := s.deps.Players.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errPlayerNotFound, id)
	}
	return p, nil
}

func (s *Server) playerFor(r *http.Request) (*player.Player, error) {
	id := chi.URLParam(r, "playerID")
	if p, ok := s.deps.Players.Get(id); ok {
		return p, nil
	}
	return s.deps.Players.GetOrCreate(id)
}

func (s *Server) handleListPlayers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"players": s.deps.Players.IDs()})
}

func (s *Server) handleRemovePlayer(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Players.Remove(chi.URLParam(r, "playerID")) {
		writeServiceError(w, errPlayerNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	opts := player.SessionOptions{
		Autoplay:  s.cfg.Autoplay,
		Principal: strings.TrimSpace(r.Header.Get(HeaderPrincipal)),
	}
	if req.Autoplay != nil {
		opts.Autoplay = *req.Autoplay
	}
	if req.Credentials != "" {
		mode, err := fetch.ParseCredentialsMode(req.Credentials)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_credentials", err.Error())
			return
		}
		opts.Credentials = mode
	}

	p, err := s.playerFor(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h, err := p.StartSession(r.Context(), req.Lesson, opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	logger := xglog.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(xglog.FieldEvent, "api.session_started").
		Str(xglog.FieldPlayerID, p.ID()).
		Str(xglog.FieldSessionID, h.ID()).
		Str(xglog.FieldLessonRef, h.LessonRef()).
		Msg("session start accepted")

	w.Header().Set("Location", r.URL.Path)
	writeJSON(w, http.StatusAccepted, sessionResponse{SessionID: h.ID(), Status: h.Status()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	p, err := s.existingPlayer(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Status())
}

func (s *Server) handleDestroySession(w http.ResponseWriter, r *http.Request) {
	p, err := s.existingPlayer(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	p.DestroySession()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetrySession(w http.ResponseWriter, r *http.Request) {
	p, err := s.existingPlayer(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h, err := p.Retry(r.Context())
	if err != nil {
		if errors.Is(err, r.Context().Err()) {
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sessionResponse{SessionID: h.ID(), Status: h.Status()})
}
