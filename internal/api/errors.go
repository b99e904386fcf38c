// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/lessoncast/internal/catalog"
	"github.com/ManuGH/lessoncast/internal/manifest"
	"github.com/ManuGH/lessoncast/internal/player"
)

var (
	errPlayerNotFound = errors.New("player not found")
	errNoPrincipal    = errors.New("missing " + HeaderPrincipal + " header")
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, detail string) {
	writeJSON(w, code, errorResponse{Error: errCode, Detail: detail})
}

// writeServiceError maps domain errors onto HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	var catErr *catalog.Error
	switch {
	case errors.Is(err, manifest.ErrInvalidReference):
		writeError(w, http.StatusBadRequest, "invalid_reference", err.Error())
	case errors.Is(err, errNoPrincipal):
		writeError(w, http.StatusBadRequest, "missing_principal", err.Error())
	case errors.Is(err, errPlayerNotFound):
		writeError(w, http.StatusNotFound, "player_not_found", err.Error())
	case errors.Is(err, catalog.ErrLessonNotFound):
		writeError(w, http.StatusNotFound, "lesson_not_found", err.Error())
	case errors.Is(err, player.ErrNoSession):
		writeError(w, http.StatusConflict, "no_session", err.Error())
	case errors.Is(err, player.ErrPlayerLimit):
		writeError(w, http.StatusServiceUnavailable, "player_limit", err.Error())
	case errors.Is(err, player.ErrPlayerClosed):
		writeError(w, http.StatusServiceUnavailable, "player_closed", err.Error())
	case errors.As(err, &catErr):
		writeError(w, http.StatusBadGateway, "catalog_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
