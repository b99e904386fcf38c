// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"
	"strings"

	"github.com/ManuGH/lessoncast/internal/manifest"
	"github.com/go-chi/chi/v5"
)

func (s *Server) progressKey(r *http.Request) (principal, ref string, err error) {
	principal = strings.TrimSpace(r.Header.Get(HeaderPrincipal))
	if principal == "" {
		return "", "", errNoPrincipal
	}
	ref, err = manifest.NormalizeRef(chi.URLParam(r, "lessonRef"))
	return principal, ref, err
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.Progress == nil {
		writeError(w, http.StatusNotImplemented, "progress_disabled", "progress tracking is not configured")
		return
	}
	principal, ref, err := s.progressKey(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	st, err := s.deps.Progress.Get(r.Context(), principal, ref)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "no_progress", "no progress recorded for "+ref)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDeleteProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.Progress == nil {
		writeError(w, http.StatusNotImplemented, "progress_disabled", "progress tracking is not configured")
		return
	}
	principal, ref, err := s.progressKey(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := s.deps.Progress.Delete(r.Context(), principal, ref); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
