// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"

	"github.com/ManuGH/lessoncast/internal/catalog"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleLesson(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusNotImplemented, "catalog_disabled", "no lesson catalog configured")
		return
	}
	l, err := s.deps.Catalog.Lesson(r.Context(), chi.URLParam(r, "lessonID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleCourseLessons(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusNotImplemented, "catalog_disabled", "no lesson catalog configured")
		return
	}
	lessons, err := s.deps.Catalog.Lessons(r.Context(), chi.URLParam(r, "courseID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]catalog.Lesson{"lessons": lessons})
}
