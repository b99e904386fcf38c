// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package mockapi is the simulated lesson backend: a catalog API plus
// synthesized HLS content for every fixture lesson, with fault injection.
package mockapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/lessoncast/internal/catalog"
	"github.com/ManuGH/lessoncast/internal/hls"
	xglog "github.com/ManuGH/lessoncast/internal/log"
	"github.com/go-chi/chi/v5"
)

const (
	tsPacketSize      = 188
	packetsPerSegment = 8
	defaultSegmentDur = 4 * time.Second
)

// Variant is one rendition the backend synthesizes.
type Variant struct {
	Name       string
	Bandwidth  int
	Resolution string
}

// DefaultVariants are served for every lesson.
var DefaultVariants = []Variant{
	{Name: "480p", Bandwidth: 800_000, Resolution: "854x480"},
	{Name: "720p", Bandwidth: 2_800_000, Resolution: "1280x720"},
}

// Option configures a Server.
type Option func(*Server)

// WithVariants replaces the synthesized renditions.
func WithVariants(v ...Variant) Option {
	return func(s *Server) { s.variants = append([]Variant(nil), v...) }
}

// WithSegmentDuration sets the EXTINF duration of every segment.
func WithSegmentDuration(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.segmentDur = d
		}
	}
}

// WithSegmentCount fixes the number of segments per lesson instead of
// deriving it from the lesson duration.
func WithSegmentCount(n int) Option {
	return func(s *Server) { s.segmentCount = n }
}

type fault struct {
	status    int
	remaining int // <0: forever
}

// Server serves the simulated backend.
type Server struct {
	lessons      *catalog.MockClient
	variants     []Variant
	segmentDur   time.Duration
	segmentCount int

	mu     sync.Mutex
	faults map[string]*fault
	delays map[string]time.Duration
	hits   map[string]int

	router chi.Router
}

// New builds a backend over the fixture catalog.
func New(lessons *catalog.MockClient, opts ...Option) (*Server, error) {
	if lessons == nil {
		return nil, errors.New("mockapi: lesson catalog is required")
	}
	s := &Server{
		lessons:    lessons,
		variants:   DefaultVariants,
		segmentDur: defaultSegmentDur,
		faults:     make(map[string]*fault),
		delays:     make(map[string]time.Duration),
		hits:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(s.inject)
	r.Get("/api/lessons/{lessonID}", s.handleLesson)
	r.Get("/api/courses/{courseID}/lessons", s.handleCourse)
	r.Route("/lessons/{lessonID}", func(r chi.Router) {
		r.Get("/master-manifest", s.handleMaster)
		r.Get("/{variant}/index.m3u8", s.handleMedia)
		r.Get("/{variant}/{segment}", s.handleSegment)
	})
	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetFault makes the next count requests for path answer with status.
// A negative count injects the fault until ClearFaults.
func (s *Server) SetFault(path string, status, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[path] = &fault{status: status, remaining: count}
}

// SetDelay delays every response for path.
func (s *Server) SetDelay(path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[path] = d
}

// ClearFaults removes every injected fault and delay.
func (s *Server) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[string]*fault)
	s.delays = make(map[string]time.Duration)
}

// Hits returns how many requests reached path, injected faults included.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		s.mu.Lock()
		s.hits[path]++
		delay := s.delays[path]
		status := 0
		if f, ok := s.faults[path]; ok && f.remaining != 0 {
			status = f.status
			if f.remaining > 0 {
				f.remaining--
			}
		}
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			logger := xglog.WithComponent("mockapi")
			logger.Debug().
				Str("path", path).
				Int("status", status).
				Msg("injected fault")
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) lesson(w http.ResponseWriter, r *http.Request) (catalog.Lesson, bool) {
	l, err := s.lessons.Lesson(r.Context(), chi.URLParam(r, "lessonID"))
	if err != nil {
		http.Error(w, "lesson not found", http.StatusNotFound)
		return catalog.Lesson{}, false
	}
	return l, true
}

func (s *Server) variant(name string) (Variant, bool) {
	for _, v := range s.variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

func (s *Server) segments(l catalog.Lesson) int {
	if s.segmentCount > 0 {
		return s.segmentCount
	}
	n := int(math.Ceil(float64(l.DurationSeconds) / s.segmentDur.Seconds()))
	if n < 1 {
		n = 1
	}
	return n
}

func (s *Server) handleLesson(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lesson(w, r)
	if !ok {
		return
	}
	writeJSON(w, l)
}

func (s *Server) handleCourse(w http.ResponseWriter, r *http.Request) {
	lessons, err := s.lessons.Lessons(r.Context(), chi.URLParam(r, "courseID"))
	if err != nil {
		http.Error(w, "course not found", http.StatusNotFound)
		return
	}
	writeJSON(w, struct {
		Lessons []catalog.Lesson `json:"lessons"`
	}{lessons})
}

func (s *Server) handleMaster(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.lesson(w, r); !ok {
		return
	}
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
	for _, v := range s.variants {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n%s/index.m3u8\n", v.Bandwidth, v.Resolution, v.Name)
	}
	writePlaylist(w, b.String())
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lesson(w, r)
	if !ok {
		return
	}
	if _, ok := s.variant(chi.URLParam(r, "variant")); !ok {
		http.NotFound(w, r)
		return
	}

	n := s.segments(l)
	secs := s.segmentDur.Seconds()
	var b strings.Builder
	fmt.Fprintf(&b, "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-PLAYLIST-TYPE:VOD\n#EXT-X-TARGETDURATION:%d\n#EXT-X-MEDIA-SEQUENCE:0\n", int(math.Ceil(secs)))
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "#EXTINF:%.3f,\nseg-%d.ts\n", secs, i)
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	writePlaylist(w, b.String())
}

func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lesson(w, r)
	if !ok {
		return
	}
	v, ok := s.variant(chi.URLParam(r, "variant"))
	seg := chi.URLParam(r, "segment")
	if !ok || !strings.HasPrefix(seg, "seg-") || !strings.HasSuffix(seg, ".ts") {
		http.NotFound(w, r)
		return
	}
	idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(seg, "seg-"), ".ts"))
	if err != nil || idx < 0 || idx >= s.segments(l) {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "video/mp2t")
	_, _ = w.Write(Segment(v.Bandwidth, idx))
}

// Segment synthesizes an MPEG-TS payload: sync-byte aligned packets whose
// bodies encode the rendition and sequence number.
func Segment(bandwidth, sequence int) []byte {
	out := make([]byte, tsPacketSize*packetsPerSegment)
	for p := 0; p < packetsPerSegment; p++ {
		pkt := out[p*tsPacketSize : (p+1)*tsPacketSize]
		pkt[0] = 0x47
		pkt[1] = byte(sequence >> 8)
		pkt[2] = byte(sequence)
		pkt[3] = byte(p)
		for i := 4; i < tsPacketSize; i++ {
			pkt[i] = byte(bandwidth >> (8 * (i % 4)))
		}
	}
	return out
}

func writePlaylist(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", hls.MIMEType)
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
