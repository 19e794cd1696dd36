// Package api provides the HTTP server: the JSON index API, the SSE event
// stream, static file serving and the embedded web UI.
package api

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kennedydane/static-server/internal/events"
	"github.com/kennedydane/static-server/internal/index"
	"github.com/kennedydane/static-server/internal/logging"
	"github.com/kennedydane/static-server/internal/metrics"
	"github.com/kennedydane/static-server/webapp"
)

// heartbeatInterval keeps idle SSE connections alive through proxies and
// lets dead peers surface as write errors.
const heartbeatInterval = 30 * time.Second

// Pool gzip writers to reduce allocations on the tree endpoint.
var gzipPool = sync.Pool{
	New: func() any { return gzip.NewWriter(nil) },
}

// Server is the HTTP server. It only reads the core's state: the current
// snapshot, the broadcaster, and a rescan trigger.
type Server struct {
	store       *index.Store
	broadcaster *events.Broadcaster
	rescan      func()
	root        string
	marker      string
}

// NewServer creates a server over the given snapshot store. rescan is
// invoked for POST /api/v1/rescan and may be nil.
func NewServer(store *index.Store, broadcaster *events.Broadcaster, rescan func(), root, marker string) *Server {
	return &Server{
		store:       store,
		broadcaster: broadcaster,
		rescan:      rescan,
		root:        root,
		marker:      marker,
	}
}

// Handler returns the full route tree wrapped in logging and metrics
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/app/", http.StatusMovedPermanently)
	})

	mux.Handle("GET /app/", http.StripPrefix("/app/", http.FileServerFS(webapp.Assets)))

	mux.HandleFunc("GET /api/v1/tree", s.handleTree)
	mux.HandleFunc("GET /api/v1/files", s.handleFiles)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("POST /api/v1/rescan", s.handleRescan)
	mux.HandleFunc("GET /api/v1/healthz", s.handleHealth)

	mux.HandleFunc("GET /files/{path...}", s.handleContent)

	return logging.Middleware(metricsMiddleware(mux))
}

// metricsMiddleware records request count and latency per route.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RecordHTTPRequest(r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) sendJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")

	if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzipPool.Get().(*gzip.Writer)
		defer gzipPool.Put(gz)
		gz.Reset(w)
		defer gz.Close()
		json.NewEncoder(gz).Encode(v)
		return
	}
	json.NewEncoder(w).Encode(v)
}

// ─── Index API ──────────────────────────────────────────────────────────────

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, r, s.store.Current())
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, r, s.store.Current().Flatten())
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	if s.rescan == nil {
		s.sendError(w, http.StatusNotImplemented, "rescan not available")
		return
	}
	s.rescan()
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "rescan queued"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ─── SSE Events ─────────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(sub)
	logging.L().Debug("sse client connected", zap.String("subscriber", sub.ID))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case event, ok := <-sub.C:
			if !ok {
				// Dropped by the broadcaster for falling behind.
				logging.L().Warn("sse client dropped", zap.String("subscriber", sub.ID))
				return
			}
			data, err := event.Marshal()
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// ─── Static Content ─────────────────────────────────────────────────────────

// handleContent serves the indexed files themselves. http.ServeFile brings
// byte-range and conditional-request support.
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	rel := r.PathValue("path")

	clean := path.Clean("/" + rel)
	for _, segment := range strings.Split(clean, "/") {
		if segment == ".." {
			s.sendError(w, http.StatusBadRequest, "invalid path")
			return
		}
		if segment == s.marker || strings.HasPrefix(segment, ".") {
			s.sendError(w, http.StatusNotFound, "not found")
			return
		}
	}

	full := filepath.Join(s.root, filepath.FromSlash(clean))
	if fi, err := os.Stat(full); err != nil || fi.IsDir() {
		// No directory listings; the index API is the browse surface.
		s.sendError(w, http.StatusNotFound, "not found")
		return
	}
	http.ServeFile(w, r, full)
}
