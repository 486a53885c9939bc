package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dusk-indust/roadmap/internal/codec"
	"github.com/dusk-indust/roadmap/internal/logging"
	"github.com/dusk-indust/roadmap/internal/repo"
)

// maxRequestBody bounds the size of a write request.
const maxRequestBody = 16 << 20

// benignServerErrors are http.Server error-log messages that carry no signal
// for this service.
var benignServerErrors = []string{
	"TLS handshake error",
	"superfluous response.WriteHeader",
}

// Server serves the roadmap remote surface over a repository.
type Server struct {
	repo    repo.Repository
	logger  *slog.Logger
	origins []string
	http    *http.Server
	addr    string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithAllowedOrigins sets the CORS origin allow-list.
func WithAllowedOrigins(origins ...string) ServerOption {
	return func(s *Server) { s.origins = origins }
}

// NewServer creates a server over r.
func NewServer(r repo.Repository, opts ...ServerOption) *Server {
	s := &Server{
		repo:    r,
		logger:  slog.Default(),
		origins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler wrapped in CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /roadmaps", s.handleCreateRoadmap)
	mux.HandleFunc("GET /roadmaps/{id}", s.handleGetRoadmap)
	mux.HandleFunc("PUT /roadmaps/{id}", s.handleUpdateRoadmap)
	mux.HandleFunc("GET /roadmaps/{id}/nodes", s.handleGetNodes)
	mux.HandleFunc("PUT /roadmaps/{id}/nodes", s.handlePutNodes)
	mux.HandleFunc("GET /roadmaps/{id}/edges", s.handleGetEdges)
	mux.HandleFunc("PUT /roadmaps/{id}/edges", s.handlePutEdges)
	mux.HandleFunc("POST /roadmaps/{id}/edges", s.handleAppendEdges)
	mux.HandleFunc("GET /roadmaps/{id}/nodes/{node}/prerequisites", s.handlePrerequisites)

	return logRequests(s.logger, cors(s.origins, mux))
}

// Start binds addr and begins serving in a background goroutine. It returns
// once the listener is open.
func (s *Server) Start(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", addr, err)
	}
	s.addr = ln.Addr().String()

	errLog := slog.NewLogLogger(logging.DropMessages(s.logger.Handler(), benignServerErrors...), slog.LevelWarn)
	s.http = &http.Server{
		Handler:           s.Handler(),
		ErrorLog:          errLog,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server stopped", "err", err)
		}
	}()
	s.logger.Info("roadmap api listening", "addr", s.addr)
	return nil
}

// Addr returns the bound address once Start has returned.
func (s *Server) Addr() string { return s.addr }

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// ---------- Handlers ----------

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateRoadmap(w http.ResponseWriter, r *http.Request) {
	var meta codec.Roadmap
	if !readJSON(w, r, &meta) {
		return
	}
	created, err := s.repo.CreateRoadmap(r.Context(), meta)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetRoadmap(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	meta, err := s.repo.GetRoadmap(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleUpdateRoadmap(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var meta codec.Roadmap
	if !readJSON(w, r, &meta) {
		return
	}
	updated, err := s.repo.UpdateRoadmap(r.Context(), id, meta)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleGetNodes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	nodes, err := s.repo.Nodes(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(nodes))
}

func (s *Server) handlePutNodes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var nodes []codec.NodeRecord
	if !readJSON(w, r, &nodes) {
		return
	}
	if err := s.repo.ReplaceNodes(r.Context(), id, nodes); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetEdges(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	edges, err := s.repo.Edges(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(edges))
}

func (s *Server) handlePutEdges(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var edges []codec.EdgeRecord
	if !readJSON(w, r, &edges) {
		return
	}
	if err := s.repo.ReplaceEdges(r.Context(), id, edges); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAppendEdges(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var edges []codec.EdgeRecord
	if !readJSON(w, r, &edges) {
		return
	}
	if err := s.repo.AppendEdges(r.Context(), id, edges); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePrerequisites serves the transitive prerequisites of a node.
// The optional depth query parameter bounds the walk.
func (s *Server) handlePrerequisites(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	finder, ok := s.repo.(repo.PrerequisiteFinder)
	if !ok {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "prerequisite queries not supported by this store"})
		return
	}
	depth := 0
	if raw := r.URL.Query().Get("depth"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "depth must be a non-negative integer"})
			return
		}
		depth = d
	}
	ids, err := finder.Prerequisites(r.Context(), id, r.PathValue("node"), depth)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ids))
}

// ---------- Helpers ----------

type errorBody struct {
	Error string `json:"error"`
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid roadmap id"})
		return 0, false
	}
	return id, true
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	s.logger.ErrorContext(r.Context(), "repository call failed", "method", r.Method, "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}
