package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"rayview/internal/core/store"
	"rayview/internal/ingest"
	"rayview/internal/protocol"
	"rayview/internal/util"
)

// DefaultBindAddr is where senders expect the receiver to listen.
const DefaultBindAddr = "0.0.0.0:23517"

// maxBodySize bounds one request body. Tables and stack traces get
// large; anything beyond this is a broken sender.
const maxBodySize = 10 * 1024 * 1024

// Config carries the gateway settings.
type Config struct {
	BindAddr string
	Version  string
	DumpFile string
}

// Server is the HTTP-facing entry point: availability probe, payload
// submission and lock management. Submissions feed the ordered
// ingestion pipeline; the server itself never touches store internals
// beyond read-only lock lookups.
type Server struct {
	cfg      Config
	pipeline *ingest.Pipeline
	store    *store.Store
	handler  http.Handler
	httpSrv  *http.Server
	listener net.Listener
	dump     *dumpTap
}

// New wires the gateway. Start must be called to begin serving.
func New(cfg Config, pipeline *ingest.Pipeline, st *store.Store) *Server {
	if cfg.BindAddr == "" {
		cfg.BindAddr = DefaultBindAddr
	}
	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		store:    st,
	}
	if cfg.DumpFile != "" {
		s.dump = newDumpTap(cfg.DumpFile)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleAvailability)
	mux.HandleFunc("GET /_availability_check", s.handleAvailability)
	mux.HandleFunc("POST /{$}", s.handleIngest)
	mux.HandleFunc("GET /locks/{name}", s.handleLockStatus)
	mux.HandleFunc("POST /locks/{name}", s.handleLockAcquire)
	mux.HandleFunc("DELETE /locks/{name}", s.handleLockRelease)
	s.handler = mux
	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listener and serves in the background. A bind
// failure is returned immediately; without a port there is nothing to
// ingest, so callers treat it as fatal.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("cannot bind %s (is another receiver running?): %w", s.cfg.BindAddr, err)
	}
	s.listener = listener
	s.httpSrv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogErrorf("server: serve terminated: %v", err)
		}
	}()

	util.LogInfof("server: listening on %s", listener.Addr())
	return nil
}

// Addr returns the bound address, valid after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting connections and closes the dump tap.
// In-flight requests finish within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	if s.dump != nil {
		s.dump.close()
	}
	return err
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": s.cfg.Version,
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "unreadable body"})
		return
	}

	if s.dump != nil {
		s.dump.write(body)
	}

	req, err := protocol.Decode(body)
	if err != nil {
		util.LogDebugf("server: rejected malformed payload from %s: %v", r.RemoteAddr, err)
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "malformed request body"})
		return
	}

	err = s.pipeline.Submit(r.Context(), req, ingest.Source{RemoteAddr: r.RemoteAddr})
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"recorded": true, "uuid": req.UUID})
	case errors.Is(err, ingest.ErrQueueFull):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"recorded": false, "error": "ingestion queue full, retry"})
	case errors.Is(err, ingest.ErrShuttingDown):
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"recorded": false, "error": "shutting down"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"recorded": false, "error": err.Error()})
	}
}

func (s *Server) handleLockStatus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	active := s.store.Registry().Active(name)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":         active,
		"stop_execution": false,
	})
}

func (s *Server) handleLockAcquire(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	holder := lockHolder(r)
	locked := s.store.Registry().Acquire(name, holder)
	// A held lock is a normal negative result, not an error.
	writeJSON(w, http.StatusOK, map[string]interface{}{"locked": locked})
}

func (s *Server) handleLockRelease(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	released := s.store.Registry().Release(name)
	writeJSON(w, http.StatusOK, map[string]interface{}{"released": released})
}

// lockHolder derives the holder fingerprint from the declared query
// parameters, falling back to the peer address.
func lockHolder(r *http.Request) string {
	hostname := r.URL.Query().Get("hostname")
	project := r.URL.Query().Get("project_name")
	switch {
	case hostname != "" && project != "":
		return project + "@" + hostname
	case hostname != "":
		return hostname
	case project != "":
		return project
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	data, err := sonic.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
