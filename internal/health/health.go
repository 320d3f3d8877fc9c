// Package health exposes liveness and status endpoints for the bot.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/JPShag/ComitSwapBot/pkg/logging"
)

// Server serves /health and /status over HTTP.
type Server struct {
	srv   *http.Server
	log   *logging.Logger
	start time.Time

	mu     sync.RWMutex
	status map[string]interface{}
}

// NewServer creates a health server bound to addr.
func NewServer(addr string, log *logging.Logger) *Server {
	if log == nil {
		log = logging.GetDefault()
	}

	s := &Server{
		log:    log.Component("health"),
		start:  time.Now(),
		status: make(map[string]interface{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Start serves until the listener fails or Stop is called. Blocking.
func (s *Server) Start() error {
	s.log.Info("health server listening", "addr", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// UpdateStatus merges the given fields into the status document.
func (s *Server) UpdateStatus(fields map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range fields {
		s.status[k] = v
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	doc := make(map[string]interface{}, len(s.status)+1)
	for k, v := range s.status {
		doc[k] = v
	}
	s.mu.RUnlock()

	doc["uptime_seconds"] = int64(time.Since(s.start).Seconds())
	writeJSON(w, doc)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
