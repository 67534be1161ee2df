package server

import (
	"encoding/json"
	"net/http"

	"github.com/zeusync/otsync/internal/core/observability/log"
	"github.com/zeusync/otsync/internal/core/ot"
)

// Health is the body of GET /healthz.
type Health struct {
	Status    string `json:"status"`
	Documents int    `json:"documents"`
	Commits   uint64 `json:"commits"`
}

// DocumentInfo is the body of GET /documents/{id}.
type DocumentInfo struct {
	ID         string      `json:"id"`
	Revision   ot.Revision `json:"revision"`
	Operations int         `json:"operations"`
}

// Routes returns the HTTP handler: the websocket endpoint plus read-only
// inspection routes.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.ws)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /documents/{id}", s.handleDocument)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, Health{
		Status:    "ok",
		Documents: len(s.repo.Documents()),
		Commits:   s.commits.Load(),
	})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rev, count := s.repo.Head(id)
	s.writeJSON(w, DocumentInfo{ID: id, Revision: rev, Operations: count})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Writing HTTP response failed", log.Error(err))
	}
}
