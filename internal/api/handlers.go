package api

import (
	"context"
	"net/http"
	"time"
)

// LandingHandler renders the landing page at GET /.
func (s *Server) LandingHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.render(w, "landing.html", nil)
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check connectivity of whichever backing stores support it
	type pinger interface{ Ping(ctx context.Context) error }
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	for _, dep := range []any{s.Credentials, s.States} {
		if p, ok := dep.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
				return
			}
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
