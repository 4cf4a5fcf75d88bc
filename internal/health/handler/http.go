package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes mounts /healthz (liveness) and /readyz (readiness) on r.
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", s.liveness).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.readiness).Methods(http.MethodGet)
}

func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	failed := s.Run(r.Context())
	checks := make(map[string]string, len(s.checks))
	for _, c := range s.checks {
		if err, ok := failed[c.Name]; ok {
			checks[c.Name] = err.Error()
		} else {
			checks[c.Name] = "ok"
		}
	}
	if len(failed) > 0 {
		writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": checks})
		return
	}
	writeStatus(w, http.StatusOK, map[string]any{"status": "ok", "checks": checks})
}

func writeStatus(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
