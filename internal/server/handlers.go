package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const homePage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Stock Portfolio Tracker</title></head>
<body>
<h1>Stock Portfolio Tracker</h1>
<p>Open <code>/profile/{username}</code> to view a portfolio.</p>
</body>
</html>
`

// handleHealth reports liveness and pings every database
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	databases := make(map[string]string)
	for _, db := range s.container.Databases() {
		if err := db.QuickCheck(ctx); err != nil {
			s.log.Error().Err(err).Str("database", db.Name()).Msg("Health check failed")
			databases[db.Name()] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		databases[db.Name()] = "ok"
	}

	response := map[string]interface{}{
		"status":    "healthy",
		"service":   "stocktracker",
		"databases": databases,
	}
	if status != http.StatusOK {
		response["status"] = "degraded"
	}

	s.writeJSON(w, status, response)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(homePage))
}

// handleAuth answers every /auth route; authentication is not implemented
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Not Implemented", http.StatusNotImplemented)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
