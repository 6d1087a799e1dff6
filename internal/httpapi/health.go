package httpapi

import (
	"context"
	"net/http"
	"time"
)

// handleHealth probes every registered dependency with a short deadline and
// reports per-dependency status. Any failure flips the overall status and the
// response code.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			deps[name] = "ok"
		}
	}

	body := map[string]interface{}{"status": "ok"}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	writeJSON(w, status, body)
}
