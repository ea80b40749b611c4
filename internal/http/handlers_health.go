package httpx

import "net/http"

// healthHandler answers liveness probes. It never touches the databases, so a
// Postgres or Redis outage does not get the process restarted.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
