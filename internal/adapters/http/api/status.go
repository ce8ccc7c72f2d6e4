package api

import "net/http"

// StatusHandler reports the administrative view of the relay.
type StatusHandler struct {
	stats StatsProvider
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(stats StatsProvider) *StatusHandler {
	return &StatusHandler{stats: stats}
}

// HandleStatus handles GET /status requests.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	body := map[string]any{"status": "ok"}
	for k, v := range h.stats.GetStats() {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}
