package handlers

import (
	"net/http"
)

// Health reports liveness and the registered filters.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"status": "ok", "filters": a.Filters.Names()})
}
