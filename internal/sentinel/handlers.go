package sentinel

import (
	"encoding/json"
	"net/http"

	"github.com/servicedeck/servicedeck/pkg/plugin"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://servicedeck.dev/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/scan", Handler: m.handleScan},
		{Method: "GET", Path: "/last", Handler: m.handleLast},
	}
}

func (m *Module) handleScan(w http.ResponseWriter, r *http.Request) {
	result, err := m.Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "scan failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (m *Module) handleLast(w http.ResponseWriter, _ *http.Request) {
	result := m.Last()
	if result == nil {
		writeError(w, http.StatusNotFound, "no scan has been run yet")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
