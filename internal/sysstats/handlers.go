package sysstats

import (
	"encoding/json"
	"net/http"
	"time"

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
		{Method: "GET", Path: "/current", Handler: m.handleCurrent},
		{Method: "GET", Path: "/history", Handler: m.handleHistory},
		{Method: "PUT", Path: "/interval", Handler: m.handleSetInterval},
		{Method: "PUT", Path: "/gpu-provider", Handler: m.handleSetGPUProvider},
	}
}

func (m *Module) handleCurrent(w http.ResponseWriter, _ *http.Request) {
	sample, ok := m.Current()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no sample taken yet")
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (m *Module) handleHistory(w http.ResponseWriter, _ *http.Request) {
	samples := m.History()
	writeJSON(w, http.StatusOK, map[string]any{
		"samples": samples,
		"count":   len(samples),
	})
}

func (m *Module) handleSetInterval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SampleInterval string `json:"sample_interval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	d, err := time.ParseDuration(req.SampleInterval)
	if err != nil {
		writeError(w, http.StatusBadRequest, "sample_interval must be a duration like 5s")
		return
	}
	if err := m.SetSampleInterval(d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sample_interval": d.String()})
}

func (m *Module) handleSetGPUProvider(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := m.SetGPUProvider(req.Provider); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider": req.Provider})
}
