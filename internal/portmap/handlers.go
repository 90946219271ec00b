package portmap

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

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
		{Method: "GET", Path: "/usage", Handler: m.handleUsage},
		{Method: "GET", Path: "/free", Handler: m.handleFreePorts},
		{Method: "POST", Path: "/scan", Handler: m.handleScan},
	}
}

func (m *Module) handleUsage(w http.ResponseWriter, _ *http.Request) {
	records := m.Usage()
	writeJSON(w, http.StatusOK, map[string]any{
		"ports": records,
		"count": len(records),
	})
}

func (m *Module) handleFreePorts(w http.ResponseWriter, r *http.Request) {
	count := 1
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = n
	}

	free, err := m.FreePorts(count)
	if err != nil {
		if errors.Is(err, ErrExhaustedRange) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ports": free,
	})
}

func (m *Module) handleScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Host string `json:"host"`
		From uint16 `json:"from"`
		To   uint16 `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Host == "" {
		req.Host = "127.0.0.1"
	}
	if req.From == 0 || req.To == 0 || req.From > req.To {
		writeError(w, http.StatusBadRequest, "from and to must form a valid port range")
		return
	}

	open, err := m.ScanRange(r.Context(), req.Host, req.From, req.To)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "scan failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"host": req.Host,
		"from": req.From,
		"to":   req.To,
		"open": open,
	})
}
