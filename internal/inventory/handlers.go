package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/servicedeck/servicedeck/pkg/plugin"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an RFC 7807 problem detail response.
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

// controlStatus maps control errors to HTTP status codes.
func controlStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrUnsupportedOp):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// explainer is the slice of the explain plugin the inventory proxies to.
type explainer interface {
	ExplainService(ctx context.Context, name, path, description string) (string, error)
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/services", Handler: m.handleListServices},
		{Method: "GET", Path: "/services/{id}", Handler: m.handleGetService},
		{Method: "GET", Path: "/services/{id}/explain", Handler: m.handleExplainService},
		{Method: "POST", Path: "/services/{id}/start", Handler: m.handleControl(OpStart)},
		{Method: "POST", Path: "/services/{id}/stop", Handler: m.handleControl(OpStop)},
		{Method: "POST", Path: "/services/{id}/restart", Handler: m.handleControl(OpRestart)},
		{Method: "POST", Path: "/services/{id}/kill", Handler: m.handleControl(OpKill)},
		{Method: "POST", Path: "/services/{id}/autostart", Handler: m.handleAutostart},
		{Method: "POST", Path: "/discover", Handler: m.handleDiscover},
		{Method: "GET", Path: "/sources", Handler: m.handleSources},
		{Method: "PUT", Path: "/intervals", Handler: m.handleSetIntervals},
	}
}

func (m *Module) handleListServices(w http.ResponseWriter, _ *http.Request) {
	services := m.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"services": services,
		"count":    len(services),
	})
}

func (m *Module) handleGetService(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	svc, err := m.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "service not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (m *Module) handleControl(op ControlOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := m.Control(r.Context(), id, op); err != nil {
			writeError(w, controlStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":        id,
			"operation": string(op),
			"status":    "issued",
		})
	}
}

func (m *Module) handleAutostart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := m.SetAutostart(r.Context(), id, req.Enabled); err != nil {
		writeError(w, controlStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":      id,
		"enabled": req.Enabled,
		"status":  "issued",
	})
}

func (m *Module) handleDiscover(w http.ResponseWriter, r *http.Request) {
	m.Resync(r.Context())
	services := m.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"services": services,
		"count":    len(services),
	})
}

func (m *Module) handleSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sources": m.Sources(),
	})
}

func (m *Module) handleSetIntervals(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DiscoverInterval string `json:"discover_interval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	d, err := time.ParseDuration(req.DiscoverInterval)
	if err != nil || d < time.Second {
		writeError(w, http.StatusBadRequest, "discover_interval must be a duration of at least 1s")
		return
	}

	m.SetDiscoverInterval(d)
	writeJSON(w, http.StatusOK, map[string]string{
		"discover_interval": d.String(),
	})
}

func (m *Module) handleExplainService(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	svc, err := m.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "service not found: "+id)
		return
	}

	var exp explainer
	if m.resolver != nil {
		if p, ok := m.resolver.Resolve("explain"); ok {
			exp, _ = p.(explainer)
		}
	}
	if exp == nil {
		writeError(w, http.StatusServiceUnavailable, "explain plugin is not enabled")
		return
	}

	text, err := exp.ExplainService(r.Context(), svc.Name, svc.Path, svc.Description)
	if err != nil {
		writeError(w, http.StatusBadGateway, "explanation unavailable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":          svc.ID,
		"explanation": text,
	})
}
