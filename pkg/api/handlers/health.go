package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/marmos91/dittorelay/pkg/registry"
)

// HealthHandler handles the unauthenticated health endpoints.
type HealthHandler struct {
	registry *registry.Registry
	journal  Journal
}

// NewHealthHandler creates a health handler. Both arguments may be nil.
func NewHealthHandler(reg *registry.Registry, j Journal) *HealthHandler {
	return &HealthHandler{registry: reg, journal: j}
}

// Liveness handles GET /health. It succeeds while the process serves HTTP.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "dittorelay",
	}))
}

// Readiness handles GET /health/ready.
//
// Ready means the registry holds at least one relay and the journal, when
// configured, answers a ping. A relay that is IDLE is still ready: it will
// wake on the next request.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("registry not initialized"))
		return
	}

	count := h.registry.CountRelays()
	if count == 0 {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("no relays configured"))
		return
	}

	data := map[string]any{"relays": count, "journal": "disabled"}
	if h.journal != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := h.journal.Healthcheck(ctx); err != nil {
			data["journal"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, unhealthyResponseWithData(data))
			return
		}
		data["journal"] = "healthy"
	}

	writeJSON(w, http.StatusOK, healthyResponse(data))
}

// RelayHealth is the health summary of one relay.
type RelayHealth struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Attached bool   `json:"attached"`
	Status   string `json:"status"`
}

// Relays handles GET /health/relays. A relay is unhealthy once closed.
func (h *HealthHandler) Relays(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("registry not initialized"))
		return
	}

	allHealthy := true
	out := make([]RelayHealth, 0, h.registry.CountRelays())
	for _, rl := range h.registry.ListRelays() {
		snap := rl.Snapshot()
		rh := RelayHealth{Name: snap.Name, State: string(snap.State), Attached: snap.Attached, Status: "healthy"}
		if snap.Closed {
			rh.Status = "unhealthy"
			allHealthy = false
		}
		out = append(out, rh)
	}

	if !allHealthy {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponseWithData(out))
		return
	}
	writeJSON(w, http.StatusOK, healthyResponse(out))
}
