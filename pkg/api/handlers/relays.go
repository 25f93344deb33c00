package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittorelay/internal/logger"
	"github.com/marmos91/dittorelay/pkg/journal"
	"github.com/marmos91/dittorelay/pkg/registry"
	"github.com/marmos91/dittorelay/pkg/relay"
)

// Journal is the read side of the transition journal.
type Journal interface {
	List(ctx context.Context, relay string, limit int) ([]journal.Record, error)
	Healthcheck(ctx context.Context) error
}

// RelayResponse is the API view of a relay.
type RelayResponse struct {
	relay.Snapshot `yaml:",inline"`
	Backend        string `json:"backend,omitempty" yaml:"backend,omitempty"`
}

// StatusResponse carries one status line.
type StatusResponse struct {
	Type   string `json:"type" yaml:"type"`
	Status string `json:"status" yaml:"status"`
}

// RelayHandler serves relay introspection and control.
type RelayHandler struct {
	registry *registry.Registry
	journal  Journal
}

// NewRelayHandler creates a relay handler. j may be nil.
func NewRelayHandler(reg *registry.Registry, j Journal) *RelayHandler {
	return &RelayHandler{registry: reg, journal: j}
}

func (h *RelayHandler) lookup(w http.ResponseWriter, r *http.Request) (*relay.Relay, bool) {
	rl, err := h.registry.GetRelay(chi.URLParam(r, "name"))
	if err != nil {
		writeRelayError(w, err)
		return nil, false
	}
	return rl, true
}

func (h *RelayHandler) response(rl *relay.Relay) RelayResponse {
	return RelayResponse{Snapshot: rl.Snapshot(), Backend: h.registry.Backend(rl.Name())}
}

// List handles GET /api/v1/relays.
func (h *RelayHandler) List(w http.ResponseWriter, r *http.Request) {
	relays := h.registry.ListRelays()
	out := make([]RelayResponse, 0, len(relays))
	for _, rl := range relays {
		out = append(out, h.response(rl))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /api/v1/relays/{name}.
func (h *RelayHandler) Get(w http.ResponseWriter, r *http.Request) {
	rl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.response(rl))
}

// Status handles GET /api/v1/relays/{name}/status?type=table|info.
func (h *RelayHandler) Status(w http.ResponseWriter, r *http.Request) {
	t, err := relay.ParseStatusType(r.URL.Query().Get("type"))
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	rl, ok := h.lookup(w, r)
	if !ok {
		return
	}

	line, err := rl.Status(t)
	if err != nil {
		writeRelayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Type: t.String(), Status: line})
}

// Suspend handles POST /api/v1/relays/{name}/suspend.
func (h *RelayHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	rl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	rl.Suspend()
	logger.InfoCtx(r.Context(), "Relay suspended via API")
	writeJSON(w, http.StatusOK, h.response(rl))
}

// Resume handles POST /api/v1/relays/{name}/resume.
func (h *RelayHandler) Resume(w http.ResponseWriter, r *http.Request) {
	rl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	rl.Resume()
	logger.InfoCtx(r.Context(), "Relay resumed via API")
	writeJSON(w, http.StatusOK, h.response(rl))
}

// Transitions handles GET /api/v1/relays/{name}/transitions?limit=N.
func (h *RelayHandler) Transitions(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		NotFound(w, "transition journal is disabled")
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	rl, ok := h.lookup(w, r)
	if !ok {
		return
	}

	recs, err := h.journal.List(r.Context(), rl.Name(), limit)
	if err != nil {
		InternalServerError(w, err.Error())
		return
	}
	if recs == nil {
		recs = []journal.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}
