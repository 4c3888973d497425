package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
)

// AdminHandler exposes operator-only endpoints: inspecting the recorded unit
// state and breaking a stuck plan lock. These are mounted under /api/v1/admin
// and are expected to sit behind network-level access control.
type AdminHandler struct {
	state interfaces.StateStore
	lock  interfaces.PlanLock
	log   *slog.Logger
}

// NewAdminHandler creates the admin endpoint handler.
func NewAdminHandler(state interfaces.StateStore, lock interfaces.PlanLock, log *slog.Logger) *AdminHandler {
	return &AdminHandler{state: state, lock: lock, log: log}
}

// HandleState returns every recorded unit, keyed by unit key. This is the
// orchestrator's view of the world, not the tenant's; use the drift endpoint
// to compare the two.
//
// URL format: GET /api/v1/admin/state
func (a *AdminHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	units, err := a.state.Load(r.Context())
	if err != nil {
		a.log.Error("Failed to load state", "err", err)
		http.Error(w, "Failed to load state: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if units == nil {
		units = map[interfaces.UnitKey]*interfaces.UnitRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"units": units}); err != nil {
		a.log.Error("Failed to encode response", "err", err)
	}
}

// HandleForceUnlock breaks the plan lock regardless of holder. Only for
// recovery after a crashed run left the lock behind; forcing the lock while a
// run is active corrupts its plan.
//
// URL format: POST /api/v1/admin/force-unlock
func (a *AdminHandler) HandleForceUnlock(w http.ResponseWriter, r *http.Request) {
	a.log.Warn("Plan lock force-unlock requested")

	if err := a.lock.ForceRelease(); err != nil {
		a.log.Error("Failed to force-release plan lock", "err", err)
		http.Error(w, "Failed to force-release lock: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"lock released"}`))
}
