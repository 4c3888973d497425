package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/atomic"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
	"github.com/ruteri/npa-publisher-orchestrator/metrics"
	"github.com/ruteri/npa-publisher-orchestrator/orchestrator"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// Reconciler is the controller surface the API exposes.
type Reconciler interface {
	Reconcile(ctx context.Context, desired []interfaces.PublisherUnit) (*orchestrator.Report, error)
	ReplaceUnit(ctx context.Context, key interfaces.UnitKey) (*orchestrator.Report, error)
	DetectDrift(ctx context.Context) ([]orchestrator.DriftWarning, error)
}

// reconcileRequest optionally overrides the configured desired set.
type reconcileRequest struct {
	Name  string `json:"name,omitempty"`
	Count int    `json:"count,omitempty"`
}

// Handler processes API requests for the publisher orchestrator. Reconcile
// and replace requests are single-flight: at most one mutating run executes
// at a time, and competing requests are refused with 409 rather than queued.
type Handler struct {
	reconciler Reconciler
	baseName   string
	count      int
	log        *slog.Logger

	running atomic.Bool

	mu         sync.Mutex
	lastReport *orchestrator.Report
}

// NewHandler creates an API handler. baseName and count define the default
// desired unit set for reconcile requests with an empty body.
func NewHandler(reconciler Reconciler, baseName string, count int, log *slog.Logger) *Handler {
	return &Handler{
		reconciler: reconciler,
		baseName:   baseName,
		count:      count,
		log:        log,
	}
}

// HandleReconcile runs a reconciliation and responds with the full run
// report. An optional JSON body {"name": ..., "count": ...} overrides the
// configured desired set for this run only.
//
// URL format: POST /api/v1/reconcile
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	if !h.running.CompareAndSwap(false, true) {
		http.Error(w, "Reconciliation already in progress", http.StatusConflict)
		return
	}
	defer h.running.Store(false)

	name, count := h.baseName, h.count
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) > 0 {
		var req reconcileRequest
		if err := json.Unmarshal(body, &req); err != nil {
			h.log.Debug("Invalid reconcile request body", "err", err)
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Name != "" {
			name = req.Name
		}
		if req.Count != 0 {
			count = req.Count
		}
	}

	desired, err := interfaces.DesiredUnits(name, count)
	if err != nil {
		http.Error(w, "Invalid desired unit set: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.log.Info("Reconciliation requested",
		slog.String("baseName", name),
		slog.Int("count", count))
	metrics.ReconcileRuns.WithLabelValues("api").Inc()

	report, err := h.reconciler.Reconcile(r.Context(), desired)
	if err != nil {
		h.log.Error("Reconciliation failed to run", "err", err)
		http.Error(w, "Reconciliation failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	h.lastReport = report
	h.mu.Unlock()

	h.respondJSON(w, http.StatusOK, report)
}

// HandleReport returns the report of the most recent completed run.
//
// URL format: GET /api/v1/report
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	report := h.lastReport
	h.mu.Unlock()

	if report == nil {
		http.Error(w, "No reconciliation has run yet", http.StatusNotFound)
		return
	}
	h.respondJSON(w, http.StatusOK, report)
}

// HandleReplace tears down one unit and rebuilds it with a fresh identity,
// registration token, and instance.
//
// URL format: POST /api/v1/units/{key}/replace
func (h *Handler) HandleReplace(w http.ResponseWriter, r *http.Request) {
	key := interfaces.UnitKey(chi.URLParam(r, "key"))
	if err := key.Valid(); err != nil {
		http.Error(w, "Invalid unit key: "+err.Error(), http.StatusBadRequest)
		return
	}

	if !h.running.CompareAndSwap(false, true) {
		http.Error(w, "Reconciliation already in progress", http.StatusConflict)
		return
	}
	defer h.running.Store(false)

	h.log.Info("Unit replacement requested", slog.String("key", string(key)))

	report, err := h.reconciler.ReplaceUnit(r.Context(), key)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			http.Error(w, "Unknown unit key", http.StatusNotFound)
			return
		}
		h.log.Error("Unit replacement failed to run", "err", err, slog.String("key", string(key)))
		http.Error(w, "Replacement failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	h.lastReport = report
	h.mu.Unlock()

	h.respondJSON(w, http.StatusOK, report)
}

// HandleDrift compares recorded state against the tenant and compute APIs and
// returns the warnings. Drift is reported, never repaired here.
//
// URL format: GET /api/v1/drift
func (h *Handler) HandleDrift(w http.ResponseWriter, r *http.Request) {
	warnings, err := h.reconciler.DetectDrift(r.Context())
	if err != nil {
		h.log.Error("Drift detection failed", "err", err)
		http.Error(w, "Drift detection failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if warnings == nil {
		warnings = []orchestrator.DriftWarning{}
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"warnings": warnings})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
