// Package health serves the liveness and readiness probes for the
// coordinator sidecar.
//
//   - /healthz answers 200 whenever the process can serve HTTP.
//   - /readyz answers 200 only while every registered [Checker] passes,
//     and 503 with per-check detail otherwise.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds a single readiness check.
const probeTimeout = 3 * time.Second

// Checker probes one dependency. Check returns nil while the dependency
// is usable and a descriptive error otherwise; it must respect context
// cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// checkResult is the per-dependency entry in the /readyz response.
type checkResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// Handler evaluates a fixed set of checkers. Safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] over the given checkers. Checkers run in the
// order given on every /readyz request.
func New(checkers ...Checker) *Handler {
	h := &Handler{checkers: make([]Checker, len(checkers))}
	copy(h.checkers, checkers)
	return h
}

// Register mounts the probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	results, ready := h.probe(r.Context())

	status := http.StatusOK
	overall := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		overall = "unready"
	}

	writeJSON(w, status, struct {
		Status string        `json:"status"`
		Checks []checkResult `json:"checks,omitempty"`
	}{Status: overall, Checks: results})
}

// probe runs every checker once with a bounded deadline.
func (h *Handler) probe(ctx context.Context) (results []checkResult, ready bool) {
	ready = true
	for _, c := range h.checkers {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		start := time.Now()
		err := c.Check(probeCtx)
		elapsed := time.Since(start)
		cancel()

		res := checkResult{
			Name:    c.Name,
			Status:  "up",
			Latency: elapsed.Round(time.Microsecond).String(),
		}
		if err != nil {
			res.Status = "down"
			res.Error = err.Error()
			ready = false
		}
		results = append(results, res)
	}
	return results, ready
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
