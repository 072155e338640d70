package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Checker is a dependency probed by the readiness endpoint.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// PingChecker adapts a Ping method into a Checker.
type PingChecker struct {
	Component string
	Ping      func(ctx context.Context) error
}

func (c PingChecker) Name() string                    { return c.Component }
func (c PingChecker) Check(ctx context.Context) error { return c.Ping(ctx) }

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checkers []Checker
	timeout  time.Duration
}

func NewHealthHandler(checkers ...Checker) *HealthHandler {
	return &HealthHandler{checkers: checkers, timeout: time.Second}
}

// Healthz reports that the process is serving.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz runs every checker and reports 503 on the first failure.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	for _, checker := range h.checkers {
		if err := checker.Check(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "not_ready",
				"details": fmt.Sprintf("%s: %v", checker.Name(), err),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
