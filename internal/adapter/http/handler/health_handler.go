package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pinger is a dependency the service needs to be ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck names a dependency in the readiness report.
type HealthCheck struct {
	Name   string
	Pinger Pinger
}

type HealthHandler struct {
	checks  []HealthCheck
	timeout time.Duration
}

func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 5 * time.Second}
}

// Liveness answers 200 as long as the process serves HTTP.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness pings every dependency concurrently and reports each one. Any
// failure turns the answer into a 503.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	results := make([]error, len(h.checks))

	var wg sync.WaitGroup
	for i, c := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Pinger.Ping(ctx)
		}()
	}
	wg.Wait()

	report := map[string]string{"status": "ready"}
	status := http.StatusOK

	for i, c := range h.checks {
		if err := results[i]; err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("dependency", c.Name).Msg("readiness check failed")
			report[c.Name] = err.Error()
			report["status"] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		report[c.Name] = "ok"
	}

	writeJSON(w, status, report)
}
