// Package health backs the coupon engine's /livez and /readyz endpoints
// with Kubernetes-style probes.
//
// Registered checks run in background goroutines at a fixed interval.
// Thresholds keep the probes from flapping when Postgres or Redis blips: a
// check must fail several times in a row before it is reported unhealthy,
// and pass again before it is reported healthy.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one dependency. It returns nil when the dependency is
// healthy, or an error describing what is wrong.
type CheckFunc func(ctx context.Context) error

// checkConfig holds the configuration and runtime state for one check.
//
// run() is only ever called from the single ticker goroutine, so the
// consecutive counters need no synchronization. The healthy flag and
// lastErr are read by HTTP handlers from arbitrary goroutines and so go
// through atomics.
type checkConfig struct {
	name             string
	timeout          time.Duration
	check            CheckFunc
	failureThreshold int
	successThreshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	// Accessed only from the run() goroutine.
	consecutiveFails int
	consecutiveOK    int
}

func (c *checkConfig) isHealthy() bool {
	return c.healthy.Load()
}

func (c *checkConfig) getLastError() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// run executes the check once and applies the thresholds. Must be called
// from a single goroutine.
func (c *checkConfig) run(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.check(checkCtx)
	c.lastErr.Store(&err)

	if err != nil {
		c.consecutiveOK = 0
		c.consecutiveFails++
		if c.consecutiveFails >= c.failureThreshold {
			c.healthy.Store(false)
		}
	} else {
		c.consecutiveFails = 0
		c.consecutiveOK++
		if c.consecutiveOK >= c.successThreshold {
			c.healthy.Store(true)
		}
	}
}

// Health manages the liveness and readiness checks for the service.
type Health struct {
	ready atomic.Bool

	// mu protects the check slices and cancel. Handlers snapshot the slices
	// under RLock and release immediately; check state is never touched
	// under the lock.
	mu              sync.RWMutex
	livenessChecks  []*checkConfig
	readinessChecks []*checkConfig
	cancel          context.CancelFunc
}

// New creates a Health that reports not-ready until SetReady(true) is
// called, so the load balancer holds traffic until startup finishes.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check on the process itself, such as the
// goroutine count. A failing liveness check means the process should be
// restarted.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.livenessChecks = append(h.livenessChecks, newCheck(name, timeout, check))
}

// AddReadinessCheck registers a check on a dependency the service needs to
// serve traffic, such as Postgres or Redis connectivity. A failing
// readiness check takes the instance out of rotation without restarting it.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessChecks = append(h.readinessChecks, newCheck(name, timeout, check))
}

func newCheck(name string, timeout time.Duration, check CheckFunc) *checkConfig {
	c := &checkConfig{
		name:             name,
		timeout:          timeout,
		check:            check,
		failureThreshold: 3,
		successThreshold: 1,
	}
	c.healthy.Store(true) // assume healthy until proven otherwise
	return c
}

// Start launches one goroutine per registered check, each running at the
// given interval. Call it once after all checks are registered.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := make([]*checkConfig, 0, len(h.livenessChecks)+len(h.readinessChecks))
	checks = append(checks, h.livenessChecks...)
	checks = append(checks, h.readinessChecks...)
	h.mu.Unlock()

	for _, c := range checks {
		go runCheck(ctx, c, interval)
	}
}

func runCheck(ctx context.Context, c *checkConfig, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First result should not wait a full interval.
	c.run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.run(ctx)
		}
	}
}

// SetReady flips the manual readiness gate. The server calls it with true
// once wiring is complete and with false at the start of graceful shutdown
// so the load balancer drains the instance.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service may receive traffic: the manual gate
// must be open and every readiness check passing.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}

	h.mu.RLock()
	checks := h.readinessChecks
	h.mu.RUnlock()

	for _, c := range checks {
		if !c.isHealthy() {
			return false
		}
	}
	return true
}

// Stop cancels the background check goroutines. Safe to call more than
// once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 with {"status":"ok"} while every
// liveness check passes, otherwise 503 listing the failing checks.
func (h *Health) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := make([]*checkConfig, len(h.livenessChecks))
	copy(checks, h.livenessChecks)
	h.mu.RUnlock()

	writeResponse(w, collectFailures(checks))
}

// ReadyEndpoint serves /readyz: 200 only when the manual gate is open and
// every readiness check passes, otherwise 503 with details.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	ready := h.ready.Load()

	h.mu.RLock()
	checks := make([]*checkConfig, len(h.readinessChecks))
	copy(checks, h.readinessChecks)
	h.mu.RUnlock()

	failures := collectFailures(checks)
	if !ready {
		failures["_readiness"] = "service is not ready"
	}
	writeResponse(w, failures)
}

// collectFailures maps each unhealthy check to its last error message. The
// stored result is used rather than re-running the check, so probe
// handling stays cheap regardless of how slow a dependency is.
func collectFailures(checks []*checkConfig) map[string]string {
	failures := make(map[string]string)
	for _, c := range checks {
		if !c.isHealthy() {
			if err := c.getLastError(); err != nil {
				failures[c.name] = err.Error()
			} else {
				failures[c.name] = "check is unhealthy"
			}
		}
	}
	return failures
}

func writeResponse(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	status := http.StatusOK

	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		status = http.StatusServiceUnavailable
	}

	w.WriteHeader(status)

	// Best effort: the status code is already out.
	_ = json.NewEncoder(w).Encode(resp)
}
