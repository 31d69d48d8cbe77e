package health

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// CheckFunc is a function that performs a health check on a component.
// It should return nil if the component is healthy, or an error describing
// the problem if unhealthy.
type CheckFunc func(ctx context.Context) error

// CheckResult represents the result of a single health check.
type CheckResult struct {
	// Status is either "ok" or "unhealthy"
	Status string `json:"status"`

	// Message provides additional context (typically error message if unhealthy)
	Message string `json:"message,omitempty"`

	// Informational marks checks that never affect readiness.
	Informational bool `json:"informational,omitempty"`

	// Duration is how long the check took to execute
	Duration time.Duration `json:"duration_ms,omitempty"`
}

// HealthStatus represents the overall health status of the system.
type HealthStatus struct {
	// Status is "ok" (liveness), "ready" or "degraded" (readiness)
	Status string `json:"status"`

	// Checks contains results of individual component checks
	Checks map[string]CheckResult `json:"checks,omitempty"`

	// Timestamp is when the health check was performed
	Timestamp time.Time `json:"timestamp"`
}

type check struct {
	fn            CheckFunc
	informational bool
}

// Checker manages health checks for system components.
// It is safe for concurrent use.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]check

	// checkTimeout is the maximum time to wait for a single check
	checkTimeout time.Duration
}

// ErrCheckTimeout is reported when a check does not finish in time.
var ErrCheckTimeout = errors.New("health check timeout")

// New creates a new health checker with the specified timeout for individual checks.
// If checkTimeout is 0, defaults to 5 seconds.
func New(checkTimeout time.Duration) *Checker {
	if checkTimeout == 0 {
		checkTimeout = 5 * time.Second
	}

	return &Checker{
		checks:       make(map[string]check),
		checkTimeout: checkTimeout,
	}
}

// RegisterCheck registers a check that must pass for the system to be ready.
// Registering a name twice replaces the previous check.
func (c *Checker) RegisterCheck(name string, fn CheckFunc) {
	c.register(name, fn, false)
}

// RegisterInformational registers a check whose result is reported by the
// readiness endpoint but never makes the system unready.
func (c *Checker) RegisterInformational(name string, fn CheckFunc) {
	c.register(name, fn, true)
}

func (c *Checker) register(name string, fn CheckFunc, informational bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks[name] = check{fn: fn, informational: informational}
}

// CheckLiveness reports that the process is running. It never runs
// component checks.
func (c *Checker) CheckLiveness(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
	}
}

// CheckReadiness runs every registered check concurrently, skipping the
// names in exclude. The status is "degraded" when any non-informational
// check fails.
func (c *Checker) CheckReadiness(ctx context.Context, exclude ...string) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]check, len(c.checks))
	for name, ch := range c.checks {
		checks[name] = ch
	}
	c.mu.RUnlock()

	for _, name := range exclude {
		delete(checks, name)
	}

	results := make(map[string]CheckResult, len(checks))
	var resultMu sync.Mutex
	var wg sync.WaitGroup

	for name, ch := range checks {
		wg.Add(1)
		go func(name string, ch check) {
			defer wg.Done()

			result := c.runCheck(ctx, ch.fn)
			result.Informational = ch.informational

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
		}(name, ch)
	}

	wg.Wait()

	status := "ready"
	for _, result := range results {
		if result.Status == "unhealthy" && !result.Informational {
			status = "degraded"
		}
	}

	return HealthStatus{
		Status:    status,
		Checks:    results,
		Timestamp: time.Now(),
	}
}

// runCheck executes a single health check with timeout.
func (c *Checker) runCheck(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()

	// Run check in goroutine to support timeout
	errChan := make(chan error, 1)
	go func() {
		errChan <- check(checkCtx)
	}()

	select {
	case err := <-errChan:
		duration := time.Since(start)
		if err != nil {
			return CheckResult{
				Status:   "unhealthy",
				Message:  err.Error(),
				Duration: duration,
			}
		}
		return CheckResult{
			Status:   "ok",
			Duration: duration,
		}

	case <-checkCtx.Done():
		return CheckResult{
			Status:   "unhealthy",
			Message:  ErrCheckTimeout.Error(),
			Duration: time.Since(start),
		}
	}
}

// ListChecks returns the sorted names of the registered health checks.
func (c *Checker) ListChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}
