package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Result captures the outcome of a health probe.
type Result struct {
	Healthy bool
	Message string
	Latency time.Duration
}

// Probe configures an HTTP readiness check for a service.
type Probe struct {
	Target   string        // URL answering 2xx/3xx when ready
	Timeout  time.Duration // per-check timeout
	Interval time.Duration // between checks when waiting
}

// Checker manages health probes for services.
type Checker struct {
	mu     sync.RWMutex
	probes map[string]Probe
	client *http.Client
}

// NewChecker creates a new health checker.
func NewChecker() *Checker {
	return &Checker{
		probes: make(map[string]Probe),
		client: &http.Client{
			Transport: &http.Transport{
				DisableKeepAlives: true,
			},
		},
	}
}

// Register adds a probe for a named service.
func (c *Checker) Register(name string, probe Probe) {
	if probe.Timeout == 0 {
		probe.Timeout = 2 * time.Second
	}
	if probe.Interval == 0 {
		probe.Interval = 200 * time.Millisecond
	}
	c.mu.Lock()
	c.probes[name] = probe
	c.mu.Unlock()
}

func (c *Checker) probe(name string) (Probe, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	probe, ok := c.probes[name]
	return probe, ok
}

// Check performs a single health check for a named service.
func (c *Checker) Check(ctx context.Context, name string) Result {
	probe, ok := c.probe(name)
	if !ok {
		return Result{
			Healthy: false,
			Message: fmt.Sprintf("no probe registered for %s", name),
		}
	}

	start := time.Now()
	healthy, message := c.checkHTTP(ctx, probe)
	return Result{
		Healthy: healthy,
		Message: message,
		Latency: time.Since(start),
	}
}

// WaitHealthy blocks until the named service is healthy, ctx is done, or the
// timeout elapses.
func (c *Checker) WaitHealthy(ctx context.Context, name string, timeout time.Duration) error {
	probe, ok := c.probe(name)
	if !ok {
		return fmt.Errorf("no probe registered for %s", name)
	}

	deadline := time.Now().Add(timeout)
	var last Result
	for time.Now().Before(deadline) {
		last = c.Check(ctx, name)
		if last.Healthy {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(probe.Interval):
		}
	}

	return fmt.Errorf("%s did not become healthy within %s (last: %s)", name, timeout, last.Message)
}

func (c *Checker) checkHTTP(ctx context.Context, probe Probe) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, probe.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probe.Target, nil)
	if err != nil {
		return false, fmt.Sprintf("invalid URL: %v", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return true, fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return false, fmt.Sprintf("HTTP %d", resp.StatusCode)
}
