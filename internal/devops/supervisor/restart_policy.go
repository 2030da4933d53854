package supervisor

import (
	"sync"
	"time"

	"nameday/internal/devops"
)

// RestartPolicy bounds how often a crashed application is restarted without
// a file change in between.
type RestartPolicy struct {
	MaxInWindow    int
	WindowDuration time.Duration

	history map[string][]time.Time // app -> crash restart timestamps
	now     func() time.Time
	mu      sync.Mutex
}

// NewRestartPolicy creates a restart policy from configuration. Non-positive
// values fall back to five restarts per minute.
func NewRestartPolicy(cfg devops.RestartConfig) *RestartPolicy {
	if cfg.MaxInWindow <= 0 {
		cfg.MaxInWindow = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &RestartPolicy{
		MaxInWindow:    cfg.MaxInWindow,
		WindowDuration: cfg.Window,
		history:        make(map[string][]time.Time),
		now:            time.Now,
	}
}

// Allow reports whether app may be restarted now and, if so, records the
// attempt. It returns the number of restarts inside the window including
// this one.
func (p *RestartPolicy) Allow(app string) (bool, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.pruneHistory(app, now)
	if len(p.history[app]) >= p.MaxInWindow {
		return false, len(p.history[app])
	}
	p.history[app] = append(p.history[app], now)
	return true, len(p.history[app])
}

// RestartCount returns the number of restarts for app in the current window.
func (p *RestartPolicy) RestartCount(app string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneHistory(app, p.now())
	return len(p.history[app])
}

// Reset clears the history for app. A reload triggered by a file change
// starts a fresh window.
func (p *RestartPolicy) Reset(app string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.history, app)
}

func (p *RestartPolicy) pruneHistory(app string, now time.Time) {
	cutoff := now.Add(-p.WindowDuration)
	entries := p.history[app]
	pruned := entries[:0]
	for _, t := range entries {
		if !t.Before(cutoff) {
			pruned = append(pruned, t)
		}
	}
	p.history[app] = pruned
}
