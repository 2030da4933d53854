package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Phase names what the supervisor is currently doing.
type Phase string

const (
	PhaseStarting Phase = "starting"
	PhaseServing  Phase = "serving"
	PhaseWaiting  Phase = "waiting" // no generation running, waiting for file changes
	PhaseStopped  Phase = "stopped"
)

// Status holds the supervisor status snapshot.
type Status struct {
	Timestamp     string `json:"ts_utc"`
	Phase         Phase  `json:"phase"`
	Addr          string `json:"addr"`
	App           string `json:"app"`
	Generation    int    `json:"generation"`
	Reloads       int    `json:"reloads"`
	RestartWindow int    `json:"restart_count_window"`
	LastError     string `json:"last_error,omitempty"`
}

// StatusFile provides atomic JSON status file operations.
type StatusFile struct {
	path string
	mu   sync.Mutex
}

// NewStatusFile creates a new status file manager.
func NewStatusFile(path string) *StatusFile {
	return &StatusFile{path: path}
}

// Write atomically writes the status to disk.
func (sf *StatusFile) Write(status Status) error {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	if status.Timestamp == "" {
		status.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(sf.path), 0o755); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}
	tmp := sf.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp status: %w", err)
	}
	return os.Rename(tmp, sf.path)
}

// Read reads the status from disk.
func (sf *StatusFile) Read() (Status, error) {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	data, err := os.ReadFile(sf.path)
	if err != nil {
		return Status{}, err
	}

	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return Status{}, fmt.Errorf("parse status: %w", err)
	}
	return status, nil
}
