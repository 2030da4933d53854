package bootstrap

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nameday/internal/devops"
	devlog "nameday/internal/devops/log"
	"nameday/internal/logging"
)

func TestNewWatcherSkipsEnvironmentWithDefaults(t *testing.T) {
	dir := t.TempDir()
	site := filepath.Join(dir, "venv", "lib", "python3.12", "site-packages", "pkg")
	require.NoError(t, os.MkdirAll(site, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0o755))

	cfg, err := devops.LoadDevConfig("")
	require.NoError(t, err)
	cfg.ProjectDir = dir
	cfg.ReloadDebounce = 20 * time.Millisecond

	w, err := newWatcher(cfg)
	require.NoError(t, err)
	require.False(t, w.Matches("venv/lib/python3.12/site-packages/pkg/metadata.json"))
	require.False(t, w.Matches("node_modules/pkg/package.json"))
	require.True(t, w.Matches("internal/nameday/calendar.go"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(site, "metadata.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "pkg", "package.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))

	select {
	case <-w.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
	require.Equal(t, []string{"main.go"}, w.Drain())

	cancel()
	require.NoError(t, <-done)
}

func TestDefaultStepsLoadLogsToStderrAtConfiguredLevel(t *testing.T) {
	t.Cleanup(func() { logging.Configure(logging.Config{}) })
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "devrun.yaml"), []byte("devrun:\n  log_level: debug\n"), 0o644))

	stderr := &bytes.Buffer{}
	steps := DefaultSteps(Options{
		ConfigPath: filepath.Join(dir, "devrun.yaml"),
		Stderr:     stderr,
	}, devlog.NewSectionWriter(io.Discard, false))

	cfg, err := steps.Load()
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)

	logging.NewComponentLogger("bootstrap").Debug("debug line for %s", "devrun")
	require.Contains(t, stderr.String(), "debug line for devrun")
}
