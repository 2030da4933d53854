package environment

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"nameday/internal/devops"
)

func provision(t *testing.T, project, rel string) string {
	t.Helper()
	bin := filepath.Join(project, rel, binDirName())
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", bin, err)
	}
	return bin
}

func lookup(env []string, key string) (string, bool) {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}

func TestActivateMissing(t *testing.T) {
	project := t.TempDir()

	_, err := Activate(project, "venv")
	var missing *devops.EnvironmentMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("expected EnvironmentMissingError, got %v", err)
	}
	if missing.Path != filepath.Join(project, "venv") {
		t.Errorf("Path = %q", missing.Path)
	}
	if devops.ExitCode(err) == 0 {
		t.Error("missing environment must map to a non-zero exit code")
	}
}

func TestActivateRejectsFile(t *testing.T) {
	project := t.TempDir()
	if err := os.WriteFile(filepath.Join(project, "venv"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var missing *devops.EnvironmentMissingError
	if _, err := Activate(project, "venv"); !errors.As(err, &missing) {
		t.Fatalf("expected EnvironmentMissingError, got %v", err)
	}
}

func TestActivateBuildsEnvironment(t *testing.T) {
	project := t.TempDir()
	bin := provision(t, project, "venv")
	t.Setenv("PATH", "/usr/bin")

	env, err := Activate(project, "venv")
	if err != nil {
		t.Fatalf("Activate() error: %v", err)
	}
	if env.Root != filepath.Join(project, "venv") {
		t.Errorf("Root = %q", env.Root)
	}
	if env.BinDir != bin {
		t.Errorf("BinDir = %q, want %q", env.BinDir, bin)
	}
	if got := env.Vars["VIRTUAL_ENV"]; got != env.Root {
		t.Errorf("VIRTUAL_ENV = %q, want %q", got, env.Root)
	}
	if got, want := env.Vars["PATH"], bin+string(os.PathListSeparator)+"/usr/bin"; got != want {
		t.Errorf("PATH = %q, want %q", got, want)
	}
}

func TestActivateLoadsDotEnv(t *testing.T) {
	project := t.TempDir()
	provision(t, project, "venv")
	content := "NAMEDAY_API_KEY=secret\nexport KV_REST_API_URL=\"https://kv.example\"\n"
	if err := os.WriteFile(filepath.Join(project, DotEnvFile), []byte(content), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	env, err := Activate(project, "venv")
	if err != nil {
		t.Fatalf("Activate() error: %v", err)
	}
	if env.Vars["NAMEDAY_API_KEY"] != "secret" {
		t.Errorf("NAMEDAY_API_KEY = %q", env.Vars["NAMEDAY_API_KEY"])
	}
	if env.Vars["KV_REST_API_URL"] != "https://kv.example" {
		t.Errorf("KV_REST_API_URL = %q", env.Vars["KV_REST_API_URL"])
	}
}

func TestActivateDoesNotMutateProcessEnvironment(t *testing.T) {
	project := t.TempDir()
	provision(t, project, "venv")
	t.Setenv("PATH", "/usr/bin")
	t.Setenv("VIRTUAL_ENV", "")
	os.Unsetenv("VIRTUAL_ENV")

	if _, err := Activate(project, "venv"); err != nil {
		t.Fatalf("Activate() error: %v", err)
	}
	if got := os.Getenv("PATH"); got != "/usr/bin" {
		t.Errorf("process PATH changed to %q", got)
	}
	if _, ok := os.LookupEnv("VIRTUAL_ENV"); ok {
		t.Error("process VIRTUAL_ENV should stay unset")
	}
}

func TestEnvironOverlaysAndUnsets(t *testing.T) {
	env := &Environment{
		Vars:  map[string]string{"VIRTUAL_ENV": "/p/venv", "PATH": "/p/venv/bin:/usr/bin"},
		Unset: []string{"PYTHONHOME"},
	}
	base := []string{"HOME=/home/dev", "PATH=/usr/bin", "PYTHONHOME=/opt/py", "malformed"}

	out := env.Environ(base)

	if v, _ := lookup(out, "PATH"); v != "/p/venv/bin:/usr/bin" {
		t.Errorf("PATH = %q", v)
	}
	if v, _ := lookup(out, "HOME"); v != "/home/dev" {
		t.Errorf("HOME = %q", v)
	}
	if _, ok := lookup(out, "PYTHONHOME"); ok {
		t.Error("PYTHONHOME should be removed")
	}
	if base[1] != "PATH=/usr/bin" {
		t.Error("base slice must not be modified")
	}
}

func TestLookPathPrefersEnvironment(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bit semantics differ on windows")
	}
	project := t.TempDir()
	bin := provision(t, project, "venv")
	global := t.TempDir()
	for _, dir := range []string{bin, global} {
		if err := os.WriteFile(filepath.Join(dir, "go"), []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatalf("write tool: %v", err)
		}
	}
	t.Setenv("PATH", global)

	env, err := Activate(project, "venv")
	if err != nil {
		t.Fatalf("Activate() error: %v", err)
	}
	got, err := env.LookPath("go")
	if err != nil {
		t.Fatalf("LookPath() error: %v", err)
	}
	if want := filepath.Join(bin, "go"); got != want {
		t.Errorf("LookPath(go) = %q, want %q", got, want)
	}
	if _, err := env.LookPath("definitely-not-installed"); err == nil {
		t.Error("expected error for unknown executable")
	}
}
