// Package environment activates a pre-provisioned isolated environment for
// the processes the bootstrap launches.
//
// Activation never touches the bootstrap's own process environment. It
// produces an immutable Environment that is handed to every component that
// starts a child process.
package environment

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/subosito/gotenv"

	"nameday/internal/devops"
)

// DotEnvFile is the optional project variables file loaded during activation.
const DotEnvFile = ".env"

// Environment is an activated isolated environment.
type Environment struct {
	// Root is the absolute environment directory.
	Root string
	// BinDir holds the environment's executables and is searched first.
	BinDir string
	// Vars are the variables layered on top of the caller's environment.
	Vars map[string]string
	// Unset lists variables removed from child environments.
	Unset []string
}

// Activate loads the environment at projectDir/rel.
// It fails with *devops.EnvironmentMissingError when the directory is absent;
// provisioning is the job of an external setup step.
func Activate(projectDir, rel string) (*Environment, error) {
	root := rel
	if !filepath.IsAbs(root) {
		root = filepath.Join(projectDir, rel)
	}
	root = filepath.Clean(root)

	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &devops.EnvironmentMissingError{Path: root}
		}
		return nil, &devops.EnvironmentMissingError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &devops.EnvironmentMissingError{Path: root, Err: errors.New("not a directory")}
	}

	vars, err := loadDotEnv(filepath.Join(projectDir, DotEnvFile))
	if err != nil {
		return nil, &devops.ConfigurationError{Path: filepath.Join(projectDir, DotEnvFile), Err: err}
	}

	binDir := filepath.Join(root, binDirName())
	vars["VIRTUAL_ENV"] = root
	vars["PATH"] = prependPath(binDir, os.Getenv("PATH"))

	return &Environment{
		Root:   root,
		BinDir: binDir,
		Vars:   vars,
		Unset:  []string{"PYTHONHOME"},
	}, nil
}

func binDirName() string {
	if runtime.GOOS == "windows" {
		return "Scripts"
	}
	return "bin"
}

func prependPath(dir, path string) string {
	if path == "" {
		return dir
	}
	return dir + string(os.PathListSeparator) + path
}

func loadDotEnv(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	defer f.Close()

	parsed, err := gotenv.StrictParse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	vars := make(map[string]string, len(parsed))
	for k, v := range parsed {
		vars[k] = v
	}
	return vars, nil
}

// Environ returns base with the activated variables applied. base is not
// modified. Later entries win, so the result is sorted for stable output.
func (e *Environment) Environ(base []string) []string {
	merged := make(map[string]string, len(base)+len(e.Vars))
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		merged[k] = v
	}
	for _, k := range e.Unset {
		delete(merged, k)
	}
	for k, v := range e.Vars {
		merged[k] = v
	}

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Get returns the activated value of key, falling back to the process
// environment.
func (e *Environment) Get(key string) string {
	if v, ok := e.Vars[key]; ok {
		return v
	}
	for _, k := range e.Unset {
		if k == key {
			return ""
		}
	}
	return os.Getenv(key)
}

// LookPath resolves name against the activated PATH, so executables in the
// environment shadow global installs.
func (e *Environment) LookPath(name string) (string, error) {
	if strings.ContainsRune(name, os.PathSeparator) {
		return exec.LookPath(name)
	}
	for _, dir := range filepath.SplitList(e.Get("PATH")) {
		if dir == "" {
			continue
		}
		for _, candidate := range candidates(filepath.Join(dir, name)) {
			if isExecutable(candidate) {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}

func candidates(path string) []string {
	if runtime.GOOS == "windows" && filepath.Ext(path) == "" {
		return []string{path + ".exe", path + ".bat", path + ".cmd"}
	}
	return []string{path}
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}
