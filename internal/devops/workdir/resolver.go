// Package workdir resolves the bootstrap's own directory and makes it the
// process working directory, so relative references resolve the same way no
// matter where the caller invoked the bootstrap from.
package workdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nameday/internal/devops"
)

// Resolve returns the absolute directory containing invocationPath.
// Relative paths are resolved against the caller's working directory and
// symlinks are followed to the real file.
func Resolve(invocationPath string) (string, error) {
	if strings.TrimSpace(invocationPath) == "" {
		return "", &devops.ConfigurationError{Err: errors.New("empty invocation path")}
	}

	abs, err := filepath.Abs(invocationPath)
	if err != nil {
		return "", &devops.ConfigurationError{Path: invocationPath, Err: err}
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", &devops.ConfigurationError{Path: abs, Err: fmt.Errorf("resolve symlinks: %w", err)}
	}

	dir := filepath.Dir(resolved)
	if err := checkDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// Enter makes dir the process working directory.
func Enter(dir string) error {
	if err := checkDir(dir); err != nil {
		return err
	}
	if err := os.Chdir(dir); err != nil {
		return &devops.ConfigurationError{Path: dir, Err: err}
	}
	return nil
}

// Locate returns the bootstrap directory for the running binary.
// Binaries produced by `go run` live in a throwaway build cache, so for those
// the caller's working directory is used and fromCwd is true.
func Locate(executable, cwd string) (dir string, fromCwd bool, err error) {
	if !isGoRunBinary(executable) {
		dir, err := Resolve(executable)
		return dir, false, err
	}

	resolved, err := filepath.EvalSymlinks(cwd)
	if err != nil {
		return "", true, &devops.ConfigurationError{Path: cwd, Err: err}
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", true, &devops.ConfigurationError{Path: cwd, Err: err}
	}
	return abs, true, checkDir(abs)
}

func isGoRunBinary(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if strings.HasPrefix(part, "go-build") {
			return true
		}
	}
	return false
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return &devops.ConfigurationError{Path: dir, Err: err}
	}
	if !info.IsDir() {
		return &devops.ConfigurationError{Path: dir, Err: errors.New("not a directory")}
	}
	return nil
}
