package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ManagedProcess represents a process tracked by the manager.
type ManagedProcess struct {
	Name      string
	PIDFile   string
	Cmd       *exec.Cmd
	PID       int
	PGID      int
	StartedAt time.Time

	done chan struct{}
	err  error
}

// Done is closed once the process has exited and been reaped.
func (mp *ManagedProcess) Done() <-chan struct{} { return mp.done }

// Err returns the wait error after Done is closed; nil means exit status 0.
func (mp *ManagedProcess) Err() error {
	<-mp.done
	return mp.err
}

// ExitCode returns the exit status after Done is closed, or -1 when the
// process was killed by a signal.
func (mp *ManagedProcess) ExitCode() int {
	<-mp.done
	if mp.Cmd.ProcessState == nil {
		return -1
	}
	return mp.Cmd.ProcessState.ExitCode()
}

// Manager tracks running processes with PID files and process groups.
type Manager struct {
	pidDir      string
	logDir      string
	stopTimeout time.Duration
	processes   map[string]*ManagedProcess
	mu          sync.Mutex
}

// NewManager creates a new process manager. stopTimeout bounds how long Stop
// waits after SIGTERM before escalating to SIGKILL.
func NewManager(pidDir, logDir string, stopTimeout time.Duration) *Manager {
	if stopTimeout <= 0 {
		stopTimeout = 5 * time.Second
	}
	return &Manager{
		pidDir:      pidDir,
		logDir:      logDir,
		stopTimeout: stopTimeout,
		processes:   make(map[string]*ManagedProcess),
	}
}

// Start launches a command in its own process group and tracks it.
// Output goes to <logDir>/<name>.log unless cmd.Stdout is already set.
func (m *Manager) Start(_ context.Context, name string, cmd *exec.Cmd) (*ManagedProcess, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.pidDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pid dir: %w", err)
	}

	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true

	var logFile *os.File
	if cmd.Stdout == nil {
		if err := os.MkdirAll(m.logDir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(m.logDir, name+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logFile = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	pid := cmd.Process.Pid
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		pgid = pid
	}

	mp := &ManagedProcess{
		Name:      name,
		PIDFile:   filepath.Join(m.pidDir, name+".pid"),
		Cmd:       cmd,
		PID:       pid,
		PGID:      pgid,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}

	_ = atomicWriteFile(mp.PIDFile, []byte(pidFileContent(pid, cmd.Path)))
	m.processes[name] = mp

	go func() {
		mp.err = cmd.Wait()
		if logFile != nil {
			logFile.Close()
		}
		m.mu.Lock()
		// A newer generation may already be registered under the same name.
		if m.processes[name] == mp {
			delete(m.processes, name)
			os.Remove(mp.PIDFile)
		}
		m.mu.Unlock()
		close(mp.done)
	}()

	return mp, nil
}

// Stop stops a process by name with graceful shutdown: SIGTERM to its process
// group, then SIGKILL once the stop timeout elapses. A process recorded only
// in a PID file (left over from an earlier run) is stopped the same way, but
// only while it still runs the executable the file records; otherwise the
// file is stale and is just removed.
func (m *Manager) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	mp, tracked := m.processes[name]
	m.mu.Unlock()

	if tracked {
		return m.stopTracked(ctx, mp)
	}

	pidFile := filepath.Join(m.pidDir, name+".pid")
	pid, exe, err := readPIDFile(pidFile)
	if err != nil || !isProcessAlive(pid) || !runsExecutable(pid, exe) {
		os.Remove(pidFile)
		return nil
	}

	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		pgid = pid
	}

	return m.killProcess(pgid, pid, pidFile)
}

// IsRunning checks if a named process is alive.
func (m *Manager) IsRunning(name string) (bool, int) {
	m.mu.Lock()
	mp, tracked := m.processes[name]
	m.mu.Unlock()

	if tracked {
		select {
		case <-mp.done:
			return false, 0
		default:
			return true, mp.PID
		}
	}

	pidFile := filepath.Join(m.pidDir, name+".pid")
	pid, exe, err := readPIDFile(pidFile)
	if err != nil {
		return false, 0
	}
	if isProcessAlive(pid) && runsExecutable(pid, exe) {
		return true, pid
	}
	os.Remove(pidFile)
	return false, 0
}

func (m *Manager) stopTracked(ctx context.Context, mp *ManagedProcess) error {
	target := -mp.PGID
	if mp.PGID == 0 {
		target = mp.PID
	}

	_ = syscall.Kill(target, syscall.SIGTERM)

	timer := time.NewTimer(m.stopTimeout)
	defer timer.Stop()

	select {
	case <-mp.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	_ = syscall.Kill(target, syscall.SIGKILL)
	<-mp.done
	return nil
}

func (m *Manager) killProcess(pgid, pid int, pidFile string) error {
	target := -pgid
	if pgid == 0 {
		target = pid
	}

	_ = syscall.Kill(target, syscall.SIGTERM)

	deadline := time.Now().Add(m.stopTimeout)
	for time.Now().Before(deadline) {
		if !isProcessAlive(pid) {
			os.Remove(pidFile)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	_ = syscall.Kill(target, syscall.SIGKILL)
	os.Remove(pidFile)
	return nil
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// runsExecutable reports whether pid is running exe. A PID file without an
// executable cannot be verified and never matches.
func runsExecutable(pid int, exe string) bool {
	if exe == "" {
		return false
	}
	actual, err := executableOf(pid)
	if err != nil {
		return false
	}
	if actual == exe {
		return true
	}
	resolved, err := filepath.EvalSymlinks(exe)
	return err == nil && resolved == actual
}

// executableOf returns the executable path of a running process, from procfs
// where available and from ps otherwise.
func executableOf(pid int) (string, error) {
	path, err := os.Readlink(filepath.Join("/proc", strconv.Itoa(pid), "exe"))
	if err == nil {
		// Promotion replaces the binary a running generation was started from.
		return strings.TrimSuffix(path, " (deleted)"), nil
	}
	if _, statErr := os.Stat("/proc/self"); statErr == nil {
		return "", err
	}
	out, err := exec.Command("ps", "-o", "comm=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// pidFileContent records the PID and the absolute executable path, one per line.
func pidFileContent(pid int, exe string) string {
	if abs, err := filepath.Abs(exe); err == nil {
		exe = abs
	}
	return fmt.Sprintf("%d\n%s\n", pid, exe)
}

func readPIDFile(path string) (int, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, "", err
	}
	pidLine, exe, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(pidLine))
	if err != nil {
		return 0, "", err
	}
	return pid, strings.TrimSpace(exe), nil
}

func atomicWriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
