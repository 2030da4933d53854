package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"nameday/internal/devops"
	"nameday/internal/devops/environment"
	"nameday/internal/devops/health"
	devlog "nameday/internal/devops/log"
	"nameday/internal/devops/process"
)

// ListenFDEnv tells the served application which inherited descriptor holds
// the already-bound listener. ExtraFiles[0] is always fd 3 in the child.
const (
	ListenFDEnv = "NAMEDAY_LISTEN_FD"
	listenFD    = 3
)

// AppConfig holds application service configuration.
type AppConfig struct {
	Name           string   // process name used for PID and log files
	Package        string   // Go package built into the binary, e.g. ./cmd/nameday
	Args           []string // arguments passed to the binary
	ProjectDir     string
	OutputBin      string
	Port           int
	HealthURL      string
	StartupTimeout time.Duration
	Stdout         io.Writer
	Stderr         io.Writer
}

// AppService builds and runs the served HTTP application. Each Start launches
// a new generation that inherits the supervisor's listener.
type AppService struct {
	pm      *process.Manager
	health  *health.Checker
	section *devlog.SectionWriter
	env     *environment.Environment
	config  AppConfig
	state   atomic.Value // devops.ServiceState

	mu       sync.Mutex
	listener *os.File
	exited   chan error
}

// NewAppService creates a new application service.
func NewAppService(pm *process.Manager, hc *health.Checker, sw *devlog.SectionWriter, env *environment.Environment, cfg AppConfig) *AppService {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 60 * time.Second
	}
	s := &AppService{
		pm:      pm,
		health:  hc,
		section: sw,
		env:     env,
		config:  cfg,
	}
	s.state.Store(devops.StateStopped)
	return s
}

func (s *AppService) Name() string { return s.config.Name }

func (s *AppService) State() devops.ServiceState {
	return s.state.Load().(devops.ServiceState)
}

func (s *AppService) Health(ctx context.Context) health.Result {
	return s.health.Check(ctx, s.config.Name)
}

// Inherit sets the bound listener handed to every generation.
func (s *AppService) Inherit(listener *os.File) {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
}

// Exited delivers the exit of the most recently started generation.
func (s *AppService) Exited() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exited
}

// Start launches a generation of the promoted binary and waits until it
// answers its readiness probe. It fails if the process exits first or never
// becomes ready within the startup timeout.
func (s *AppService) Start(ctx context.Context) error {
	s.state.Store(devops.StateStarting)

	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		s.state.Store(devops.StateFailed)
		return errors.New("no listener to inherit")
	}

	s.section.Info("Starting %s on :%d...", s.config.Name, s.config.Port)
	cmd := exec.Command(s.config.OutputBin, s.config.Args...)
	cmd.Dir = s.config.ProjectDir
	cmd.Env = s.buildEnv()
	cmd.ExtraFiles = []*os.File{listener}
	cmd.Stdout = s.config.Stdout
	cmd.Stderr = s.config.Stderr

	mp, err := s.pm.Start(ctx, s.config.Name, cmd)
	if err != nil {
		s.state.Store(devops.StateFailed)
		return fmt.Errorf("start %s: %w", s.config.Name, err)
	}
	s.state.Store(devops.StateRunning)

	s.health.Register(s.config.Name, health.Probe{Target: s.config.HealthURL})

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-mp.Done():
			cancel()
		case <-waitCtx.Done():
		}
	}()

	if err := s.health.WaitHealthy(waitCtx, s.config.Name, s.config.StartupTimeout); err != nil {
		select {
		case <-mp.Done():
			s.state.Store(devops.StateFailed)
			return fmt.Errorf("%s exited before becoming ready: %w", s.config.Name, exitError(mp))
		default:
		}
		_ = s.pm.Stop(context.Background(), s.config.Name)
		if ctx.Err() != nil {
			s.state.Store(devops.StateStopped)
			return ctx.Err()
		}
		s.state.Store(devops.StateFailed)
		return err
	}

	exited := make(chan error, 1)
	go func() {
		<-mp.Done()
		exited <- exitError(mp)
	}()
	s.mu.Lock()
	s.exited = exited
	s.mu.Unlock()

	s.section.Success("%s ready (PID: %d)", s.config.Name, mp.PID)
	s.state.Store(devops.StateHealthy)
	return nil
}

// Stop terminates the current generation, or a generation left over from an
// earlier run that is still recorded in the PID file.
func (s *AppService) Stop(ctx context.Context) error {
	s.state.Store(devops.StateStopping)
	if err := s.pm.Stop(ctx, s.config.Name); err != nil {
		s.state.Store(devops.StateFailed)
		return err
	}
	s.state.Store(devops.StateStopped)
	return nil
}

// stagingPath returns the staging binary path derived from the production path.
func (s *AppService) stagingPath() string {
	return s.config.OutputBin + ".staging"
}

// Build compiles the application to a staging path without touching the
// running binary. The go toolchain is resolved against the activated
// environment first. Implements devops.Buildable.
func (s *AppService) Build(ctx context.Context) (string, error) {
	staging := s.stagingPath()
	s.section.Info("Building %s (%s) → %s ...", s.config.Name, s.config.Package, staging)

	goBin, err := s.env.LookPath("go")
	if err != nil {
		return "", fmt.Errorf("build %s: go toolchain: %w", s.config.Name, err)
	}

	cmd := exec.CommandContext(ctx, goBin, "build", "-o", staging, s.config.Package)
	cmd.Dir = s.config.ProjectDir
	cmd.Env = s.env.Environ(os.Environ())

	out, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(staging) // clean up partial artifact
		return "", fmt.Errorf("build %s: %s: %w", s.config.Name, string(out), err)
	}

	info, err := os.Stat(staging)
	if err != nil {
		return "", fmt.Errorf("%s build succeeded but %s not found", s.config.Name, staging)
	}
	if info.Mode()&0o111 == 0 {
		os.Remove(staging)
		return "", fmt.Errorf("%s staging binary %s is not executable", s.config.Name, staging)
	}

	s.section.Success("%s staged: %s", s.config.Name, staging)
	return staging, nil
}

// Promote atomically replaces the production binary with the staged one.
// Implements devops.Buildable.
func (s *AppService) Promote(stagingPath string) error {
	if err := os.Rename(stagingPath, s.config.OutputBin); err != nil {
		return fmt.Errorf("promote %s: %w", s.config.Name, err)
	}
	return nil
}

func (s *AppService) buildEnv() []string {
	env := s.env.Environ(os.Environ())
	return append(env,
		fmt.Sprintf("PORT=%d", s.config.Port),
		fmt.Sprintf("%s=%s", ListenFDEnv, strconv.Itoa(listenFD)),
	)
}

// exitError converts a finished generation's wait result into an error that
// carries its exit code. A clean exit yields nil.
func exitError(mp *process.ManagedProcess) error {
	err := mp.Err()
	if err == nil {
		return nil
	}
	return &devops.ExitCodeError{Code: exitCodeOf(mp), Err: err}
}

func exitCodeOf(mp *process.ManagedProcess) int {
	if code := mp.ExitCode(); code > 0 {
		return code
	}
	return devops.ExitFailure
}
