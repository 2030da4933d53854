// Package supervisor owns the listening socket and runs the application as a
// series of generations, rebuilding and restarting it when sources change.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"nameday/internal/devops"
	devlog "nameday/internal/devops/log"
	"nameday/internal/logging"
)

// App is the supervised application. Every generation serves on the
// listener passed to Inherit.
type App interface {
	devops.Supervised
	Inherit(listener *os.File)
}

// ChangeSource reports debounced batches of relevant file changes.
type ChangeSource interface {
	Run(ctx context.Context) error
	Changes() <-chan struct{}
	Drain() []string
}

// Config holds supervisor configuration.
type Config struct {
	Addr        string
	Reload      bool
	StopTimeout time.Duration
	Restart     devops.RestartConfig
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithChangeSource sets the source of reload triggers. Required when
// Config.Reload is set.
func WithChangeSource(cs ChangeSource) Option {
	return func(s *Supervisor) { s.changes = cs }
}

// WithStatusFile records phase transitions to a JSON status file.
func WithStatusFile(sf *StatusFile) Option {
	return func(s *Supervisor) { s.statusFile = sf }
}

// WithLogger sets the structured logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Supervisor) { s.logger = logging.OrNop(logger) }
}

// Supervisor binds the address once and keeps the application serving on it.
type Supervisor struct {
	cfg        Config
	app        App
	section    *devlog.SectionWriter
	changes    ChangeSource
	statusFile *StatusFile
	logger     logging.Logger
	policy     *RestartPolicy

	mu         sync.Mutex
	status     Status
	generation int
	reloads    int
}

// New creates a supervisor for app.
func New(cfg Config, app App, sw *devlog.SectionWriter, opts ...Option) *Supervisor {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	s := &Supervisor{
		cfg:     cfg,
		app:     app,
		section: sw,
		logger:  logging.NewComponentLogger("supervisor"),
		policy:  NewRestartPolicy(cfg.Restart),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.status = Status{Addr: cfg.Addr, App: app.Name()}
	return s
}

// Reloads returns how many file-change reloads produced a serving generation.
func (s *Supervisor) Reloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloads
}

// Status returns the latest status snapshot.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Run binds the address, starts the first generation and supervises it until
// ctx is canceled. Cancellation stops the running generation and returns nil.
// A bind failure returns *devops.BindError without starting anything; a first
// generation that cannot build or become ready returns *devops.StartupError.
// Without reload, the application's own exit ends Run with its exit status.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.cfg.Reload && s.changes == nil {
		return &devops.ConfigurationError{Err: errors.New("reload enabled without a change source")}
	}

	// A generation orphaned by an earlier run would still hold the port.
	if err := s.app.Stop(ctx); err != nil {
		s.logger.Warn("Stop leftover %s: %v", s.app.Name(), err)
	}

	s.section.Section("Server")
	s.section.Info("Binding %s", s.cfg.Addr)
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return &devops.BindError{Addr: s.cfg.Addr, Err: err}
	}
	defer ln.Close()

	file, err := listenerFile(ln)
	if err != nil {
		return &devops.BindError{Addr: s.cfg.Addr, Err: err}
	}
	defer file.Close()
	s.app.Inherit(file)
	s.logger.Info("Listening on %s", ln.Addr())

	s.setPhase(PhaseStarting, nil)
	if err := s.buildAndStart(ctx); err != nil {
		if ctx.Err() != nil {
			s.setPhase(PhaseStopped, nil)
			return nil
		}
		s.setPhase(PhaseStopped, err)
		return &devops.StartupError{Service: s.app.Name(), Err: err}
	}
	s.setPhase(PhaseServing, nil)

	if !s.cfg.Reload {
		return s.runOnce(ctx)
	}
	return s.runReload(ctx)
}

// runOnce waits for either cancellation or the application's own exit.
func (s *Supervisor) runOnce(ctx context.Context) error {
	select {
	case <-ctx.Done():
		s.stopApp()
		return nil
	case err := <-s.app.Exited():
		s.setPhase(PhaseStopped, err)
		if err == nil {
			s.section.Info("%s exited", s.app.Name())
			return nil
		}
		s.section.Error("%s exited: %v", s.app.Name(), err)
		var codeErr *devops.ExitCodeError
		if errors.As(err, &codeErr) {
			return codeErr
		}
		return &devops.ExitCodeError{Code: devops.ExitFailure, Err: err}
	}
}

func (s *Supervisor) runReload(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return s.changes.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		s.loop(gctx)
		return nil
	})
	return g.Wait()
}

// loop reacts to file changes and crashes until ctx is done. exited is nil
// while no generation is serving, which disables that case.
func (s *Supervisor) loop(ctx context.Context) {
	exited := s.app.Exited()
	s.section.Info("Watching for changes")
	for {
		select {
		case <-ctx.Done():
			s.stopApp()
			return
		case <-s.changes.Changes():
			paths := s.changes.Drain()
			if len(paths) == 0 {
				continue
			}
			if s.reload(ctx, paths) {
				exited = s.app.Exited()
			} else if s.app.State() != devops.StateHealthy {
				exited = nil
			}
		case err := <-exited:
			exited = nil
			if s.restartAfterCrash(ctx, err) {
				exited = s.app.Exited()
			}
		}
	}
}

// reload rebuilds and swaps the generation. A failed build keeps the current
// generation serving; a failed start leaves nothing running until the next
// change. It reports whether a new generation is serving.
func (s *Supervisor) reload(ctx context.Context, paths []string) bool {
	s.section.Section("Reload")
	s.section.Info("Detected changes in %s", summarize(paths))

	staging, err := s.app.Build(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.section.Error("Build failed, keeping the running generation: %v", err)
		s.setLastError(err)
		return false
	}

	if err := s.app.Stop(ctx); err != nil {
		s.section.Warn("Stop %s: %v", s.app.Name(), err)
	}
	if err := s.app.Promote(staging); err != nil {
		s.section.Error("%v", err)
		s.setLastError(err)
	}

	s.policy.Reset(s.app.Name())
	if !s.start(ctx) {
		return false
	}
	s.mu.Lock()
	s.reloads++
	s.mu.Unlock()
	return true
}

// restartAfterCrash restarts a generation that exited on its own, unless the
// restart budget for the window is spent.
func (s *Supervisor) restartAfterCrash(ctx context.Context, exitErr error) bool {
	if exitErr == nil {
		exitErr = errors.New("exit status 0")
	}
	s.section.Warn("%s exited: %v", s.app.Name(), exitErr)
	s.setPhase(PhaseWaiting, exitErr)

	ok, n := s.policy.Allow(s.app.Name())
	if !ok {
		s.section.Warn("Restarted %d times within %v, waiting for file changes", n, s.policy.WindowDuration)
		return false
	}
	s.section.Info("Restarting %s (%d/%d)", s.app.Name(), n, s.policy.MaxInWindow)
	return s.start(ctx)
}

func (s *Supervisor) start(ctx context.Context) bool {
	s.setPhase(PhaseStarting, nil)
	if err := s.app.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.section.Error("Start failed, waiting for file changes: %v", err)
		s.setPhase(PhaseWaiting, err)
		return false
	}
	s.setPhase(PhaseServing, nil)
	return true
}

func (s *Supervisor) buildAndStart(ctx context.Context) error {
	staging, err := s.app.Build(ctx)
	if err != nil {
		return err
	}
	if err := s.app.Promote(staging); err != nil {
		return err
	}
	return s.app.Start(ctx)
}

// stopApp stops the running generation with a fresh deadline, since the
// caller's context is usually already canceled.
func (s *Supervisor) stopApp() {
	s.section.Section("Shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 2*s.cfg.StopTimeout)
	defer cancel()
	if err := s.app.Stop(ctx); err != nil {
		s.section.Warn("Stop %s: %v", s.app.Name(), err)
	} else {
		s.section.Success("%s stopped", s.app.Name())
	}
	s.setPhase(PhaseStopped, nil)
}

func (s *Supervisor) setPhase(phase Phase, err error) {
	s.mu.Lock()
	if phase == PhaseStarting {
		s.generation++
	}
	s.status.Phase = phase
	s.status.Generation = s.generation
	s.status.Reloads = s.reloads
	s.status.RestartWindow = s.policy.RestartCount(s.app.Name())
	s.status.Timestamp = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	snapshot := s.status
	s.mu.Unlock()

	s.logger.Debug("phase=%s generation=%d", phase, snapshot.Generation)
	if s.statusFile != nil {
		if werr := s.statusFile.Write(snapshot); werr != nil {
			s.logger.Warn("Write status: %v", werr)
		}
	}
}

func (s *Supervisor) setLastError(err error) {
	s.mu.Lock()
	s.status.LastError = err.Error()
	s.mu.Unlock()
}

func listenerFile(ln net.Listener) (*os.File, error) {
	tl, ok := ln.(*net.TCPListener)
	if !ok {
		return nil, fmt.Errorf("unsupported listener %T", ln)
	}
	return tl.File()
}

func summarize(paths []string) string {
	const shown = 3
	if len(paths) <= shown {
		return strings.Join(paths, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(paths[:shown], ", "), len(paths)-shown)
}
