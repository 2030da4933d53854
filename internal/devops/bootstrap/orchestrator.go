// Package bootstrap runs the development bootstrap: it pins the working
// directory, activates the isolated environment, schedules the browser and
// hands control to the server supervisor.
package bootstrap

import (
	"context"
	"errors"
	"os"

	"nameday/internal/devops"
	"nameday/internal/devops/browser"
	"nameday/internal/devops/environment"
	devlog "nameday/internal/devops/log"
	"nameday/internal/logging"
)

// Server blocks serving until ctx is canceled or serving fails.
type Server interface {
	Run(ctx context.Context) error
}

// Steps are the collaborators the orchestrator drives, in order.
type Steps struct {
	// Locate returns the bootstrap's own directory.
	Locate func() (string, error)
	// Enter makes the directory the process working directory.
	Enter func(dir string) error
	// Load reads configuration relative to the entered directory.
	Load func() (*devops.DevConfig, error)
	// Activate loads the isolated environment for child processes.
	Activate func(cfg *devops.DevConfig) (*environment.Environment, error)
	// Opener opens the docs page. Nil disables the browser.
	Opener browser.Opener
	// NewServer builds the supervisor for the activated environment.
	NewServer func(cfg *devops.DevConfig, env *environment.Environment) (Server, error)
}

// Orchestrator coordinates the bootstrap sequence.
type Orchestrator struct {
	steps   Steps
	section *devlog.SectionWriter
	logger  logging.Logger
	config  *devops.DevConfig
}

// New creates an orchestrator over the given steps.
func New(steps Steps, sw *devlog.SectionWriter) *Orchestrator {
	if sw == nil {
		sw = devlog.NewSectionWriter(os.Stdout, false)
	}
	return &Orchestrator{
		steps:   steps,
		section: sw,
	}
}

// Config returns the configuration loaded by Run, or nil before loading.
func (o *Orchestrator) Config() *devops.DevConfig { return o.config }

// Run executes the bootstrap sequence. Every step before the server is a
// precondition: a failure there returns before anything is bound or opened.
// The browser is scheduled exactly once, before the server starts; it is
// neither awaited nor repeated across reloads.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.validate(); err != nil {
		return err
	}

	o.section.Section("Bootstrap")
	dir, err := o.steps.Locate()
	if err != nil {
		o.section.Error("Cannot determine project directory: %v", err)
		return err
	}
	if err := o.steps.Enter(dir); err != nil {
		o.section.Error("Cannot enter %s: %v", dir, err)
		return err
	}
	o.section.Info("Project directory: %s", dir)

	cfg, err := o.steps.Load()
	if err != nil {
		o.section.Error("%v", err)
		return err
	}
	o.config = cfg
	// Load may reconfigure logging, so the logger is taken afterwards.
	o.logger = logging.NewComponentLogger("bootstrap")

	env, err := o.steps.Activate(cfg)
	if err != nil {
		o.section.Error("%v", err)
		return err
	}
	o.section.Success("Environment active: %s", env.Root)

	if cfg.OpenBrowser && o.steps.Opener != nil {
		url := cfg.DocsURL()
		o.section.Info("Opening %s in %v", url, cfg.BrowserDelay)
		browser.ScheduleOpen(o.logger, o.steps.Opener, url, cfg.BrowserDelay)
	}

	srv, err := o.steps.NewServer(cfg, env)
	if err != nil {
		o.section.Error("%v", err)
		return err
	}
	if err := srv.Run(ctx); err != nil {
		o.section.Error("%v", err)
		return err
	}
	return nil
}

func (o *Orchestrator) validate() error {
	s := o.steps
	if s.Locate == nil || s.Enter == nil || s.Load == nil || s.Activate == nil || s.NewServer == nil {
		return &devops.ConfigurationError{Err: errors.New("bootstrap steps incomplete")}
	}
	return nil
}
