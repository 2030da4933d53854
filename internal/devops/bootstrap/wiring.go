package bootstrap

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"nameday/internal/devops"
	"nameday/internal/devops/browser"
	"nameday/internal/devops/environment"
	"nameday/internal/devops/health"
	devlog "nameday/internal/devops/log"
	"nameday/internal/devops/process"
	"nameday/internal/devops/services"
	"nameday/internal/devops/supervisor"
	"nameday/internal/devops/watch"
	"nameday/internal/devops/workdir"
	"nameday/internal/logging"
)

// Options configures the default bootstrap steps.
type Options struct {
	// ConfigPath is the optional YAML file, relative to the project directory.
	ConfigPath string
	// Root overrides the directory derived from the executable's location.
	Root string
	// Override applies command-line settings on top of file and environment.
	Override func(cfg *devops.DevConfig)
	// Opener opens the docs page; nil disables the browser.
	Opener browser.Opener
	// Stdout and Stderr receive the application's output.
	Stdout io.Writer
	Stderr io.Writer
}

// DefaultSteps wires the real collaborators.
func DefaultSteps(opts Options, sw *devlog.SectionWriter) Steps {
	return Steps{
		Locate: func() (string, error) {
			return locate(opts.Root, sw)
		},
		Enter: workdir.Enter,
		Load: func() (*devops.DevConfig, error) {
			cfg, err := devops.LoadDevConfig(opts.ConfigPath)
			if err != nil {
				return nil, err
			}
			if opts.Override != nil {
				opts.Override(cfg)
				if err := cfg.Validate(); err != nil {
					return nil, err
				}
			}
			logging.Configure(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: opts.Stderr})
			return cfg, nil
		},
		Activate: func(cfg *devops.DevConfig) (*environment.Environment, error) {
			return environment.Activate(cfg.ProjectDir, cfg.EnvDir)
		},
		Opener: opts.Opener,
		NewServer: func(cfg *devops.DevConfig, env *environment.Environment) (Server, error) {
			return NewSupervisor(cfg, env, sw, opts.Stdout, opts.Stderr)
		},
	}
}

// NewSupervisor assembles the application service, the file watcher and the
// supervisor for cfg.
func NewSupervisor(cfg *devops.DevConfig, env *environment.Environment, sw *devlog.SectionWriter, stdout, stderr io.Writer) (*supervisor.Supervisor, error) {
	runDir := filepath.Join(cfg.BuildDir, "run")
	pm := process.NewManager(runDir, filepath.Join(cfg.BuildDir, "logs"), cfg.StopTimeout)

	if err := os.MkdirAll(filepath.Dir(cfg.AppBinary()), 0o755); err != nil {
		return nil, fmt.Errorf("create build dir: %w", err)
	}

	app := services.NewAppService(pm, health.NewChecker(), sw, env, services.AppConfig{
		Name:           cfg.AppName,
		Package:        cfg.AppPackage,
		Args:           cfg.AppArgs,
		ProjectDir:     cfg.ProjectDir,
		OutputBin:      cfg.AppBinary(),
		Port:           cfg.Port,
		HealthURL:      cfg.HealthURL(),
		StartupTimeout: cfg.StartupTimeout,
		Stdout:         stdout,
		Stderr:         stderr,
	})

	opts := []supervisor.Option{
		supervisor.WithStatusFile(supervisor.NewStatusFile(filepath.Join(runDir, "status.json"))),
	}
	if cfg.Reload {
		w, err := newWatcher(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, supervisor.WithChangeSource(w))
	}

	return supervisor.New(supervisor.Config{
		Addr:        cfg.ListenAddr(),
		Reload:      cfg.Reload,
		StopTimeout: cfg.StopTimeout,
		Restart:     cfg.Restart,
	}, app, sw, opts...), nil
}

// newWatcher watches the project for reload triggers. The isolated
// environment is never watched.
func newWatcher(cfg *devops.DevConfig) (*watch.Watcher, error) {
	w, err := watch.New(cfg.ProjectDir, watch.Options{
		Include:  cfg.WatchInclude,
		Ignore:   cfg.WatchIgnorePatterns(),
		Debounce: cfg.ReloadDebounce,
		Logger:   logging.NewComponentLogger("watch"),
	})
	if err != nil {
		return nil, &devops.ConfigurationError{Err: err}
	}
	return w, nil
}

func locate(root string, sw *devlog.SectionWriter) (string, error) {
	if root != "" {
		dir, err := filepath.Abs(root)
		if err != nil {
			return "", &devops.ConfigurationError{Path: root, Err: err}
		}
		return dir, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return "", &devops.ConfigurationError{Err: fmt.Errorf("locate executable: %w", err)}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", &devops.ConfigurationError{Err: fmt.Errorf("get working directory: %w", err)}
	}
	dir, fromCwd, err := workdir.Locate(exe, cwd)
	if err != nil {
		return "", err
	}
	if fromCwd {
		sw.Warn("Running from a go run build, using the working directory %s", dir)
	}
	return dir, nil
}
