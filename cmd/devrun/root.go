package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"nameday/internal/devops"
	"nameday/internal/devops/bootstrap"
	"nameday/internal/devops/browser"
	devlog "nameday/internal/devops/log"
	"nameday/internal/logging"
)

// usageExitCode is returned for malformed command lines.
const usageExitCode = 2

type rootFlags struct {
	config    string
	root      string
	port      int
	noReload  bool
	noBrowser bool
	logLevel  string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "devrun",
		Short:         "Run the nameday server for local development",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.Configure(logging.Config{Level: flags.level(), Output: stderr})

			sw := devlog.NewSectionWriter(stdout, useColor(stdout))
			opts := bootstrap.Options{
				ConfigPath: flags.config,
				Root:       flags.root,
				Override:   flags.override(cmd),
				Opener:     browser.SystemOpener{},
				Stdout:     stdout,
				Stderr:     stderr,
			}
			return bootstrap.New(bootstrap.DefaultSteps(opts, sw), sw).Run(cmd.Context())
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		c.PrintErrln("Error:", err)
		c.PrintErrln(c.UsageString())
		return &devops.ExitCodeError{Code: usageExitCode, Err: err}
	})

	f := cmd.Flags()
	f.StringVarP(&flags.config, "config", "c", "devrun.yaml", "config file, relative to the project directory")
	f.StringVar(&flags.root, "root", "", "project directory (default: the directory holding this binary)")
	f.IntVarP(&flags.port, "port", "p", 8000, "port to bind and to open in the browser")
	f.BoolVar(&flags.noReload, "no-reload", false, "serve without watching for source changes")
	f.BoolVar(&flags.noBrowser, "no-browser", false, "do not open the API docs in a browser")
	f.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")

	return cmd
}

// override applies only the flags the operator set, so file and environment
// values survive unspecified flags.
func (f *rootFlags) override(cmd *cobra.Command) func(cfg *devops.DevConfig) {
	return func(cfg *devops.DevConfig) {
		flags := cmd.Flags()
		if flags.Changed("port") {
			cfg.Port = f.port
		}
		if flags.Changed("no-reload") {
			cfg.Reload = !f.noReload
		}
		if flags.Changed("no-browser") {
			cfg.OpenBrowser = !f.noBrowser
		}
		if flags.Changed("log-level") {
			cfg.LogLevel = f.logLevel
		}
	}
}

func (f *rootFlags) level() string {
	if f.logLevel != "" {
		return f.logLevel
	}
	return os.Getenv("DEVRUN_LOG_LEVEL")
}

func useColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	return ok && devlog.IsTerminal(file)
}
