package devops

import (
	"errors"
	"fmt"
)

// Process exit codes for the fatal error classes. Values follow sysexits.h
// where one fits; bind and startup failures use the codes the app server
// conventionally exits with.
const (
	ExitOK              = 0
	ExitFailure         = 1
	ExitStartupFailure  = 3
	ExitEnvironmentGone = 69 // EX_UNAVAILABLE
	ExitConfiguration   = 78 // EX_CONFIG
)

// ConfigurationError reports an unusable bootstrap configuration: a config
// file or .env that does not parse, invalid values, or a working directory
// that could not be determined or entered.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// EnvironmentMissingError reports that the isolated environment has not been
// provisioned at the expected path.
type EnvironmentMissingError struct {
	Path string
	Err  error
}

func (e *EnvironmentMissingError) Error() string {
	msg := fmt.Sprintf("environment missing at %s (provision it first, e.g. with the project setup script)", e.Path)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EnvironmentMissingError) Unwrap() error { return e.Err }

// BindError reports that the server port could not be bound.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// StartupError reports that the served application failed while building,
// importing or initialising, before it became ready.
type StartupError struct {
	Service string
	Err     error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("%s failed to start: %v", e.Service, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// ExitCodeError wraps an error with a specific process exit code.
//
// The supervisor returns it when a served process exits on its own so the
// bootstrap can exit with the same status.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExitCode maps an error returned by the bootstrap to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	// A generation that dies before becoming ready is a startup failure,
	// whatever status it exited with.
	var startupErr *StartupError
	if errors.As(err, &startupErr) {
		return ExitStartupFailure
	}

	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) && exitErr.Code != 0 {
		return exitErr.Code
	}

	var (
		cfgErr  *ConfigurationError
		envErr  *EnvironmentMissingError
		bindErr *BindError
	)
	switch {
	case errors.As(err, &cfgErr):
		return ExitConfiguration
	case errors.As(err, &envErr):
		return ExitEnvironmentGone
	case errors.As(err, &bindErr):
		return ExitFailure
	default:
		return ExitFailure
	}
}
