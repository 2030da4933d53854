// Package browser opens the operator's browser once the bootstrap has started
// the server.
//
// Opening is fire-and-forget: ScheduleOpen returns nothing, its goroutine is
// never joined, and an open failure is logged at debug level and dropped. The
// server's outcome alone decides the program's exit status.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"nameday/internal/async"
	"nameday/internal/logging"
)

// Opener opens a URL in a browser.
type Opener interface {
	Open(url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(url string) error

// Open calls f(url).
func (f OpenerFunc) Open(url string) error { return f(url) }

// SystemOpener launches the platform's default URL handler.
type SystemOpener struct{}

// Open starts the default handler for url without waiting for it to exit.
func (SystemOpener) Open(url string) error {
	name, args := command(runtime.GOOS, url)
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("no browser opener: %w", err)
	}
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap the opener in the background; its exit status is irrelevant.
	go func() { _ = cmd.Wait() }()
	return nil
}

func command(goos, url string) (string, []string) {
	switch goos {
	case "windows":
		return "cmd", []string{"/c", "start", "", url}
	case "darwin":
		return "open", []string{url}
	default: // "linux", "freebsd", "openbsd", "netbsd"
		return "xdg-open", []string{url}
	}
}

// ScheduleOpen opens url with opener once, after delay, in a detached
// goroutine. There is no readiness check: the page may load before the server
// answers and the operator then reloads it by hand.
func ScheduleOpen(logger logging.Logger, opener Opener, url string, delay time.Duration) {
	logger = logging.OrNop(logger)
	if opener == nil {
		return
	}
	async.GoAfter(logger, "browser.open", delay, func() {
		if err := opener.Open(url); err != nil {
			logger.Debug("Browser open for %s failed: %v", url, err)
			return
		}
		logger.Debug("Browser opened at %s", url)
	})
}
