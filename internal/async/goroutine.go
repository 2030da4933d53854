package async

import (
	"runtime/debug"
	"time"
)

// PanicLogger captures panic reports from background goroutines.
type PanicLogger interface {
	Error(format string, args ...any)
}

// Go runs fn in a detached goroutine guarded by panic recovery.
// The goroutine is never joined; callers get no result and no error back.
func Go(logger PanicLogger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// GoAfter waits delay in a detached goroutine and then runs fn once.
// There is no cancellation hook: if the process exits first, fn never runs.
func GoAfter(logger PanicLogger, name string, delay time.Duration, fn func()) {
	Go(logger, name, func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		fn()
	})
}

// Recover logs panic details without crashing the process.
func Recover(logger PanicLogger, name string) {
	r := recover()
	if r == nil || logger == nil {
		return
	}
	if name == "" {
		logger.Error("goroutine panic: %v, stack: %s", r, debug.Stack())
		return
	}
	logger.Error("goroutine panic [%s]: %v, stack: %s", name, r, debug.Stack())
}
