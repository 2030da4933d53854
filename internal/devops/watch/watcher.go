// Package watch reports debounced source-tree changes for auto-reload.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"nameday/internal/logging"
)

const defaultDebounce = 300 * time.Millisecond

// Options configures a Watcher. Patterns are slash-separated globs matched
// against paths relative to the root; `**` crosses directories.
type Options struct {
	Include  []string
	Ignore   []string
	Debounce time.Duration
	Logger   logging.Logger
}

// Watcher watches a directory tree recursively and coalesces bursts of
// changes into a single notification.
type Watcher struct {
	root     string
	include  []glob.Glob
	ignore   []glob.Glob
	debounce time.Duration
	logger   logging.Logger

	fs      *fsnotify.Watcher
	changes chan struct{}

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]struct{}
}

// New creates a watcher for root and registers every non-ignored directory.
func New(root string, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}

	include, err := compile(opts.Include)
	if err != nil {
		return nil, err
	}
	ignore, err := compile(opts.Ignore)
	if err != nil {
		return nil, err
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}

	w := &Watcher{
		root:     abs,
		include:  include,
		ignore:   ignore,
		debounce: debounce,
		logger:   logging.OrNop(opts.Logger),
		fs:       fsw,
		changes:  make(chan struct{}, 1),
		pending:  make(map[string]struct{}),
	}
	if err := w.addTree(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func compile(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("compile watch pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Changes signals that at least one matching file changed. Call Drain to
// collect the paths. Signals coalesce while the consumer is busy.
func (w *Watcher) Changes() <-chan struct{} { return w.changes }

// Drain returns and clears the changed paths, relative to the root, sorted.
func (w *Watcher) Drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	sort.Strings(paths)
	return paths
}

// Run processes filesystem events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) close() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	_ = w.fs.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Name == "" {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	rel, ok := w.relative(event.Name)
	if !ok {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.ignoredDir(rel) {
				if err := w.addTree(event.Name); err != nil {
					w.logger.Warn("Watch new directory %s: %v", rel, err)
				}
			}
			return
		}
	}

	if !w.Matches(rel) {
		return
	}
	w.schedule(rel)
}

func (w *Watcher) schedule(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[rel] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.changes <- struct{}{}:
		default:
		}
	})
}

// Matches reports whether a root-relative, slash-separated path should
// trigger a reload.
func (w *Watcher) Matches(rel string) bool {
	for _, g := range w.ignore {
		if g.Match(rel) {
			return false
		}
	}
	if len(w.include) == 0 {
		return true
	}
	for _, g := range w.include {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func (w *Watcher) ignoredDir(rel string) bool {
	if rel == "." {
		return false
	}
	for _, g := range w.ignore {
		if g.Match(rel) || g.Match(rel+"/") {
			return true
		}
	}
	return false
}

func (w *Watcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories can vanish between the event and the walk.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, ok := w.relative(path)
		if !ok {
			return filepath.SkipDir
		}
		if w.ignoredDir(rel) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", rel, err)
		}
		return nil
	})
}
