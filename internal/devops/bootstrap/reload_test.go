package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nameday/internal/devops"
	"nameday/internal/devops/browser"
	"nameday/internal/devops/environment"
	"nameday/internal/devops/health"
	devlog "nameday/internal/devops/log"
	"nameday/internal/devops/supervisor"
	"nameday/internal/logging"
)

// fakeApp serves instantly and never exits on its own.
type fakeApp struct {
	mu     sync.Mutex
	starts int
	state  devops.ServiceState
	exited chan error
}

func newFakeApp() *fakeApp {
	return &fakeApp{state: devops.StateStopped, exited: make(chan error, 1)}
}

func (a *fakeApp) Name() string { return "nameday" }

func (a *fakeApp) Start(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.starts++
	a.state = devops.StateHealthy
	return nil
}

func (a *fakeApp) Stop(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = devops.StateStopped
	return nil
}

func (a *fakeApp) State() devops.ServiceState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *fakeApp) Health(context.Context) health.Result {
	return health.Result{Healthy: a.State() == devops.StateHealthy}
}

func (a *fakeApp) Build(context.Context) (string, error) { return "nameday.staging", nil }
func (a *fakeApp) Promote(string) error                  { return nil }
func (a *fakeApp) Exited() <-chan error                  { return a.exited }
func (a *fakeApp) Inherit(*os.File)                      {}

func (a *fakeApp) startCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.starts
}

// fakeChanges delivers a change batch for every value sent on ch.
type fakeChanges struct {
	ch chan struct{}
}

func (c *fakeChanges) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (c *fakeChanges) Changes() <-chan struct{} { return c.ch }
func (c *fakeChanges) Drain() []string          { return []string{"internal/nameday/calendar.go"} }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunOpensDocsOnceAcrossReloads(t *testing.T) {
	const reloads = 3
	rec := &recorder{}
	app := newFakeApp()
	changes := &fakeChanges{ch: make(chan struct{})}
	sw := devlog.NewSectionWriter(io.Discard, false)
	cfg := testConfig()

	supCh := make(chan *supervisor.Supervisor, 1)
	steps := fakeSteps(rec, cfg, nil)
	steps.NewServer = func(*devops.DevConfig, *environment.Environment) (Server, error) {
		sup := supervisor.New(supervisor.Config{
			Addr:        "127.0.0.1:0",
			Reload:      true,
			StopTimeout: time.Second,
		}, app, sw, supervisor.WithChangeSource(changes))
		supCh <- sup
		return sup, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- New(steps, sw).Run(ctx) }()

	var sup *supervisor.Supervisor
	select {
	case sup = <-supCh:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor was not created")
	}

	require.Eventually(t, func() bool {
		_, urls := rec.snapshot()
		return len(urls) == 1
	}, 5*time.Second, 10*time.Millisecond)

	for i := 1; i <= reloads; i++ {
		select {
		case changes.ch <- struct{}{}:
		case <-time.After(5 * time.Second):
			t.Fatalf("reload %d was not picked up", i)
		}
		require.Eventually(t, func() bool { return sup.Reloads() == i }, 5*time.Second, 10*time.Millisecond)
	}

	// Give a repeated schedule the chance to fire.
	time.Sleep(5 * cfg.BrowserDelay)
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, urls := rec.snapshot()
	require.Equal(t, []string{"http://localhost:8123/docs"}, urls)
	require.Equal(t, reloads+1, app.startCount())
	require.Equal(t, reloads, sup.Reloads())
}

func TestRunLogsBrowserFailureAtLoadedLevel(t *testing.T) {
	out := &syncBuffer{}
	t.Cleanup(func() { logging.Configure(logging.Config{}) })
	logging.Configure(logging.Config{Level: "info", Output: out})

	rec := &recorder{}
	steps := fakeSteps(rec, testConfig(), func(context.Context) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	load := steps.Load
	steps.Load = func() (*devops.DevConfig, error) {
		logging.Configure(logging.Config{Level: "debug", Output: out})
		return load()
	}
	steps.Opener = browser.OpenerFunc(func(string) error { return errors.New("no display") })

	// Built while logging is still at info.
	o := newTestOrchestrator(steps)
	require.NoError(t, o.Run(context.Background()))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "no display")
	}, 2*time.Second, 10*time.Millisecond)
}
