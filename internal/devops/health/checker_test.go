package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestCheckUnregistered(t *testing.T) {
	c := NewChecker()
	res := c.Check(context.Background(), "missing")
	if res.Healthy {
		t.Fatal("unregistered service should not be healthy")
	}
	if !strings.Contains(res.Message, "no probe registered") {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestCheckHTTPStatus(t *testing.T) {
	tests := []struct {
		status  int
		healthy bool
	}{
		{http.StatusOK, true},
		{http.StatusTemporaryRedirect, true},
		{http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		c := NewChecker()
		c.Register("app", Probe{Target: srv.URL})
		res := c.Check(context.Background(), "app")
		srv.Close()

		if res.Healthy != tt.healthy {
			t.Errorf("status %d: Healthy = %v, want %v", tt.status, res.Healthy, tt.healthy)
		}
	}
}

func TestWaitHealthyEventuallySucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewChecker()
	c.Register("app", Probe{Target: srv.URL, Interval: 10 * time.Millisecond})
	if err := c.WaitHealthy(context.Background(), "app", 2*time.Second); err != nil {
		t.Fatalf("WaitHealthy() error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got < 3 {
		t.Errorf("calls = %d, want >= 3", got)
	}
}

func TestWaitHealthyTimesOut(t *testing.T) {
	c := NewChecker()
	c.Register("app", Probe{Target: "http://127.0.0.1:1/healthz", Interval: 10 * time.Millisecond, Timeout: 50 * time.Millisecond})
	err := c.WaitHealthy(context.Background(), "app", 100*time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "did not become healthy") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestWaitHealthyHonoursContext(t *testing.T) {
	c := NewChecker()
	c.Register("app", Probe{Target: "http://127.0.0.1:1/healthz", Interval: time.Second, Timeout: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.WaitHealthy(ctx, "app", 10*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
