package supervisor

import (
	"testing"
	"time"

	"nameday/internal/devops"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestPolicy(max int, window time.Duration) (*RestartPolicy, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := NewRestartPolicy(devops.RestartConfig{MaxInWindow: max, Window: window})
	p.now = clock.Now
	return p, clock
}

func TestRestartPolicyBasic(t *testing.T) {
	p, _ := newTestPolicy(3, 10*time.Second)

	for i := 1; i <= 3; i++ {
		ok, n := p.Allow("nameday")
		if !ok || n != i {
			t.Fatalf("Allow() #%d = %v, %d; want true, %d", i, ok, n, i)
		}
	}

	if ok, n := p.Allow("nameday"); ok || n != 3 {
		t.Errorf("Allow() at max = %v, %d; want false, 3", ok, n)
	}
}

func TestRestartPolicyWindowPruning(t *testing.T) {
	p, clock := newTestPolicy(2, time.Second)

	p.Allow("nameday")
	p.Allow("nameday")
	if ok, _ := p.Allow("nameday"); ok {
		t.Fatal("should deny at max")
	}

	clock.Advance(2 * time.Second)
	if got := p.RestartCount("nameday"); got != 0 {
		t.Errorf("RestartCount after window = %d, want 0", got)
	}
	if ok, _ := p.Allow("nameday"); !ok {
		t.Error("should allow after window expiry")
	}
}

func TestRestartPolicyReset(t *testing.T) {
	p, _ := newTestPolicy(1, time.Minute)

	p.Allow("nameday")
	if ok, _ := p.Allow("nameday"); ok {
		t.Fatal("should deny at max")
	}

	p.Reset("nameday")
	if ok, _ := p.Allow("nameday"); !ok {
		t.Error("should allow restart after reset")
	}
}

func TestRestartPolicyDefaults(t *testing.T) {
	p := NewRestartPolicy(devops.RestartConfig{})
	if p.MaxInWindow != 5 || p.WindowDuration != time.Minute {
		t.Errorf("defaults = %d/%v, want 5/1m", p.MaxInWindow, p.WindowDuration)
	}
}
