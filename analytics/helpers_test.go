package analytics

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeClock is an adjustable clock for deterministic time-window tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeTransport records delivered payloads and can fail the first N
// deliveries.
type fakeTransport struct {
	mu        sync.Mutex
	payloads  []Payload
	failFirst int
	attempts  int
	delivered chan Payload
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{delivered: make(chan Payload, 16)}
}

func (t *fakeTransport) Deliver(_ context.Context, p Payload) error {
	t.mu.Lock()
	t.attempts++
	if t.attempts <= t.failFirst {
		t.mu.Unlock()
		return errors.New("sink unavailable")
	}
	t.payloads = append(t.payloads, p)
	t.mu.Unlock()

	select {
	case t.delivered <- p:
	default:
	}
	return nil
}

func (t *fakeTransport) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

func (t *fakeTransport) Payloads() []Payload {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Payload, len(t.payloads))
	copy(out, t.payloads)
	return out
}

// waitDelivery blocks until a payload is delivered or the timeout elapses.
func (t *fakeTransport) waitDelivery(timeout time.Duration) (Payload, bool) {
	select {
	case p := <-t.delivered:
		return p, true
	case <-time.After(timeout):
		return Payload{}, false
	}
}

// testEngine builds an Engine over fakes with consent disabled-mode (always
// granted) unless overridden via mutate.
func testEngine(clock *fakeClock, transport Transport, mutate func(*Config)) (*Engine, *SimulatedEnvironment) {
	env := NewSimulatedEnvironment(PageContext{
		URL:              "https://donate.example.com/campaign/river-cleanup?utm_source=newsletter&utm_medium=email",
		Referrer:         "",
		Title:            "River Cleanup",
		UserAgent:        "test-agent",
		ScreenResolution: "1920x1080",
		ViewportSize:     "1200x800",
	})

	cfg := Config{
		Environment:        env,
		Transport:          transport,
		Beacon:             transport,
		ConsentMode:        ConsentDisabled,
		DisableGeolocation: true,
		BatchSize:          10,
		BatchIdleWait:      50 * time.Millisecond,
		HeartbeatInterval:  time.Hour,
		Now:                clock.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	return New(cfg), env
}
