package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"competition-session-service/internal/app"
	"competition-session-service/internal/domain"
	"competition-session-service/internal/infra/memory"
	"competition-session-service/internal/mathsplit"
	"competition-session-service/internal/submission"
	"competition-session-service/internal/timer"
	"github.com/rs/zerolog"
)

const onePayload = `{
	"kind": "competition",
	"competitionId": "c-1",
	"name": "Regional Round",
	"totalTimeMinutes": 1,
	"selectedCourses": ["MTH", "PHY"],
	"questions": [
		{"id": "m1", "courseCode": "MTH", "text": "Evaluate $2^3$", "options": ["6", "8", "9"]},
		{"id": "p1", "courseCode": "PHY", "text": "SI unit of charge", "options": ["Coulomb", "Ampere"]},
		{"id": "m2", "courseCode": "MTH", "text": "Root of $$x^2=4$$", "options": ["1", "2"]}
	]
}`

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	ticker *fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) timer.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticker = &fakeTicker{ch: make(chan time.Time)}
	return c.ticker
}

// Tick delivers one second to the running engine and waits until it is taken.
func (c *fakeClock) Tick(t *testing.T) {
	t.Helper()
	c.mu.Lock()
	c.now = c.now.Add(time.Second)
	tk := c.ticker
	now := c.now
	c.mu.Unlock()
	if tk == nil {
		t.Fatalf("no ticker running")
	}
	select {
	case tk.ch <- now:
	case <-time.After(2 * time.Second):
		t.Fatalf("tick not consumed")
	}
}

type fakeTicker struct {
	ch chan time.Time
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               {}

// countingProgress counts saves on top of the in-memory store.
type countingProgress struct {
	*memory.ProgressStore
	mu    sync.Mutex
	saves int
}

func (p *countingProgress) Save(ctx context.Context, id string, s domain.ProgressSnapshot) error {
	p.mu.Lock()
	p.saves++
	p.mu.Unlock()
	return p.ProgressStore.Save(ctx, id, s)
}

func (p *countingProgress) Saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}

// gatedSubmitter blocks every call until release is closed and fails the first
// failures calls.
type gatedSubmitter struct {
	release  chan struct{}
	entered  chan struct{}
	mu       sync.Mutex
	calls    int
	failures int
	reasons  []domain.SubmitReason
	payloads []domain.SubmissionPayload
}

func newGatedSubmitter(failures int) *gatedSubmitter {
	return &gatedSubmitter{
		release:  make(chan struct{}),
		entered:  make(chan struct{}, 8),
		failures: failures,
	}
}

func (g *gatedSubmitter) Submit(ctx context.Context, _ string, payload domain.SubmissionPayload, reason domain.SubmitReason) (json.RawMessage, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.reasons = append(g.reasons, reason)
	g.payloads = append(g.payloads, payload)
	if g.calls <= g.failures {
		return nil, errors.New("scoring unavailable")
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func (g *gatedSubmitter) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fixture struct {
	clock    *fakeClock
	progress *countingProgress
	payloads *memory.PayloadStore
	scorer   *memory.Scorer
	deps     app.Deps
}

func newFixture(t *testing.T, submitter submission.Submitter) *fixture {
	t.Helper()
	f := &fixture{
		clock:    newFakeClock(),
		progress: &countingProgress{ProgressStore: memory.NewProgressStore()},
		payloads: memory.NewPayloadStore(nil, 0),
		scorer:   memory.NewScorer(),
	}
	if submitter == nil {
		submitter = f.scorer
	}
	f.deps = app.Deps{
		Progress:   f.progress,
		Payloads:   f.payloads,
		Submitter:  submitter,
		Reporter:   f.scorer,
		Violations: f.scorer,
		Renderer:   mathsplit.HTMLRenderer{},
		Clock:      f.clock,
		Logger:     zerolog.Nop(),
	}
	if err := f.payloads.Put(context.Background(), "c-1", []byte(onePayload)); err != nil {
		t.Fatalf("stage payload: %v", err)
	}
	return f
}

func (f *fixture) open(t *testing.T) *app.Engine {
	t.Helper()
	e, err := app.Open(context.Background(), "c-1", f.deps)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func waitDone(t *testing.T, e *app.Engine) {
	t.Helper()
	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("engine did not finish")
	}
}

func waitEntered(t *testing.T, g *gatedSubmitter) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("submission never reached scoring service")
	}
}

// drain collects events until one of type want arrives.
func drain(t *testing.T, ch <-chan app.Event, want app.EventType) []app.Event {
	t.Helper()
	var got []app.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event stream closed before %s", want)
			}
			got = append(got, ev)
			if ev.Type == want {
				return got
			}
		case <-timeout:
			t.Fatalf("no %s event, got %+v", want, got)
		}
	}
}
