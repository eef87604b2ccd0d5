package timer

import (
	"testing"
	"time"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped = true }

type fakeClock struct {
	tickers []*fakeTicker
}

func (c *fakeClock) Now() time.Time { return time.Unix(0, 0) }

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	t := &fakeTicker{ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

type recorder struct {
	ticks   []int
	expired int
}

func (r *recorder) listen(ev Event) {
	switch ev.Kind {
	case EventTick:
		r.ticks = append(r.ticks, ev.Remaining)
	case EventExpired:
		r.expired++
	}
}

func TestRunToCompletionEmitsNTicksAndOneExpiry(t *testing.T) {
	rec := &recorder{}
	clock := &fakeClock{}
	tm := New(clock, rec.listen)

	const n = 5
	if err := tm.Start(n); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < n+3; i++ {
		tm.Fire()
	}

	if len(rec.ticks) != n {
		t.Fatalf("expected %d ticks, got %d", n, len(rec.ticks))
	}
	for i, remaining := range rec.ticks {
		if remaining != n-1-i {
			t.Fatalf("tick %d: expected remaining %d, got %d", i, n-1-i, remaining)
		}
	}
	if rec.expired != 1 {
		t.Fatalf("expected one expiry, got %d", rec.expired)
	}
	if tm.State() != Expired {
		t.Fatalf("expected expired state, got %s", tm.State())
	}
	if tm.C() != nil {
		t.Fatalf("expected no schedule after expiry")
	}
	if !clock.tickers[0].stopped {
		t.Fatalf("expected ticker stopped after expiry")
	}
}

func TestStopSilencesTimerAtAnyPoint(t *testing.T) {
	for stopAfter := 0; stopAfter <= 3; stopAfter++ {
		rec := &recorder{}
		clock := &fakeClock{}
		tm := New(clock, rec.listen)
		if err := tm.Start(3); err != nil {
			t.Fatalf("start: %v", err)
		}
		for i := 0; i < stopAfter; i++ {
			tm.Fire()
		}
		// a tick already queued on the ticker must not leak out
		clock.tickers[0].ch <- time.Now()
		tm.Stop()
		before := len(rec.ticks) + rec.expired
		for i := 0; i < 5; i++ {
			tm.Fire()
		}
		if after := len(rec.ticks) + rec.expired; after != before {
			t.Fatalf("stopAfter=%d: expected no events after stop, got %d more", stopAfter, after-before)
		}
		if tm.State() != Idle || tm.C() != nil {
			t.Fatalf("stopAfter=%d: expected idle timer without schedule", stopAfter)
		}
	}
}

func TestStartTransitions(t *testing.T) {
	rec := &recorder{}
	tm := New(&fakeClock{}, rec.listen)
	if err := tm.Start(-1); err != ErrNegativeDuration {
		t.Fatalf("expected negative duration error, got %v", err)
	}
	if err := tm.Start(2); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := tm.Start(2); err != ErrNotIdle {
		t.Fatalf("expected ErrNotIdle, got %v", err)
	}
	tm.Stop()
	if err := tm.Start(0); err != nil {
		t.Fatalf("restart with zero: %v", err)
	}
	if rec.expired != 1 || len(rec.ticks) != 0 {
		t.Fatalf("expected immediate expiry, got ticks=%v expired=%d", rec.ticks, rec.expired)
	}
}

func TestListenerMayStopOnFinalTick(t *testing.T) {
	var tm *Timer
	expired := 0
	tm = New(&fakeClock{}, func(ev Event) {
		if ev.Kind == EventTick && ev.Remaining == 0 {
			tm.Stop()
		}
		if ev.Kind == EventExpired {
			expired++
		}
	})
	_ = tm.Start(1)
	tm.Fire()
	if expired != 0 {
		t.Fatalf("expected stop inside listener to suppress expiry")
	}
}
