// Package timer implements the competition countdown as an explicit state machine.
//
// A Timer is owned by a single goroutine: the owner selects on C() and calls Fire()
// for every value received. Listener callbacks run synchronously on that goroutine,
// so a stopped timer cannot deliver a late tick.
package timer

import (
	"errors"
	"time"
)

// State of the countdown.
type State int

const (
	Idle State = iota
	Running
	Expired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// EventKind distinguishes ticks from the single expiry.
type EventKind string

const (
	EventTick    EventKind = "tick"
	EventExpired EventKind = "expired"
)

// Event is delivered to the listener.
type Event struct {
	Kind      EventKind
	Remaining int
}

// Listener receives timer events on the owner goroutine.
type Listener func(Event)

var (
	ErrNotIdle          = errors.New("timer already started")
	ErrNegativeDuration = errors.New("timer duration must not be negative")
)

// Timer counts down whole seconds.
type Timer struct {
	clock     Clock
	listener  Listener
	state     State
	remaining int
	ticker    Ticker
}

// New returns an idle timer. A nil clock uses RealClock.
func New(clock Clock, listener Listener) *Timer {
	if clock == nil {
		clock = RealClock{}
	}
	if listener == nil {
		listener = func(Event) {}
	}
	return &Timer{clock: clock, listener: listener}
}

// Start moves Idle to Running with the given number of seconds.
// Starting with zero expires immediately.
func (t *Timer) Start(seconds int) error {
	if t.state != Idle {
		return ErrNotIdle
	}
	if seconds < 0 {
		return ErrNegativeDuration
	}
	t.remaining = seconds
	if seconds == 0 {
		t.state = Expired
		t.listener(Event{Kind: EventExpired})
		return nil
	}
	t.state = Running
	t.ticker = t.clock.NewTicker(time.Second)
	return nil
}

// Stop cancels the schedule from any state and returns to Idle.
func (t *Timer) Stop() {
	t.cancel()
	t.state = Idle
}

// C is the schedule to select on. It is nil unless the timer is running.
func (t *Timer) C() <-chan time.Time {
	if t.state != Running || t.ticker == nil {
		return nil
	}
	return t.ticker.C()
}

// Fire handles one scheduled tick. It is a no-op unless Running.
func (t *Timer) Fire() {
	if t.state != Running {
		return
	}
	t.remaining--
	if t.remaining <= 0 {
		t.remaining = 0
		t.cancel()
		t.state = Expired
		t.listener(Event{Kind: EventTick, Remaining: 0})
		// the tick listener may have stopped us
		if t.state == Expired {
			t.listener(Event{Kind: EventExpired})
		}
		return
	}
	t.listener(Event{Kind: EventTick, Remaining: t.remaining})
}

// State reports the current state.
func (t *Timer) State() State { return t.state }

// Remaining reports the seconds left.
func (t *Timer) Remaining() int { return t.remaining }

func (t *Timer) cancel() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
}
