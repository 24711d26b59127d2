// Package timer implements a software timer facility layered on top of one
// scheduler event. Every timer in the pool is ticked once per
// TickInterval, independent of how long each individual timer's own
// countdown is.
package timer

import (
	"github.com/pkg/errors"

	"github.com/ledctl/corefw/scheduler"
)

// Type selects a timer's behavior on timeout.
type Type uint8

const (
	// Recurring fires its handle every interval, indefinitely.
	Recurring Type = iota
	// OneShot fires its handle once, then suspends itself.
	OneShot
	// Countdown never invokes a handle; poll TimedOut instead.
	Countdown
)

// Unit is the time unit an interval is expressed in.
type Unit uint8

const (
	Microseconds Unit = iota
	Milliseconds
	Seconds
)

// TickInterval is the period, in microseconds, at which the facility's
// scheduler event runs and every timer in the pool is serviced.
const TickInterval = 500

// DefaultPoolSize and MaxPoolSize bound the timer pool, mirroring the
// firmware's TIMER_POOL_SIZE / TIMER_POOL_MAX configuration knobs.
const (
	DefaultPoolSize = 25
	MaxPoolSize     = 100
)

// secondsClamp is the maximum seconds value accepted by Unit=Seconds,
// matching the firmware's 12-bit clamp to avoid 32-bit tick overflow.
const secondsClamp = 4096

// Handle is invoked with the timer that fired. Passing the actual firing
// timer (rather than whatever slot a scan loop last visited) fixes the bug
// noted in spec REDESIGN FLAGS, where the original implementation handed
// its callback the wrong pointer.
type Handle func(*Timer)

// Timer is one slot of the facility's pool.
type Timer struct {
	interval   uint32
	ticks      uint32
	handle     Handle
	typ        Type
	identifier int
	assigned   bool
	suspended  bool
	timedOut   bool
}

// Ref is a stable locator for a created Timer.
type Ref struct{ id int }

// ErrPoolExhausted is returned by Create when the pool is full.
var ErrPoolExhausted = errors.New("timer: pool exhausted")

// ErrInvalid is returned by lifecycle calls given a Ref that doesn't name a
// live timer.
var ErrInvalid = errors.New("timer: invalid reference")

// Config configures the timer pool size.
type Config struct {
	PoolSize int // default DefaultPoolSize when zero
}

// Facility owns the timer pool and the single scheduler event that drives
// it.
type Facility struct {
	pool []Timer
}

// New constructs a Facility. Call Init to register it with a scheduler.
func New(cfg Config) (*Facility, error) {
	size := cfg.PoolSize
	if size == 0 {
		size = DefaultPoolSize
	}
	if size < 1 || size > MaxPoolSize {
		return nil, errors.Errorf("timer: pool size %d out of range", size)
	}
	f := &Facility{pool: make([]Timer, size)}
	for i := range f.pool {
		f.pool[i].identifier = i
	}
	return f, nil
}

// Init invalidates the timer pool and registers one recurring NORMAL
// priority scheduler event at TickInterval microseconds whose handle is the
// facility's execute pass.
func (f *Facility) Init(sched *scheduler.Scheduler) error {
	for i := range f.pool {
		f.pool[i].assigned = false
		f.pool[i].identifier = i
	}
	_, err := sched.CreateEvent(f.execute, TickInterval, scheduler.Microseconds, scheduler.PriorityNormal)
	if err != nil {
		return errors.Wrap(err, "timer: registering scheduler event")
	}
	return nil
}

// calcTicks converts (time, unit) into internal ticks of TickInterval
// microseconds each, clamping the seconds path at secondsClamp to avoid
// 32-bit overflow, exactly as the firmware does.
func calcTicks(time uint32, unit Unit) uint32 {
	switch unit {
	case Milliseconds:
		return (time * 1000) / TickInterval
	case Seconds:
		if time > secondsClamp {
			time = secondsClamp
		}
		return (time * 1000000) / TickInterval
	default: // Microseconds
		return time / TickInterval
	}
}

// Create allocates a suspended timer from the pool. handle may be nil only
// for Countdown timers, which never invoke one.
func (f *Facility) Create(typ Type, handle Handle) (Ref, error) {
	idx := -1
	for i := range f.pool {
		if !f.pool[i].assigned {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Ref{}, ErrPoolExhausted
	}
	t := &f.pool[idx]
	t.interval = 0
	t.ticks = 0
	t.handle = handle
	t.typ = typ
	t.suspended = true
	t.timedOut = false
	t.assigned = true
	return Ref{id: t.identifier}, nil
}

func (f *Facility) find(id int) *Timer {
	for i := range f.pool {
		if f.pool[i].identifier == id && f.pool[i].assigned {
			return &f.pool[i]
		}
	}
	return nil
}

// Invalidate returns a timer to the pool.
func (f *Facility) Invalidate(ref Ref) error {
	t := f.find(ref.id)
	if t == nil {
		return ErrInvalid
	}
	t.assigned = false
	return nil
}

// SetTime loads interval without starting the timer.
func (f *Facility) SetTime(ref Ref, time uint32, unit Unit) error {
	t := f.find(ref.id)
	if t == nil {
		return ErrInvalid
	}
	t.interval = calcTicks(time, unit)
	t.ticks = t.interval
	return nil
}

// Start loads interval and unsuspends the timer, clearing any stale
// timed-out flag.
func (f *Facility) Start(ref Ref, time uint32, unit Unit) error {
	t := f.find(ref.id)
	if t == nil {
		return ErrInvalid
	}
	t.interval = calcTicks(time, unit)
	t.ticks = t.interval
	t.timedOut = false
	t.suspended = false
	return nil
}

// Stop suspends the timer; its interval is kept, and a later Restart
// reloads the countdown from that interval.
func (f *Facility) Stop(ref Ref) error {
	t := f.find(ref.id)
	if t == nil {
		return ErrInvalid
	}
	t.suspended = true
	return nil
}

// Restart reloads ticks from the last-set interval, clears timedOut, and
// unsuspends the timer.
func (f *Facility) Restart(ref Ref) error {
	t := f.find(ref.id)
	if t == nil {
		return ErrInvalid
	}
	t.ticks = t.interval
	t.timedOut = false
	t.suspended = false
	return nil
}

// TimedOut reports the sticky timeout flag. An invalid or unassigned Ref
// reports false.
func (f *Facility) TimedOut(ref Ref) bool {
	t := f.find(ref.id)
	if t == nil {
		return false
	}
	return t.timedOut
}

// IsValid reports whether ref still names a live timer.
func (f *Facility) IsValid(ref Ref) bool {
	return f.find(ref.id) != nil
}

// execute is the scheduler handle registered at Init. It runs every
// TickInterval microseconds and services the whole pool in one pass.
func (f *Facility) execute() {
	var selected *Timer

	for i := range f.pool {
		t := &f.pool[i]
		if !t.assigned || t.suspended {
			continue
		}

		if t.ticks > 0 {
			t.ticks--
			t.timedOut = t.ticks == 0
		} else {
			t.timedOut = true
		}

		if !t.timedOut {
			continue
		}

		switch t.typ {
		case Recurring:
			if selected == nil {
				t.ticks = t.interval
				t.timedOut = false
				selected = t
			}
		case OneShot:
			if selected == nil {
				t.suspended = true
				selected = t
			}
		case Countdown:
			t.suspended = true
		}
	}

	if selected != nil && selected.handle != nil {
		selected.handle(selected)
	}
}
