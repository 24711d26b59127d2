// Package scheduler implements a single-threaded, cooperative dispatch loop
// driven by a 16-bit free-running hardware timer. It services a
// priority-ordered pool of periodic events and a rotating round-robin task
// slot. Never call Execute from interrupt context - it mutates pool state
// that create/remove also touch, and neither is interrupt-safe.
package scheduler

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Priority ranks an Event against its peers. Lower values run first when
// multiple events fire in the same pass.
type Priority uint8

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

// Unit is the time unit an interval is expressed in when creating an Event.
type Unit uint8

const (
	Microseconds Unit = iota
	Milliseconds
	Seconds
)

// Handle is a parameterless callback run by the scheduler.
type Handle func()

// Defaults and limits for the event and round-robin task pools, mirroring
// the firmware's EVENT_POOL_SIZE / EVENT_MAX_POOL_SIZE configuration knobs.
const (
	DefaultEventPoolSize = 5
	MaxEventPoolSize     = 50
	DefaultTaskPoolSize  = 5
	MaxTaskPoolSize      = 50
)

// ErrInvalidHandle is returned by CreateEvent/CreateRobinTask when handle is nil.
var ErrInvalidHandle = errors.New("scheduler: handle must not be nil")

// ErrPoolExhausted is returned when a pool has no free slot left.
var ErrPoolExhausted = errors.New("scheduler: pool exhausted")

// ErrPoolSize is returned by New when a requested pool size is out of range.
var ErrPoolSize = errors.New("scheduler: pool size out of range")

// HardwareTimer is the free-running counter the scheduler reads each pass,
// and the control register it programs at Init. It is the only collaborator
// the scheduler requires from the platform adapter (spec §6).
type HardwareTimer interface {
	// Counter reads the current value of the 16-bit free-running counter.
	Counter() uint16
	// Configure writes cfg to the timer's control register. Implementations
	// must clear the enable bit, write cfg, then set the enable bit, in that
	// order, matching the documented scheduler programming sequence.
	Configure(cfg uint32)
}

// event is one slot of the event pool.
type event struct {
	handle     Handle
	interval   uint32
	ticks      uint32
	identifier int
	priority   Priority
	assigned   bool
}

// robinTask is one slot of the round-robin task pool.
type robinTask struct {
	handle     Handle
	identifier int
	assigned   bool
}

// EventRef is a stable locator for a created Event. It survives any
// subsequent sort of the event pool (CreateEvent and RemoveEvent both sort).
type EventRef struct{ id int }

// TaskRef is a stable locator for a created round-robin task.
type TaskRef struct{ id int }

// Config configures pool sizes and the clock parameters used to convert
// requested intervals into hardware ticks.
type Config struct {
	EventPoolSize int // default DefaultEventPoolSize when zero
	TaskPoolSize  int // default DefaultTaskPoolSize when zero
	// PrescalerDiv and PeripheralBusHz determine the system tick period:
	// tickMicros = 1e6 * PrescalerDiv / PeripheralBusHz.
	PrescalerDiv    uint32
	PeripheralBusHz uint32
	// TimerConfigWord is written to HardwareTimer.Configure at Init.
	TimerConfigWord uint32
}

// Scheduler owns the event pool, the round-robin task pool, and the
// dispatch state (last tick reading, round-robin cursor).
type Scheduler struct {
	mu sync.Mutex

	events []event
	tasks  []robinTask

	cursor   int
	lastTick uint16
	inited   bool

	hw        HardwareTimer
	tickMicro float64 // system tick period, in microseconds
	cfgWord   uint32  // control-register word written to hw at Init
}

// New constructs a Scheduler. It does not touch the hardware timer; call
// Init for that.
func New(cfg Config, hw HardwareTimer) (*Scheduler, error) {
	eventSize := cfg.EventPoolSize
	if eventSize == 0 {
		eventSize = DefaultEventPoolSize
	}
	taskSize := cfg.TaskPoolSize
	if taskSize == 0 {
		taskSize = DefaultTaskPoolSize
	}
	if eventSize < 1 || eventSize > MaxEventPoolSize {
		return nil, errors.Wrapf(ErrPoolSize, "event pool size %d", eventSize)
	}
	if taskSize < 1 || taskSize > MaxTaskPoolSize {
		return nil, errors.Wrapf(ErrPoolSize, "task pool size %d", taskSize)
	}
	if cfg.PeripheralBusHz == 0 {
		return nil, errors.New("scheduler: PeripheralBusHz must be non-zero")
	}
	prescaler := cfg.PrescalerDiv
	if prescaler == 0 {
		prescaler = 1
	}

	s := &Scheduler{
		events:    make([]event, eventSize),
		tasks:     make([]robinTask, taskSize),
		hw:        hw,
		tickMicro: (1000000.0 * float64(prescaler)) / float64(cfg.PeripheralBusHz),
	}
	for i := range s.events {
		s.events[i].identifier = i
	}
	for i := range s.tasks {
		s.tasks[i].identifier = i
	}
	s.cfgWord = cfg.TimerConfigWord
	return s, nil
}

// Init invalidates both pools, resets bookkeeping, and programs the
// hardware timer (clear enable, write config, set enable - the sequencing
// is the HardwareTimer implementation's responsibility). Must be called
// before any Create*, and before the first Execute.
func (s *Scheduler) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		s.events[i].assigned = false
		s.events[i].identifier = i
	}
	for i := range s.tasks {
		s.tasks[i].assigned = false
		s.tasks[i].identifier = i
	}
	s.cursor = 0
	s.lastTick = 0

	if s.hw == nil {
		return errors.New("scheduler: no hardware timer configured")
	}
	s.hw.Configure(s.cfgWord)
	s.lastTick = s.hw.Counter()
	s.inited = true
	return nil
}

// calcTicks converts (value, unit) into hardware ticks, widening to 64 bits
// and saturating at uint32's range instead of silently wrapping - spec's
// REDESIGN FLAGS call out the original's seconds-unit overflow as a bug to
// fix uniformly across scheduler and timer.
func (s *Scheduler) calcTicks(value uint16, unit Unit) uint32 {
	if s.tickMicro <= 0 {
		return 0
	}
	var micros uint64
	switch unit {
	case Milliseconds:
		micros = uint64(value) * 1000
	case Seconds:
		micros = uint64(value) * 1000000
	default: // Microseconds
		micros = uint64(value)
	}
	ticks := uint64(float64(micros) / s.tickMicro)
	if ticks > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(ticks)
}

// CreateEvent allocates an event from the pool. Fails when handle is nil or
// the pool is full. interval is converted to hardware ticks via the
// configured system tick period.
func (s *Scheduler) CreateEvent(handle Handle, interval uint16, unit Unit, priority Priority) (EventRef, error) {
	if handle == nil {
		return EventRef{}, ErrInvalidHandle
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.events {
		if !s.events[i].assigned {
			idx = i
			break
		}
	}
	if idx < 0 {
		return EventRef{}, ErrPoolExhausted
	}

	s.events[idx].handle = handle
	s.events[idx].interval = s.calcTicks(interval, unit)
	s.events[idx].ticks = 0
	s.events[idx].priority = priority
	s.events[idx].assigned = true
	id := s.events[idx].identifier

	s.sortEvents()
	return EventRef{id: id}, nil
}

// RemoveEvent marks the event unassigned and re-sorts the pool so the
// assigned prefix stays contiguous. Removing an already-removed event is a
// no-op. The zero EventRef is not a separate null value: it names
// identifier 0, so it removes that event while it is assigned.
func (s *Scheduler) RemoveEvent(ref EventRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev := s.findEvent(ref.id); ev != nil {
		ev.assigned = false
		s.sortEvents()
	}
}

// CreateRobinTask allocates a round-robin task from the pool.
func (s *Scheduler) CreateRobinTask(handle Handle) (TaskRef, error) {
	if handle == nil {
		return TaskRef{}, ErrInvalidHandle
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.tasks {
		if !s.tasks[i].assigned {
			idx = i
			break
		}
	}
	if idx < 0 {
		return TaskRef{}, ErrPoolExhausted
	}

	s.tasks[idx].handle = handle
	s.tasks[idx].assigned = true
	id := s.tasks[idx].identifier

	s.sortTasks()
	return TaskRef{id: id}, nil
}

// RemoveRobinTask marks the task unassigned and re-partitions the pool so
// the assigned prefix stays contiguous.
func (s *Scheduler) RemoveRobinTask(ref TaskRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.findTask(ref.id); t != nil {
		t.assigned = false
		s.sortTasks()
	}
}

// findEvent relocates a slot by its stable identifier after a sort may have
// moved it. Linear scan is fine: pools are small (tens of entries at most).
func (s *Scheduler) findEvent(id int) *event {
	for i := range s.events {
		if s.events[i].identifier == id {
			return &s.events[i]
		}
	}
	return nil
}

func (s *Scheduler) findTask(id int) *robinTask {
	for i := range s.tasks {
		if s.tasks[i].identifier == id {
			return &s.tasks[i]
		}
	}
	return nil
}

// sortEvents keeps the assigned prefix contiguous and sorted by ascending
// priority. Two stable passes: first partition assigned-before-unassigned,
// then sort the assigned prefix by priority. Both passes are stable, so
// insertion order is preserved as a tie-breaker (callers must not rely on
// that, per spec).
func (s *Scheduler) sortEvents() {
	sort.SliceStable(s.events, func(i, j int) bool {
		return s.events[i].assigned && !s.events[j].assigned
	})
	n := 0
	for _, e := range s.events {
		if e.assigned {
			n++
		}
	}
	prefix := s.events[:n]
	sort.SliceStable(prefix, func(i, j int) bool {
		return prefix[i].priority < prefix[j].priority
	})
}

// sortTasks partitions the assigned prefix to the front; no secondary sort,
// order within the prefix is arbitrary but stable across calls.
func (s *Scheduler) sortTasks() {
	sort.SliceStable(s.tasks, func(i, j int) bool {
		return s.tasks[i].assigned && !s.tasks[j].assigned
	})
}

// Execute runs one pass of the dispatch loop: it accounts elapsed hardware
// ticks against every assigned event, fires at most one event (the
// highest-priority one that is due), and falls back to the round-robin task
// at the current cursor when no event fired. Must only be called from the
// foreground main loop, never from interrupt context, and only after Init.
func (s *Scheduler) Execute() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inited {
		// Programmer error: Execute before Init. No panic in release builds;
		// callers running with race/assert tooling will see this via tests.
		return
	}

	current := s.hw.Counter()
	delta := uint32(current - s.lastTick) // unsigned 16-bit wraparound subtraction
	s.lastTick = current

	var handle Handle
	for i := range s.events {
		ev := &s.events[i]
		if !ev.assigned {
			break // assigned prefix is contiguous
		}
		if ev.ticks <= delta {
			if handle == nil {
				ev.ticks = ev.interval
				handle = ev.handle
			} else {
				ev.ticks = 0
			}
		} else {
			ev.ticks -= delta
		}
	}

	if handle == nil && len(s.tasks) > 0 {
		if s.cursor >= len(s.tasks) {
			s.cursor = 0
		}
		t := &s.tasks[s.cursor]
		if t.assigned {
			handle = t.handle
			s.cursor++
		} else {
			s.cursor = 0
		}
	}

	if handle != nil {
		handle()
	}
}
