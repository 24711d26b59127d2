// Package hwsim is an in-memory simulation of the hw package's contracts,
// used by cmd/simulate and by tests that need a full stack without real
// silicon. It plays the same role the teacher's internal/sys package plays
// for io_uring's syscall surface: platform plumbing kept out of the public
// API, swappable for whatever the target actually is.
package hwsim

import "sync/atomic"

// Timer simulates the scheduler's free-running 16-bit hardware counter. Tick
// advances it by the given number of ticks, wrapping at 16 bits exactly as
// real silicon would.
type Timer struct {
	counter atomic.Uint32 // low 16 bits significant
	cfg     atomic.Uint32
	enabled atomic.Bool
}

// Counter reads the current 16-bit counter value.
func (t *Timer) Counter() uint16 { return uint16(t.counter.Load()) }

// Configure stores cfg and leaves the timer enabled, mirroring the
// clear-enable/write-config/set-enable sequence a real timer peripheral
// requires.
func (t *Timer) Configure(cfg uint32) {
	t.enabled.Store(false)
	t.cfg.Store(cfg)
	t.enabled.Store(true)
}

// ConfigWord returns the last word written by Configure, for assertions in
// tests that want to confirm wiring.
func (t *Timer) ConfigWord() uint32 { return t.cfg.Load() }

// Tick advances the simulated counter by n ticks, wrapping at 16 bits.
func (t *Timer) Tick(n uint16) {
	t.counter.Store(uint32(uint16(t.counter.Load()) + n))
}
