package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledctl/corefw/scheduler"
)

type fakeHWTimer struct {
	counter uint16
}

func (f *fakeHWTimer) Counter() uint16      { return f.counter }
func (f *fakeHWTimer) Configure(cfg uint32) {}

// newHarness wires a Facility to a real Scheduler backed by a fake hardware
// counter, and returns a tick function that advances the hardware counter
// by one TickInterval-worth of ticks and runs one scheduler pass - enough
// to fire the timer facility's own scheduler event exactly once.
func newHarness(t *testing.T) (*Facility, *scheduler.Scheduler, func(passes int)) {
	t.Helper()
	hw := &fakeHWTimer{}
	sched, err := scheduler.New(scheduler.Config{
		EventPoolSize:   2,
		TaskPoolSize:    1,
		PrescalerDiv:    1,
		PeripheralBusHz: 1000000, // 1 tick == 1 microsecond
	}, hw)
	require.NoError(t, err)
	require.NoError(t, sched.Init())

	f, err := New(Config{PoolSize: 4})
	require.NoError(t, err)
	require.NoError(t, f.Init(sched))

	tick := func(passes int) {
		for i := 0; i < passes; i++ {
			hw.counter += TickInterval
			sched.Execute()
		}
	}
	return f, sched, tick
}

func TestCreateRejectsWhenPoolExhausted(t *testing.T) {
	f, err := New(Config{PoolSize: 1})
	require.NoError(t, err)

	_, err = f.Create(Countdown, nil)
	require.NoError(t, err)

	_, err = f.Create(Countdown, nil)
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestOneShotFiresOnceAndPassesItself(t *testing.T) {
	f, _, tick := newHarness(t)

	var firedWith *Timer
	fireCount := 0
	ref, err := f.Create(OneShot, func(self *Timer) {
		fireCount++
		firedWith = self
	})
	require.NoError(t, err)
	require.NoError(t, f.Start(ref, 2, Milliseconds))

	// 2ms at TickInterval=500us is 4 ticks of the timer's own countdown.
	ticksNeeded := 4
	for i := 0; i < ticksNeeded-1; i++ {
		tick(1)
	}
	assert.Equal(t, 0, fireCount, "must not fire before its interval elapses")

	tick(1)
	assert.Equal(t, 1, fireCount)
	require.NotNil(t, firedWith)
	assert.Same(t, f.find(ref.id), firedWith, "handle must receive the timer that fired")

	// Further passes must not fire again until restarted.
	tick(10)
	assert.Equal(t, 1, fireCount)
}

func TestRecurringFiresRepeatedly(t *testing.T) {
	f, _, tick := newHarness(t)

	fireCount := 0
	ref, err := f.Create(Recurring, func(self *Timer) { fireCount++ })
	require.NoError(t, err)
	require.NoError(t, f.Start(ref, 1, Milliseconds)) // 2 facility ticks

	tick(2)
	assert.Equal(t, 1, fireCount)
	tick(2)
	assert.Equal(t, 2, fireCount)
	tick(2)
	assert.Equal(t, 3, fireCount)
}

func TestCountdownNeverInvokesHandleAndLatchesOnce(t *testing.T) {
	f, _, tick := newHarness(t)

	ref, err := f.Create(Countdown, nil)
	require.NoError(t, err)
	require.NoError(t, f.Start(ref, 1, Milliseconds))

	assert.False(t, f.TimedOut(ref))
	tick(2)
	assert.True(t, f.TimedOut(ref))

	// Stays latched across further passes until Restart.
	tick(5)
	assert.True(t, f.TimedOut(ref))

	require.NoError(t, f.Restart(ref))
	assert.False(t, f.TimedOut(ref))
}

func TestStopSuspendsAndRestartResumesSameInterval(t *testing.T) {
	f, _, tick := newHarness(t)

	fireCount := 0
	ref, err := f.Create(OneShot, func(self *Timer) { fireCount++ })
	require.NoError(t, err)
	require.NoError(t, f.Start(ref, 1, Milliseconds)) // 2 ticks

	require.NoError(t, f.Stop(ref))
	tick(10)
	assert.Equal(t, 0, fireCount, "stopped timer must not fire")

	require.NoError(t, f.Restart(ref))
	tick(2)
	assert.Equal(t, 1, fireCount)
}

func TestOnlyOneHandleRunsPerPass(t *testing.T) {
	f, _, tick := newHarness(t)

	var order []string
	refA, err := f.Create(OneShot, func(self *Timer) { order = append(order, "A") })
	require.NoError(t, err)
	refB, err := f.Create(OneShot, func(self *Timer) { order = append(order, "B") })
	require.NoError(t, err)

	require.NoError(t, f.Start(refA, 1, Milliseconds))
	require.NoError(t, f.Start(refB, 1, Milliseconds))

	tick(2) // both are due on the same pass
	assert.Len(t, order, 1, "only one timer handle may run per facility tick")

	tick(1)
	assert.Len(t, order, 2, "the deferred timer must still fire on a later pass")
}

func TestSecondsClampAvoidsOverflow(t *testing.T) {
	ticks := calcTicks(1_000_000, Seconds) // far above the 4096s clamp
	clamped := calcTicks(secondsClamp, Seconds)
	assert.Equal(t, clamped, ticks)
}

func TestInvalidateFreesSlot(t *testing.T) {
	f, err := New(Config{PoolSize: 1})
	require.NoError(t, err)

	ref, err := f.Create(Countdown, nil)
	require.NoError(t, err)
	require.NoError(t, f.Invalidate(ref))
	assert.False(t, f.IsValid(ref))

	_, err = f.Create(Countdown, nil)
	assert.NoError(t, err)
}
