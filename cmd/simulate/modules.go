package main

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/ledctl/corefw/async"
	"github.com/ledctl/corefw/framed"
	"github.com/ledctl/corefw/hw"
	"github.com/ledctl/corefw/internal/hwsim"
	"github.com/ledctl/corefw/scheduler"
	"github.com/ledctl/corefw/stream"
	"github.com/ledctl/corefw/timer"
)

// runtime bundles every module the simulator brings up, wired together
// exactly as a real firmware image would at boot.
type runtime struct {
	sched   *scheduler.Scheduler
	timers  *timer.Facility
	hwTimer *hwsim.Timer
	irq     *hwsim.InterruptController
	console *async.Module
	link    *framed.Module
	consoleStream *stream.PrintStream
}

// bringUp constructs every module and runs the boot sequence. Each step is a
// plain func() error in an ordered slice, walked with an explicit index
// increment: a step only advances the cursor past itself on success, so a
// failing step is the one reported and nothing after it silently runs.
// (The original firmware's equivalent loop never advanced its cursor after
// a successful step, so it could not get past the first module - see
// spec REDESIGN FLAGS.)
func bringUp() (*runtime, error) {
	rt := &runtime{
		hwTimer: &hwsim.Timer{},
		irq:     hwsim.NewInterruptController(),
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"scheduler", rt.initScheduler},
		{"timer facility", rt.initTimerFacility},
		{"console transport", rt.initConsole},
		{"sync link", rt.initLink},
	}

	i := 0
	for i < len(steps) {
		step := steps[i]
		if err := step.fn(); err != nil {
			return nil, errors.Wrapf(err, "simulate: bring-up step %q (index %d)", step.name, i)
		}
		log.Debug().Str("step", step.name).Int("index", i).Msg("simulate: bring-up step complete")
		i++
	}
	return rt, nil
}

func (rt *runtime) initScheduler() error {
	sched, err := scheduler.New(scheduler.Config{
		EventPoolSize:   8,
		TaskPoolSize:    4,
		PrescalerDiv:    1,
		PeripheralBusHz: 1_000_000,
	}, rt.hwTimer)
	if err != nil {
		return err
	}
	if err := sched.Init(); err != nil {
		return err
	}
	rt.sched = sched
	return nil
}

func (rt *runtime) initTimerFacility() error {
	f, err := timer.New(timer.Config{PoolSize: timer.DefaultPoolSize})
	if err != nil {
		return err
	}
	if err := f.Init(rt.sched); err != nil {
		return err
	}
	rt.timers = f
	return nil
}

func (rt *runtime) initConsole() error {
	port := &hwsim.AsyncPort{Loopback: true}
	wiring := hw.ChannelWiring{Fault: 1, RxDone: 2, TxDone: 3, Priority: hw.Priority4}
	m := async.NewModule(port, rt.irq, wiring)
	if err := m.Configure(async.Config{
		Baudrate:     115200,
		PeripheralHz: 16_000_000,
		HighSpeed:    true,
		TxBufferSize: 64,
		RxBufferSize: 64,
	}); err != nil {
		return err
	}
	m.Enable()
	rt.console = m
	rt.consoleStream = stream.New("console", m)
	rt.consoleStream.Open()
	return nil
}

func (rt *runtime) initLink() error {
	port := &hwsim.FramedPort{Loopback: true}
	wiring := hw.ChannelWiring{Fault: 4, RxDone: 5, TxDone: 6, Priority: hw.Priority3}
	m := framed.NewModule(port, rt.irq, wiring)
	if err := m.Configure(framed.Config{
		Baudrate:     1_000_000,
		PeripheralHz: 16_000_000,
		Width:        framed.Width16,
		Signals:      framed.FullDuplex,
		TxBufferSize: 32,
		RxBufferSize: 32,
	}); err != nil {
		return err
	}
	m.Enable()
	rt.link = m
	return nil
}

// tick advances the simulated hardware counter by one scheduler tick
// interval and runs one dispatch pass.
func (rt *runtime) tick() {
	rt.hwTimer.Tick(1)
	rt.sched.Execute()
}

// pumpConsole drains and re-queues the console's loopback stream so
// interactive mode has something to observe.
func (rt *runtime) pumpConsole() {
	buf := make([]byte, 64)
	n, _ := rt.consoleStream.Gets(buf)
	if n > 0 {
		_ = stream.BlockingPuts(rt.consoleStream, buf[:n])
	}
}
