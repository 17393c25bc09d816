// Package timer drives the legacy 8253/8254 programmable interval timer
// (PIT), the system's only clock source until an HPET or APIC timer backend
// is added. It owns the monotonic tick count, the scheduler's delta queue of
// sleeping threads, and the quantum that drives preemption.
package timer

import (
	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/cpu"
	"github.com/Ewogijk/runeOS-sub002/kernel/irq"
	"github.com/Ewogijk/runeOS-sub002/kernel/irq/pic"
	"github.com/Ewogijk/runeOS-sub002/kernel/kfmt/early"
	"github.com/Ewogijk/runeOS-sub002/kernel/sched"
)

const (
	pitChannel0 = 0x40
	pitCommand  = 0x43

	// squareWaveGenerator (mode 3) is the PIT operating mode: the counter
	// reloads and repeats automatically without further CPU intervention.
	squareWaveGenerator = 0x36

	// quartzFrequencyHz is the PIT's fixed input clock.
	quartzFrequencyHz = 1193182

	// deviceID identifies this timer's handler to the IRQ dispatch table.
	deviceID = 0

	nanosPerSecond = 1_000_000_000
)

var (
	errAlreadyStarted = &kernel.Error{Module: "timer", Message: "timer already started"}
	errNotStarted     = &kernel.Error{Module: "timer", Message: "timer has not been started"}

	outbFn              = cpu.Outb
	installIRQHandlerFn = irq.InstallIRQHandler
	sendEOIFn           = pic.SendEOI
	unmaskFn            = pic.Unmask

	started bool

	// tickCount is the number of PIT interrupts serviced since start.
	tickCount uint64

	// nanosPerTick is the (rounded) duration between two consecutive ticks,
	// derived from the configured frequency.
	nanosPerTick uint64

	// quantumNanos is the time slice granted to a thread before it is
	// preempted; quantumRemaining counts it down, one tick at a time.
	quantumNanos     uint64
	quantumRemaining uint64
)

// Start programs the PIT to fire at frequencyHz (capped at the quartz
// frequency) and installs its IRQ0 handler, which drains the scheduler's
// delta queue on every tick and preempts the running thread once its
// quantum (quantumNanos) is exhausted.
func Start(frequencyHz uint64, quantumNanos_ uint64) *kernel.Error {
	if started {
		return errAlreadyStarted
	}

	freq := frequencyHz
	if freq > quartzFrequencyHz {
		early.Printf("[timer] requested frequency %dHz exceeds quartz frequency %dHz; clamping\n", freq, quartzFrequencyHz)
		freq = quartzFrequencyHz
	}

	divider := quartzFrequencyHz / freq
	nanosPerTick = nanosPerSecond / freq
	quantumNanos = quantumNanos_
	quantumRemaining = quantumNanos
	tickCount = 0

	early.Printf("[timer] PIT configured: target=%dHz effective-period=%dns quantum=%dns\n", freq, nanosPerTick, quantumNanos)

	outbFn(pitCommand, squareWaveGenerator)
	outbFn(pitChannel0, uint8(divider&0xFF))
	outbFn(pitChannel0, uint8(divider>>8))

	if err := installIRQHandlerFn(irq.TimerIRQ, deviceID, "PIT", onTick); err != nil {
		return err
	}
	unmaskFn(uint8(irq.TimerIRQ))

	started = true
	return nil
}

// TimeSinceStart returns the number of nanoseconds elapsed since Start,
// measured in whole ticks.
func TimeSinceStart() uint64 {
	return tickCount * nanosPerTick
}

// Started reports whether Start has already programmed the PIT and
// installed its IRQ handler. Callers that can run either before or after
// boot has a clock (e.g. kernel/ahci's command poll) use this to decide
// between busy-waiting and sleeping via SleepUntil.
func Started() bool {
	return started
}

// SleepUntil blocks the calling thread until TimeSinceStart reaches
// wakeTimeNanos. A wake time at or before the current time returns
// immediately without yielding the CPU.
func SleepUntil(wakeTimeNanos uint64) *kernel.Error {
	if !started {
		return errNotStarted
	}

	sched.Lock()
	defer sched.Unlock()

	now := TimeSinceStart()
	if wakeTimeNanos <= now {
		return nil
	}

	running := sched.RunningThread()
	sched.GetDeltaQueue().Enqueue(running, wakeTimeNanos-now)
	running.State = sched.Sleeping
	sched.ExecuteNextThread()

	// The thread that just woke gets a fresh quantum rather than inheriting
	// whatever was left when it went to sleep.
	quantumRemaining = quantumNanos
	return nil
}

// RemoveSleepingThread cancels a pending sleep for the given thread ID,
// e.g. because the thread is being terminated. Reports whether a sleeping
// entry was found.
func RemoveSleepingThread(id uint16) bool {
	return sched.GetDeltaQueue().RemoveWaitingThread(id)
}

// onTick is the IRQ0 handler: it advances the tick count, wakes every
// thread whose delta-queue entry has expired, and preempts the running
// thread once its quantum has been exhausted.
func onTick(frame *irq.Frame, regs *irq.Regs) {
	tickCount++

	sched.Lock()

	sched.GetDeltaQueue().UpdateWakeTime(nanosPerTick)
	for woken := sched.GetDeltaQueue().Dequeue(); woken != nil; woken = sched.GetDeltaQueue().Dequeue() {
		sched.Schedule(woken)
		if sched.GetReadyQueue().Peek() == woken {
			sched.ExecuteNextThread()
		}
	}

	eoiSent := false
	if sched.PreemptionAllowed() {
		if quantumRemaining <= nanosPerTick {
			sendEOIFn(uint8(irq.TimerIRQ))
			eoiSent = true
			quantumRemaining = quantumNanos
			sched.ExecuteNextThread()
		} else {
			quantumRemaining -= nanosPerTick
		}
	}

	if !eoiSent {
		sendEOIFn(uint8(irq.TimerIRQ))
	}
	sched.Unlock()
}
