package timer

import (
	"testing"

	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/irq"
	"github.com/Ewogijk/runeOS-sub002/kernel/sched"
)

func resetTimer(t *testing.T) {
	t.Helper()

	started = false
	tickCount = 0
	nanosPerTick = 0
	quantumNanos = 0
	quantumRemaining = 0

	origOutb, origInstall, origEOI, origUnmask := outbFn, installIRQHandlerFn, sendEOIFn, unmaskFn
	outbFn = func(port uint16, value uint8) {}
	installIRQHandlerFn = func(irq.IRQNum, uint32, string, irq.IRQHandler) *kernel.Error { return nil }
	sendEOIFn = func(uint8) {}
	unmaskFn = func(uint8) {}
	t.Cleanup(func() {
		outbFn, installIRQHandlerFn, sendEOIFn, unmaskFn = origOutb, origInstall, origEOI, origUnmask
	})

	idle := &sched.Thread{ID: 1, Name: "idle"}
	sched.Init(idle)
}

func TestStartClampsFrequencyToQuartz(t *testing.T) {
	resetTimer(t)

	if err := Start(quartzFrequencyHz*2, 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nanosPerTick != nanosPerSecond/quartzFrequencyHz {
		t.Fatalf("expected period to be derived from the clamped quartz frequency; got %d", nanosPerTick)
	}
}

func TestStartRejectsDoubleStart(t *testing.T) {
	resetTimer(t)

	if err := Start(1000, 1000); err != nil {
		t.Fatalf("unexpected error on first start: %v", err)
	}
	if err := Start(1000, 1000); err != errAlreadyStarted {
		t.Fatalf("expected errAlreadyStarted; got %v", err)
	}
}

func TestTimeSinceStartTracksTicks(t *testing.T) {
	resetTimer(t)
	if err := Start(1000, 1_000_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	onTick(nil, nil)
	onTick(nil, nil)

	if got, want := TimeSinceStart(), 2*nanosPerTick; got != want {
		t.Fatalf("expected %d ns elapsed; got %d", want, got)
	}
}

func TestSleepUntilBeforeStartFails(t *testing.T) {
	resetTimer(t)
	if err := SleepUntil(1); err != errNotStarted {
		t.Fatalf("expected errNotStarted; got %v", err)
	}
}

func TestSleepUntilPastWakeTimeReturnsImmediately(t *testing.T) {
	resetTimer(t)
	if err := Start(1000, 1_000_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	running := sched.RunningThread()
	if err := SleepUntil(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sched.RunningThread() != running {
		t.Fatal("expected SleepUntil with a past wake time to not switch threads")
	}
}

func TestOnTickWakesSleepingThreadsAfterWakeTimeElapses(t *testing.T) {
	resetTimer(t)
	if err := Start(1000, 1_000_000_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sleeper := &sched.Thread{ID: 2}
	sched.GetDeltaQueue().Enqueue(sleeper, nanosPerTick)
	sleeper.State = sched.Sleeping

	onTick(nil, nil)

	if sleeper.State != sched.Ready && sleeper.State != sched.Running {
		t.Fatalf("expected the sleeper to have woken; state is %v", sleeper.State)
	}
}

func TestOnTickPreemptsAfterQuantumExhausted(t *testing.T) {
	resetTimer(t)
	if err := Start(1000, nanosPerSecond/1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waiting := &sched.Thread{ID: 2, Priority: sched.Normal}
	sched.Schedule(waiting)

	onTick(nil, nil)

	if sched.RunningThread() != waiting {
		t.Fatalf("expected the quantum to expire on the first tick and switch to the ready thread; running is %v", sched.RunningThread())
	}
}

func TestRemoveSleepingThread(t *testing.T) {
	resetTimer(t)
	if err := Start(1000, 1_000_000_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sleeper := &sched.Thread{ID: 3}
	sched.GetDeltaQueue().Enqueue(sleeper, 1_000_000)

	if !RemoveSleepingThread(3) {
		t.Fatal("expected RemoveSleepingThread to find the sleeper")
	}
	if RemoveSleepingThread(3) {
		t.Fatal("expected a second removal to fail")
	}
}
