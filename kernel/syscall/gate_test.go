package syscall

import (
	"testing"

	"github.com/Ewogijk/runeOS-sub002/kernel/app"
	"github.com/Ewogijk/runeOS-sub002/kernel/sched"
	"github.com/Ewogijk/runeOS-sub002/kernel/vfs"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	return NewContext(app.NewTable(&vfs.MountTable{}, nil), &vfs.MountTable{})
}

func TestDispatchRejectsUnknownID(t *testing.T) {
	ctx := newTestContext(t)
	if got := Dispatch(ctx, 9999, 0, 0, 0, 0, 0, 0); got != int64(StatusBadArg) {
		t.Fatalf("expected StatusBadArg for an unknown ID; got %d", got)
	}
}

func TestMemoryGetPageSizeIgnoresArgs(t *testing.T) {
	ctx := newTestContext(t)
	if got := Dispatch(ctx, MemoryGetPageSize, 1, 2, 3, 4, 5, 6); got != 4096 {
		t.Fatalf("expected the page size (4096); got %d", got)
	}
}

func TestThreadingMutexLifecycle(t *testing.T) {
	sched.Init(&sched.Thread{ID: 1})
	ctx := newTestContext(t)

	id := threadingMutexCreate(ctx, 0, 0, 0, 0, 0, 0)
	if id <= 0 {
		t.Fatalf("expected a positive mutex ID; got %d", id)
	}

	if got := threadingMutexLock(ctx, uint64(id), 0, 0, 0, 0, 0); got != int64(StatusOkay) {
		t.Fatalf("expected StatusOkay locking a fresh mutex; got %d", got)
	}
	if got := threadingMutexRelease(ctx, uint64(id), 0, 0, 0, 0, 0); got != int64(StatusFault) {
		t.Fatalf("expected StatusFault releasing a held mutex; got %d", got)
	}
	if got := threadingMutexUnlock(ctx, uint64(id), 0, 0, 0, 0, 0); got != int64(StatusOkay) {
		t.Fatalf("expected StatusOkay unlocking; got %d", got)
	}
	if got := threadingMutexRelease(ctx, uint64(id), 0, 0, 0, 0, 0); got != int64(StatusOkay) {
		t.Fatalf("expected StatusOkay releasing an unheld mutex; got %d", got)
	}
	if got := threadingMutexLock(ctx, uint64(id), 0, 0, 0, 0, 0); got != int64(StatusUnknownID) {
		t.Fatalf("expected StatusUnknownID after release; got %d", got)
	}
}

func TestThreadingMutexLockRejectsZeroID(t *testing.T) {
	ctx := newTestContext(t)
	if got := threadingMutexLock(ctx, 0, 0, 0, 0, 0, 0); got != int64(StatusBadArg) {
		t.Fatalf("expected StatusBadArg for ID zero; got %d", got)
	}
}

func TestParseTargetGrammar(t *testing.T) {
	cases := []struct {
		in   string
		kind app.TargetKind
		path string
		ok   bool
	}{
		{"void", app.TargetVoid, "", true},
		{"inherit", app.TargetInherit, "", true},
		{"console", app.TargetConsole, "", true},
		{"file:/var/log.txt", app.TargetFile, "/var/log.txt", true},
		{"pipe:3", app.TargetKind(0), "", false},
	}
	for _, c := range cases {
		target, ok := parseTarget(c.in)
		if ok != c.ok {
			t.Fatalf("parseTarget(%q) ok = %v; want %v", c.in, ok, c.ok)
		}
		if !ok {
			continue
		}
		if target.Kind != c.kind || target.Path != c.path {
			t.Fatalf("parseTarget(%q) = %+v; want kind=%v path=%q", c.in, target, c.kind, c.path)
		}
	}
}
