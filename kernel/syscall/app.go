package syscall

import (
	"strings"

	"github.com/Ewogijk/runeOS-sub002/kernel/app"
	"github.com/Ewogijk/runeOS-sub002/kernel/vfs"
)

func appReadStdIn(ctx *Context, keyCodeOut, a2, a3, a4, a5, a6 uint64) int64 {
	p := runningProcess(ctx)
	if p == nil {
		return int64(StatusFault)
	}
	if !VerifyUserBuffer(uintptr(keyCodeOut), 2) {
		return int64(StatusBadArg)
	}
	var raw [2]byte
	if _, err := p.Stdin.Read(raw[:]); err != nil {
		return int64(StatusIO)
	}
	if !CopyByteBufferKernelToUser(raw[:], uintptr(keyCodeOut)) {
		return int64(StatusBadArg)
	}
	return int64(StatusOkay)
}

func appWriteStdOut(ctx *Context, msgAddr, msgSize, a3, a4, a5, a6 uint64) int64 {
	return writeStd(ctx, msgAddr, msgSize, false)
}

func appWriteStdErr(ctx *Context, msgAddr, msgSize, a3, a4, a5, a6 uint64) int64 {
	return writeStd(ctx, msgAddr, msgSize, true)
}

func writeStd(ctx *Context, msgAddr, msgSize uint64, stderr bool) int64 {
	p := runningProcess(ctx)
	if p == nil {
		return int64(StatusFault)
	}
	if msgSize > UserStringLimit {
		return int64(StatusBadArg)
	}
	buf := make([]byte, msgSize)
	if msgSize > 0 && !CopyByteBufferUserToKernel(uintptr(msgAddr), buf) {
		return int64(StatusBadArg)
	}
	stream := p.Stdout
	if stderr {
		stream = p.Stderr
	}
	n, err := stream.Write(buf)
	if err != nil {
		return int64(StatusIO)
	}
	return int64(n)
}

// parseTarget decodes the stdio target grammar carried in a system call's
// stream-config string: "void", "inherit", "console", or "file:<path>".
func parseTarget(s string) (app.Target, bool) {
	switch {
	case s == "void":
		return app.Target{Kind: app.TargetVoid}, true
	case s == "inherit":
		return app.Target{Kind: app.TargetInherit}, true
	case s == "console":
		return app.Target{Kind: app.TargetConsole}, true
	case strings.HasPrefix(s, "file:"):
		return app.Target{Kind: app.TargetFile, Path: strings.TrimPrefix(s, "file:")}, true
	default:
		return app.Target{}, false
	}
}

// appStart is only reachable from an already-running app — the kernel's
// own first app is started directly by the boot sequence, never through
// this system call.
func appStart(ctx *Context, appPath, argvAddr, workingDir, stdinCfg, stdoutCfg, stderrCfg uint64) int64 {
	caller := runningProcess(ctx)
	if caller == nil {
		return int64(StatusFault)
	}

	path, ok := CopyStringUserToKernel(uintptr(appPath), -1)
	if !ok {
		return int64(StatusBadArg)
	}
	argv, ok := CopyArgvUserToKernel(uintptr(argvAddr))
	if !ok {
		return int64(StatusBadArg)
	}
	workDir := ""
	if workingDir != 0 {
		wd, ok := CopyStringUserToKernel(uintptr(workingDir), -1)
		if !ok {
			return int64(StatusBadArg)
		}
		workDir = wd
	}

	stdin, ok := decodeTarget(stdinCfg)
	if !ok {
		return int64(StatusBadArg)
	}
	stdout, ok := decodeTarget(stdoutCfg)
	if !ok {
		return int64(StatusBadArg)
	}
	stderrT, ok := decodeTarget(stderrCfg)
	if !ok {
		return int64(StatusBadArg)
	}

	started, err := ctx.Apps.StartNewApp(caller, path, argv, workDir, stdin, stdout, stderrT)
	if err != nil {
		return int64(StatusFault)
	}
	return int64(started.ID)
}

func decodeTarget(cfgAddr uint64) (app.Target, bool) {
	if cfgAddr == 0 {
		return app.Target{}, false
	}
	s, ok := CopyStringUserToKernel(uintptr(cfgAddr), -1)
	if !ok {
		return app.Target{}, false
	}
	return parseTarget(s)
}

// appExit never returns to the calling app: the running thread is
// terminated as part of the exit, so any status code is moot.
func appExit(ctx *Context, exitCode, a2, a3, a4, a5, a6 uint64) int64 {
	p := runningProcess(ctx)
	if p == nil {
		return int64(StatusFault)
	}
	ctx.Apps.Exit(p, int(int64(exitCode)))
	return int64(StatusOkay)
}

func appJoin(ctx *Context, id, a2, a3, a4, a5, a6 uint64) int64 {
	code := ctx.Apps.Join(uint16(id))
	if code == app.NoExitCode {
		return int64(StatusUnknownID)
	}
	return int64(code)
}

func appGetWorkingDirectory(ctx *Context, outAddr, outSize, a3, a4, a5, a6 uint64) int64 {
	p := runningProcess(ctx)
	if p == nil {
		return int64(StatusFault)
	}
	wd := p.WorkingDirectory
	if uint64(len(wd)+1) > outSize {
		return int64(StatusBadArg)
	}
	buf := make([]byte, len(wd)+1)
	copy(buf, wd)
	if !CopyByteBufferKernelToUser(buf, uintptr(outAddr)) {
		return int64(StatusBadArg)
	}
	return int64(StatusOkay)
}

func appChangeWorkingDirectory(ctx *Context, wdAddr, a2, a3, a4, a5, a6 uint64) int64 {
	p := runningProcess(ctx)
	if p == nil {
		return int64(StatusFault)
	}
	wd, ok := CopyStringUserToKernel(uintptr(wdAddr), -1)
	if !ok {
		return int64(StatusBadArg)
	}
	info, err := ctx.Mounts.FindNode(wd)
	if err != nil {
		return int64(StatusNodeNotFound)
	}
	if info.Kind != vfs.Directory {
		return int64(StatusNodeIsFile)
	}
	p.WorkingDirectory = wd
	return int64(StatusOkay)
}
