// Package syscall implements the kernel's system call gate: a dispatch
// table of closed numeric IDs grouped by subsystem, pointer/buffer
// validation against the user/kernel memory boundary, and the handlers for
// the memory, threading, VFS and app subsystems. It is the only place user
// mode addresses are trusted without re-validation.
package syscall

import (
	"unsafe"

	"github.com/Ewogijk/runeOS-sub002/kernel/mem"
)

// UserStringLimit is the longest c string (including the null terminator)
// this gate will ever copy out of user memory.
const UserStringLimit = 128

// VerifyUserBuffer reports whether a user-mode buffer of size bytes
// starting at addr is non-null and lies entirely below mem.UserSpaceEnd.
func VerifyUserBuffer(addr uintptr, size uintptr) bool {
	if addr == 0 || size == 0 {
		return false
	}
	end := addr + size
	return end > addr && end < mem.UserSpaceEnd
}

// CopyByteBufferUserToKernel verifies userAddr/len(kernelBuf) and, if valid,
// copies that many bytes from user memory into kernelBuf.
func CopyByteBufferUserToKernel(userAddr uintptr, kernelBuf []byte) bool {
	if len(kernelBuf) == 0 || !VerifyUserBuffer(userAddr, uintptr(len(kernelBuf))) {
		return false
	}
	mem.Memcopy(userAddr, uintptr(unsafe.Pointer(&kernelBuf[0])), mem.Size(len(kernelBuf)))
	return true
}

// CopyByteBufferKernelToUser verifies userAddr/len(kernelBuf) and, if valid,
// copies kernelBuf into user memory.
func CopyByteBufferKernelToUser(kernelBuf []byte, userAddr uintptr) bool {
	if len(kernelBuf) == 0 || !VerifyUserBuffer(userAddr, uintptr(len(kernelBuf))) {
		return false
	}
	mem.Memcopy(uintptr(unsafe.Pointer(&kernelBuf[0])), userAddr, mem.Size(len(kernelBuf)))
	return true
}

// CopyStringUserToKernel copies a null-terminated c string out of user
// memory, scanning at most UserStringLimit bytes. If expSize is >= 0, the
// decoded string's length must equal it exactly. It fails closed: any
// out-of-range address, missing null terminator within the limit, or size
// mismatch returns ok=false and an empty string.
func CopyStringUserToKernel(userAddr uintptr, expSize int) (s string, ok bool) {
	if userAddr == 0 || userAddr >= mem.UserSpaceEnd {
		return "", false
	}

	var buf [UserStringLimit]byte
	n := 0
	for n < UserStringLimit {
		addr := userAddr + uintptr(n)
		if addr >= mem.UserSpaceEnd {
			return "", false
		}
		b := *(*byte)(unsafe.Pointer(addr))
		if b == 0 {
			break
		}
		buf[n] = b
		n++
	}
	if n == UserStringLimit {
		return "", false
	}
	if expSize >= 0 && n != expSize {
		return "", false
	}
	return string(buf[:n]), true
}

// argvLimit bounds the number of entries CopyArgvUserToKernel will ever
// read, matching the ELF loader's own bootstrap stack bound.
const argvLimit = 32

// CopyArgvUserToKernel reads a null-terminated array of c string pointers
// out of user memory starting at argvAddr, copying at most argvLimit
// strings of at most UserStringLimit bytes each.
func CopyArgvUserToKernel(argvAddr uintptr) ([]string, bool) {
	if argvAddr == 0 {
		return nil, true
	}
	if argvAddr >= mem.UserSpaceEnd {
		return nil, false
	}

	var argv []string
	for i := 0; i < argvLimit; i++ {
		slot := argvAddr + uintptr(i)*unsafe.Sizeof(uintptr(0))
		if slot+unsafe.Sizeof(uintptr(0)) > mem.UserSpaceEnd {
			return nil, false
		}
		ptr := *(*uintptr)(unsafe.Pointer(slot))
		if ptr == 0 {
			return argv, true
		}
		s, ok := CopyStringUserToKernel(ptr, -1)
		if !ok {
			return nil, false
		}
		argv = append(argv, s)
	}
	return nil, false
}
