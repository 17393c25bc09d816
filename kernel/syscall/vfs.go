package syscall

import (
	"encoding/binary"

	"github.com/Ewogijk/runeOS-sub002/kernel/vfs"
)

// nodeInfoNameLen and nodeInfoWireSize fix the layout vfsGetNodeInfo writes
// into a user buffer: a null-padded name, a one-byte kind, and a
// little-endian uint64 size.
const (
	nodeInfoNameLen  = 64
	nodeInfoWireSize = nodeInfoNameLen + 1 + 8
)

func encodeNodeInfo(info vfs.NodeInfo) []byte {
	buf := make([]byte, nodeInfoWireSize)
	copy(buf[:nodeInfoNameLen], info.Name)
	buf[nodeInfoNameLen] = byte(info.Kind)
	binary.LittleEndian.PutUint64(buf[nodeInfoNameLen+1:], info.Size)
	return buf
}

func vfsGetNodeInfo(ctx *Context, pathAddr, pathSize, outAddr, a4, a5, a6 uint64) int64 {
	path, ok := CopyStringUserToKernel(uintptr(pathAddr), int(pathSize))
	if !ok {
		return int64(StatusBadArg)
	}
	info, err := ctx.Mounts.FindNode(path)
	if err != nil {
		return int64(StatusNodeNotFound)
	}
	if !CopyByteBufferKernelToUser(encodeNodeInfo(info), uintptr(outAddr)) {
		return int64(StatusBadArg)
	}
	return int64(StatusOkay)
}

func vfsCreate(ctx *Context, pathAddr, pathSize, kind, a4, a5, a6 uint64) int64 {
	path, ok := CopyStringUserToKernel(uintptr(pathAddr), int(pathSize))
	if !ok {
		return int64(StatusBadArg)
	}
	if kind > uint64(vfs.Directory) {
		return int64(StatusBadArg)
	}
	if err := ctx.Mounts.Create(path, vfs.CreateAttrs{Kind: vfs.NodeKind(kind)}); err != nil {
		return int64(StatusIO)
	}
	return int64(StatusOkay)
}

func vfsOpen(ctx *Context, pathAddr, pathSize, mode, a4, a5, a6 uint64) int64 {
	p := runningProcess(ctx)
	if p == nil {
		return int64(StatusFault)
	}
	path, ok := CopyStringUserToKernel(uintptr(pathAddr), int(pathSize))
	if !ok {
		return int64(StatusBadArg)
	}
	if mode > uint64(vfs.Append) {
		return int64(StatusBadArg)
	}
	node, err := ctx.Mounts.Open(path, vfs.OpenMode(mode), nil)
	if err != nil {
		return int64(StatusNodeNotFound)
	}
	return int64(p.AddNodeHandle(node))
}

func vfsDelete(ctx *Context, pathAddr, pathSize, a3, a4, a5, a6 uint64) int64 {
	path, ok := CopyStringUserToKernel(uintptr(pathAddr), int(pathSize))
	if !ok {
		return int64(StatusBadArg)
	}
	if err := ctx.Mounts.DeleteNode(path); err != nil {
		return int64(StatusIO)
	}
	return int64(StatusOkay)
}

func vfsClose(ctx *Context, handle, a2, a3, a4, a5, a6 uint64) int64 {
	p := runningProcess(ctx)
	if p == nil {
		return int64(StatusFault)
	}
	if err := p.CloseNode(uint16(handle)); err != nil {
		return int64(StatusUnknownID)
	}
	return int64(StatusOkay)
}

func vfsRead(ctx *Context, handle, bufAddr, bufSize, a4, a5, a6 uint64) int64 {
	p := runningProcess(ctx)
	if p == nil {
		return int64(StatusFault)
	}
	node, ok := p.Node(uint16(handle))
	if !ok {
		return int64(StatusUnknownID)
	}
	if !VerifyUserBuffer(uintptr(bufAddr), uintptr(bufSize)) {
		return int64(StatusBadArg)
	}
	kbuf := make([]byte, bufSize)
	n, err := node.Read(kbuf)
	if err != nil {
		return int64(StatusIO)
	}
	if n > 0 && !CopyByteBufferKernelToUser(kbuf[:n], uintptr(bufAddr)) {
		return int64(StatusBadArg)
	}
	return int64(n)
}

func vfsWrite(ctx *Context, handle, bufAddr, bufSize, a4, a5, a6 uint64) int64 {
	p := runningProcess(ctx)
	if p == nil {
		return int64(StatusFault)
	}
	node, ok := p.Node(uint16(handle))
	if !ok {
		return int64(StatusUnknownID)
	}
	kbuf := make([]byte, bufSize)
	if !CopyByteBufferUserToKernel(uintptr(bufAddr), kbuf) {
		return int64(StatusBadArg)
	}
	n, err := node.Write(kbuf)
	if err != nil {
		return int64(StatusIO)
	}
	return int64(n)
}

func vfsSeek(ctx *Context, handle, offset, whence, a4, a5, a6 uint64) int64 {
	p := runningProcess(ctx)
	if p == nil {
		return int64(StatusFault)
	}
	node, ok := p.Node(uint16(handle))
	if !ok {
		return int64(StatusUnknownID)
	}
	pos, err := node.Seek(int64(offset), int(whence))
	if err != nil {
		return int64(StatusIO)
	}
	return pos
}

func vfsDirectoryStreamOpen(ctx *Context, pathAddr, pathSize, a3, a4, a5, a6 uint64) int64 {
	p := runningProcess(ctx)
	if p == nil {
		return int64(StatusFault)
	}
	path, ok := CopyStringUserToKernel(uintptr(pathAddr), int(pathSize))
	if !ok {
		return int64(StatusBadArg)
	}
	ds, err := ctx.Mounts.OpenDirectoryStream(path, nil)
	if err != nil {
		return int64(StatusNodeNotFound)
	}
	return int64(p.AddDirStreamHandle(ds))
}

func vfsDirectoryStreamNext(ctx *Context, handle, outAddr, a3, a4, a5, a6 uint64) int64 {
	p := runningProcess(ctx)
	if p == nil {
		return int64(StatusFault)
	}
	ds, ok := p.DirStream(uint16(handle))
	if !ok {
		return int64(StatusUnknownID)
	}
	info, ok, err := ds.Next()
	if err != nil {
		return int64(StatusIO)
	}
	if !ok {
		return int64(StatusNodeNotFound)
	}
	if !CopyByteBufferKernelToUser(encodeNodeInfo(info), uintptr(outAddr)) {
		return int64(StatusBadArg)
	}
	return int64(StatusOkay)
}

func vfsDirectoryStreamClose(ctx *Context, handle, a2, a3, a4, a5, a6 uint64) int64 {
	p := runningProcess(ctx)
	if p == nil {
		return int64(StatusFault)
	}
	if err := p.CloseDirStream(uint16(handle)); err != nil {
		return int64(StatusUnknownID)
	}
	return int64(StatusOkay)
}
