package fat32

import (
	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/vfs"
)

var (
	errSeekNegative = &kernel.Error{Module: "fat32", Message: "seek would move before the start of the file"}
	errReadOnly     = &kernel.Error{Module: "fat32", Message: "file was opened read-only"}
)

// fileNode is an open FAT32 file: it caches the byte offset, recomputing
// which cluster of the chain that offset falls in on each Read/Write, and
// only rewrites the directory entry's size field when the node is closed
// or flushed.
type fileNode struct {
	v *volume

	short    ShortEntry
	shortLoc slotLocation

	mode vfs.OpenMode

	offset    int64
	chain     []uint32
	sizeDirty bool
	onClose   func()
}

func openFileNode(v *volume, short ShortEntry, shortLoc slotLocation, mode vfs.OpenMode, onClose func()) (*fileNode, *kernel.Error) {
	n := &fileNode{v: v, short: short, shortLoc: shortLoc, mode: mode, onClose: onClose}
	if short.Cluster() != 0 {
		chain, err := v.clusterChain(short.Cluster())
		if err != nil {
			return nil, err
		}
		n.chain = chain
	}
	if mode == vfs.Append {
		n.offset = int64(short.FileSize)
	}
	return n, nil
}

func (n *fileNode) Info() vfs.NodeInfo {
	kind := vfs.File
	if n.short.HasAttribute(AttrDirectory) {
		kind = vfs.Directory
	}
	return vfs.NodeInfo{Name: n.short.ShortName(), Kind: kind, Size: uint64(n.short.FileSize)}
}

func (n *fileNode) Read(buf []byte) (int, *kernel.Error) {
	if n.offset >= int64(n.short.FileSize) {
		return 0, nil
	}
	clusterSize := int64(n.v.clusterSize())
	total := 0
	for total < len(buf) && n.offset < int64(n.short.FileSize) {
		clusterIdx := int(n.offset / clusterSize)
		if clusterIdx >= len(n.chain) {
			break
		}
		clusterBuf := make([]byte, clusterSize)
		if err := n.v.readCluster(n.chain[clusterIdx], clusterBuf); err != nil {
			return total, err
		}
		inClusterOff := n.offset % clusterSize
		avail := clusterSize - inClusterOff
		remaining := int64(n.short.FileSize) - n.offset
		if avail > remaining {
			avail = remaining
		}
		want := int64(len(buf) - total)
		if avail > want {
			avail = want
		}
		copy(buf[total:], clusterBuf[inClusterOff:inClusterOff+avail])
		total += int(avail)
		n.offset += avail
	}
	return total, nil
}

func (n *fileNode) Write(buf []byte) (int, *kernel.Error) {
	if n.mode == vfs.ReadOnly {
		return 0, errReadOnly
	}
	clusterSize := int64(n.v.clusterSize())
	total := 0
	for total < len(buf) {
		clusterIdx := int(n.offset / clusterSize)
		for clusterIdx >= len(n.chain) {
			prev := uint32(0)
			if len(n.chain) > 0 {
				prev = n.chain[len(n.chain)-1]
			}
			next, err := n.v.allocateCluster(prev)
			if err != nil {
				return total, err
			}
			n.chain = append(n.chain, next)
			if len(n.chain) == 1 {
				n.short.SetCluster(next)
			}
		}
		clusterBuf := make([]byte, clusterSize)
		if err := n.v.readCluster(n.chain[clusterIdx], clusterBuf); err != nil {
			return total, err
		}
		inClusterOff := n.offset % clusterSize
		avail := clusterSize - inClusterOff
		want := int64(len(buf) - total)
		if avail > want {
			avail = want
		}
		copy(clusterBuf[inClusterOff:inClusterOff+avail], buf[total:int64(total)+avail])
		if err := n.v.writeCluster(n.chain[clusterIdx], clusterBuf); err != nil {
			return total, err
		}
		total += int(avail)
		n.offset += avail
		if uint64(n.offset) > uint64(n.short.FileSize) {
			n.short.FileSize = uint32(n.offset)
			n.sizeDirty = true
		}
	}
	return total, nil
}

func (n *fileNode) Seek(offset int64, whence int) (int64, *kernel.Error) {
	var base int64
	switch whence {
	case 0:
		base = 0
	case 1:
		base = n.offset
	case 2:
		base = int64(n.short.FileSize)
	}
	newOffset := base + offset
	if newOffset < 0 {
		return n.offset, errSeekNegative
	}
	n.offset = newOffset
	return n.offset, nil
}

// flush rewrites the short entry's size/cluster fields in its owning
// directory slot if Write has grown the file.
func (n *fileNode) flush() *kernel.Error {
	if !n.sizeDirty {
		return nil
	}
	buf := make([]byte, n.v.clusterSize())
	if err := n.v.readCluster(n.shortLoc.cluster, buf); err != nil {
		return err
	}
	off := n.shortLoc.index * DirEntrySize
	n.short.Encode(buf[off : off+DirEntrySize])
	if err := n.v.writeCluster(n.shortLoc.cluster, buf); err != nil {
		return err
	}
	n.sizeDirty = false
	return nil
}

func (n *fileNode) Close() *kernel.Error {
	err := n.flush()
	if n.onClose != nil {
		n.onClose()
	}
	return err
}
