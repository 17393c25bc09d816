package fat32

import (
	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/vfs"
)

// slotLocation pins a 32-byte directory entry to a physical cluster and
// entry index within it, so Create/Delete can rewrite it in place.
type slotLocation struct {
	cluster uint32
	index   int
}

// dirEntry is one fully-parsed directory entry: its short entry, the
// slots that make it up (LFN run + short entry, in physical/on-disk
// order), and the long name if an LFN chain preceded it.
type dirEntry struct {
	short     ShortEntry
	shortLoc  slotLocation
	lfnLocs   []slotLocation
	longName  string
}

func (d dirEntry) name() string {
	if d.longName != "" {
		return d.longName
	}
	return d.short.ShortName()
}

func (d dirEntry) info() vfs.NodeInfo {
	kind := vfs.File
	if d.short.HasAttribute(AttrDirectory) {
		kind = vfs.Directory
	}
	return vfs.NodeInfo{Name: d.name(), Kind: kind, Size: uint64(d.short.FileSize)}
}

// directoryIterator walks the cluster chain of a directory 32-byte entry
// at a time, assembling LFN chains into their owning short entry per
// the driver's directory-iteration contract.
type directoryIterator struct {
	v     *volume
	chain []uint32
	mode  vfs.StreamMode

	clusterIdx int
	buf        []byte
	entryIdx   int

	pendingLFN []LFNEntry
}

func newDirectoryIterator(v *volume, startCluster uint32, mode vfs.StreamMode) (*directoryIterator, *kernel.Error) {
	chain, err := v.clusterChain(startCluster)
	if err != nil {
		return nil, err
	}
	return &directoryIterator{v: v, chain: chain, mode: mode, clusterIdx: -1}, nil
}

func (it *directoryIterator) entriesPerCluster() int {
	return int(it.v.clusterSize()) / DirEntrySize
}

// loadNextCluster advances to the next cluster in the chain, returning
// false once the chain is exhausted.
func (it *directoryIterator) loadNextCluster() (bool, *kernel.Error) {
	it.clusterIdx++
	if it.clusterIdx >= len(it.chain) {
		return false, nil
	}
	buf := make([]byte, it.v.clusterSize())
	if err := it.v.readCluster(it.chain[it.clusterIdx], buf); err != nil {
		return false, err
	}
	it.buf = buf
	it.entryIdx = 0
	return true, nil
}

// nextSlot returns the next raw 32-byte slot and its location, advancing
// across cluster boundaries as needed. ok is false once the chain is
// exhausted.
func (it *directoryIterator) nextSlot() (raw []byte, loc slotLocation, ok bool, kerr *kernel.Error) {
	for it.buf == nil || it.entryIdx >= it.entriesPerCluster() {
		more, err := it.loadNextCluster()
		if err != nil {
			return nil, slotLocation{}, false, err
		}
		if !more {
			return nil, slotLocation{}, false, nil
		}
	}
	off := it.entryIdx * DirEntrySize
	raw = it.buf[off : off+DirEntrySize]
	loc = slotLocation{cluster: it.chain[it.clusterIdx], index: it.entryIdx}
	it.entryIdx++
	return raw, loc, true, nil
}

// next returns the next directory entry visible under it.mode, or
// ok=false when the directory has been fully iterated.
func (it *directoryIterator) next() (entry dirEntry, ok bool, kerr *kernel.Error) {
	it.pendingLFN = it.pendingLFN[:0]
	var lfnLocs []slotLocation

	for {
		raw, loc, hasNext, err := it.nextSlot()
		if err != nil {
			return dirEntry{}, false, err
		}
		if !hasNext {
			return dirEntry{}, false, nil
		}

		short := DecodeShortEntry(raw)
		if short.IsEmptyEnd() {
			if it.mode == vfs.ListDirectory {
				return dirEntry{}, false, nil
			}
			return dirEntry{short: short, shortLoc: loc}, true, nil
		}
		if short.IsEmptyMiddle() {
			if it.mode == vfs.ListDirectory {
				it.pendingLFN = it.pendingLFN[:0]
				continue
			}
			return dirEntry{short: short, shortLoc: loc}, true, nil
		}
		if short.IsLongFileName() {
			lfn := DecodeLFNEntry(raw)
			it.pendingLFN = append(it.pendingLFN, lfn)
			lfnLocs = append(lfnLocs, loc)
			continue
		}

		// A short entry: assemble any preceding, validated LFN chain.
		longName := ""
		if len(it.pendingLFN) > 0 && validLFNChain(it.pendingLFN, short.Checksum()) {
			longName = AssembleLongName(it.pendingLFN)
		}
		return dirEntry{short: short, shortLoc: loc, lfnLocs: lfnLocs, longName: longName}, true, nil
	}
}

// validLFNChain checks that slots (in on-disk/physical order, i.e. last
// slot first) form a well-formed chain for a short entry with the given
// checksum: every slot's checksum matches, the first slot read carries
// the last-slot bit, and sequence numbers descend strictly to 1.
func validLFNChain(slots []LFNEntry, shortChecksum uint8) bool {
	if !slots[0].IsLastSlot() {
		return false
	}
	expected := slots[0].SequenceNumber()
	for _, s := range slots {
		if s.Checksum != shortChecksum {
			return false
		}
		if s.SequenceNumber() != expected {
			return false
		}
		expected--
	}
	return expected == 0
}

// fatDirectoryStream adapts directoryIterator to vfs.DirectoryStream for
// ListDirectory-mode consumers (the only mode the VFS surface exposes).
type fatDirectoryStream struct {
	it      *directoryIterator
	onClose func()
}

func (s *fatDirectoryStream) Next() (vfs.NodeInfo, bool, *kernel.Error) {
	entry, ok, err := s.it.next()
	if err != nil || !ok {
		return vfs.NodeInfo{}, false, err
	}
	return entry.info(), true, nil
}

func (s *fatDirectoryStream) Close() *kernel.Error {
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}
