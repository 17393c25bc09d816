package fat32

import (
	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/vfs"
)

var (
	errDeviceIO  = &kernel.Error{Module: "fat32", Message: "storage device read/write failed"}
	errNoCluster = &kernel.Error{Module: "fat32", Message: "no free cluster available"}
)

// volume wires a decoded BPB to the block device it describes and
// provides the low-level FAT-region and data-region operations every
// higher layer (directory iteration, file Read/Write, Create/Delete)
// builds on.
type volume struct {
	dev vfs.BlockDevice
	bpb BIOSParameterBlock
}

func (v *volume) sectorSize() uint32 { return uint32(v.bpb.BytesPerSector) }

func (v *volume) clusterSize() uint32 {
	return uint32(v.bpb.BytesPerSector) * uint32(v.bpb.SectorsPerCluster)
}

// dataClusterToLBA converts a data cluster number to its starting LBA:
// reserved sectors, then both FAT copies, then (cluster-2) cluster-sized
// strides into the data region.
func (v *volume) dataClusterToLBA(cluster uint32) uint64 {
	return uint64(v.bpb.ReservedSectorCount) +
		uint64(v.bpb.FATCount)*uint64(v.bpb.FATSize()) +
		uint64(cluster-2)*uint64(v.bpb.SectorsPerCluster)
}

// readCluster reads one full data cluster into buf, which must be exactly
// clusterSize() bytes.
func (v *volume) readCluster(cluster uint32, buf []byte) *kernel.Error {
	if err := v.dev.ReadSectors(v.dataClusterToLBA(cluster), buf); err != nil {
		return errDeviceIO
	}
	return nil
}

// writeCluster overwrites one full data cluster from buf.
func (v *volume) writeCluster(cluster uint32, buf []byte) *kernel.Error {
	if err := v.dev.WriteSectors(v.dataClusterToLBA(cluster), buf); err != nil {
		return errDeviceIO
	}
	return nil
}

// fatOffset is the byte offset of cluster's 32-bit entry within the FAT
// region.
func fatOffset(cluster uint32) uint32 { return cluster * 4 }

// fatEntry extracts a FAT32 entry from a FAT-sector buffer at byteOffset,
// masking off the reserved top nibble.
func fatEntry(fat []byte, byteOffset uint32) uint32 {
	return le32(fat[byteOffset:byteOffset+4]) & 0x0FFFFFFF
}

// fatSetEntry stores newEntry into the FAT-sector buffer at byteOffset,
// preserving the reserved top nibble already present.
func fatSetEntry(fat []byte, byteOffset uint32, newEntry uint32) {
	old := le32(fat[byteOffset : byteOffset+4])
	v := (old & 0xF0000000) | (newEntry & 0x0FFFFFFF)
	putLE32(fat[byteOffset:byteOffset+4], v)
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// fatRead reads the FAT entry for cluster.
func (v *volume) fatRead(cluster uint32) (uint32, *kernel.Error) {
	byteOffset := fatOffset(cluster)
	sectorSize := v.sectorSize()
	fatSector := uint64(v.bpb.ReservedSectorCount) + uint64(byteOffset/sectorSize)
	buf := make([]byte, sectorSize)
	if err := v.dev.ReadSectors(fatSector, buf); err != nil {
		return 0, errDeviceIO
	}
	return fatEntry(buf, byteOffset%sectorSize), nil
}

// fatWrite updates the FAT entry for cluster in both the primary and
// backup FAT copies.
func (v *volume) fatWrite(cluster uint32, value uint32) *kernel.Error {
	byteOffset := fatOffset(cluster)
	sectorSize := v.sectorSize()
	fatSector := uint64(v.bpb.ReservedSectorCount) + uint64(byteOffset/sectorSize)

	buf := make([]byte, sectorSize)
	if err := v.dev.ReadSectors(fatSector, buf); err != nil {
		return errDeviceIO
	}
	fatSetEntry(buf, byteOffset%sectorSize, value)
	if err := v.dev.WriteSectors(fatSector, buf); err != nil {
		return errDeviceIO
	}

	backupSector := fatSector + uint64(v.bpb.FATSize())
	backupBuf := make([]byte, sectorSize)
	if err := v.dev.ReadSectors(backupSector, backupBuf); err != nil {
		return errDeviceIO
	}
	fatSetEntry(backupBuf, byteOffset%sectorSize, value)
	if err := v.dev.WriteSectors(backupSector, backupBuf); err != nil {
		return errDeviceIO
	}
	return nil
}

// fatFindFreeClusterInSector scans a two-sector FAT buffer (256 32-bit
// entries) for the first zero entry, skipping the first two reserved
// entries when fatSectorIdx is 0.
func fatFindFreeClusterInSector(fat []byte, fatSectorIdx uint32) uint32 {
	const entriesPerTwoSectors = 256
	start := 0
	if fatSectorIdx == 0 {
		start = 2
	}
	for i := start; i < entriesPerTwoSectors; i++ {
		if fatEntry(fat, uint32(i*4)) == 0 {
			return fatSectorIdx*(entriesPerTwoSectors/2) + uint32(i)
		}
	}
	return MaxClusterCount + 1
}

// fatFindNextFreeCluster scans the FAT two sectors at a time and returns
// the first free cluster, or 0 if the volume is full.
func (v *volume) fatFindNextFreeCluster() (uint32, *kernel.Error) {
	sectorSize := v.sectorSize()
	twoSectors := make([]byte, 2*sectorSize)
	for i := uint32(0); i < v.bpb.FATSize(); i += 2 {
		if err := v.dev.ReadSectors(uint64(v.bpb.ReservedSectorCount+uint16(i)), twoSectors); err != nil {
			return 0, errDeviceIO
		}
		free := fatFindFreeClusterInSector(twoSectors, i)
		if free > 1 && free <= MaxClusterCount {
			return free, nil
		}
	}
	return 0, nil
}

// allocateCluster finds a free cluster, marks it EOF, and if prev is
// non-zero chains prev -> the new cluster.
func (v *volume) allocateCluster(prev uint32) (uint32, *kernel.Error) {
	free, err := v.fatFindNextFreeCluster()
	if err != nil {
		return 0, err
	}
	if free == 0 {
		return 0, errNoCluster
	}
	if err := v.fatWrite(free, EOFMarker); err != nil {
		return 0, err
	}
	if prev != 0 {
		if err := v.fatWrite(prev, free); err != nil {
			return 0, err
		}
	}
	zero := make([]byte, v.clusterSize())
	if err := v.writeCluster(free, zero); err != nil {
		return 0, err
	}
	return free, nil
}

// freeChain walks the FAT chain starting at cluster and zeroes every
// entry in it.
func (v *volume) freeChain(cluster uint32) *kernel.Error {
	for cluster != 0 && cluster < EOFMarker&0x0FFFFFFF {
		next, err := v.fatRead(cluster)
		if err != nil {
			return err
		}
		if err := v.fatWrite(cluster, 0); err != nil {
			return err
		}
		if next == 0 || next >= EOFMarker&0x0FFFFFFF {
			break
		}
		cluster = next
	}
	return nil
}

// clusterChain returns every cluster in the chain starting at start, in
// order, following FAT entries until the EOF marker.
func (v *volume) clusterChain(start uint32) ([]uint32, *kernel.Error) {
	var chain []uint32
	cluster := start
	for cluster != 0 && cluster < EOFMarker&0x0FFFFFFF {
		chain = append(chain, cluster)
		next, err := v.fatRead(cluster)
		if err != nil {
			return nil, err
		}
		if next == 0 || next >= EOFMarker&0x0FFFFFFF {
			break
		}
		cluster = next
	}
	return chain, nil
}

// writeSlot overwrites the 32-byte directory entry at loc with raw.
func (v *volume) writeSlot(loc slotLocation, raw []byte) *kernel.Error {
	buf := make([]byte, v.clusterSize())
	if err := v.readCluster(loc.cluster, buf); err != nil {
		return err
	}
	off := loc.index * DirEntrySize
	copy(buf[off:off+DirEntrySize], raw)
	return v.writeCluster(loc.cluster, buf)
}

// findOrExtendDirSlots returns count contiguous (in iteration order) free
// directory-entry slots starting from dirCluster's chain, extending the
// directory with newly allocated, zeroed clusters if the existing chain
// does not have enough.
func (v *volume) findOrExtendDirSlots(dirCluster uint32, count int) ([]slotLocation, *kernel.Error) {
	chain, err := v.clusterChain(dirCluster)
	if err != nil {
		return nil, err
	}
	entriesPerCluster := int(v.clusterSize()) / DirEntrySize

	var free []slotLocation
	for _, cluster := range chain {
		buf := make([]byte, v.clusterSize())
		if err := v.readCluster(cluster, buf); err != nil {
			return nil, err
		}
		for i := 0; i < entriesPerCluster; i++ {
			off := i * DirEntrySize
			if buf[off] == MarkEmptyEnd || buf[off] == MarkEmptyMiddle {
				free = append(free, slotLocation{cluster: cluster, index: i})
				if len(free) == count {
					return free, nil
				}
			} else {
				free = free[:0]
			}
		}
	}

	last := chain[len(chain)-1]
	for len(free) < count {
		next, err := v.allocateCluster(last)
		if err != nil {
			return nil, err
		}
		last = next
		for i := 0; i < entriesPerCluster && len(free) < count; i++ {
			free = append(free, slotLocation{cluster: next, index: i})
		}
	}
	return free, nil
}
