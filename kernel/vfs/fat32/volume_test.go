package fat32

import (
	"testing"

	"github.com/Ewogijk/runeOS-sub002/kernel"
)

const testSectorSize = 512

// fakeDevice is an in-memory vfs.BlockDevice backed by a byte slice.
type fakeDevice struct {
	sectors []byte
}

func newFakeDevice(sectorCount int) *fakeDevice {
	return &fakeDevice{sectors: make([]byte, sectorCount*testSectorSize)}
}

func (f *fakeDevice) SectorSize() uint32 { return testSectorSize }

func (f *fakeDevice) ReadSectors(lba uint64, buf []byte) *kernel.Error {
	off := int(lba) * testSectorSize
	if off+len(buf) > len(f.sectors) {
		return &kernel.Error{Module: "fake", Message: "read past end of device"}
	}
	copy(buf, f.sectors[off:off+len(buf)])
	return nil
}

func (f *fakeDevice) WriteSectors(lba uint64, buf []byte) *kernel.Error {
	off := int(lba) * testSectorSize
	if off+len(buf) > len(f.sectors) {
		return &kernel.Error{Module: "fake", Message: "write past end of device"}
	}
	copy(f.sectors[off:], buf)
	return nil
}

func (f *fakeDevice) SectorCount() uint64 { return uint64(len(f.sectors) / testSectorSize) }

// newFormattedVolume formats dev with a fresh FAT32 volume and returns the
// in-memory volume handle for direct low-level testing.
func newFormattedVolume(t *testing.T, dev *fakeDevice) *volume {
	t.Helper()
	d := New()
	if err := d.Format(dev); err != nil {
		t.Fatalf("unexpected Format error: %v", err)
	}
	sector := make([]byte, testSectorSize)
	if err := dev.ReadSectors(0, sector); err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	return &volume{dev: dev, bpb: DecodeBPB(sector)}
}

func TestFatReadWriteRoundTrips(t *testing.T) {
	dev := newFakeDevice(4096)
	v := newFormattedVolume(t, dev)

	if err := v.fatWrite(10, 0xABCDE); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := v.fatRead(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0xABCDE {
		t.Fatalf("expected 0xABCDE; got %#x", got)
	}
}

func TestFatWriteUpdatesBackupFAT(t *testing.T) {
	dev := newFakeDevice(4096)
	v := newFormattedVolume(t, dev)

	if err := v.fatWrite(5, 0x1234); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	backupSector := uint64(v.bpb.ReservedSectorCount) + uint64(v.bpb.FATSize())
	buf := make([]byte, testSectorSize)
	if err := dev.ReadSectors(backupSector, buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fatEntry(buf, fatOffset(5)) != 0x1234 {
		t.Fatal("expected the backup FAT entry to match the primary")
	}
}

func TestAllocateClusterChainsToPrevious(t *testing.T) {
	dev := newFakeDevice(4096)
	v := newFormattedVolume(t, dev)

	first, err := v.allocateCluster(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := v.allocateCluster(first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, err := v.fatRead(first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry != second {
		t.Fatalf("expected first cluster to chain to second; got %#x want %#x", entry, second)
	}

	chain, err := v.clusterChain(first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chain) != 2 || chain[0] != first || chain[1] != second {
		t.Fatalf("unexpected chain: %v", chain)
	}
}

func TestFreeChainZeroesEveryEntry(t *testing.T) {
	dev := newFakeDevice(4096)
	v := newFormattedVolume(t, dev)

	first, _ := v.allocateCluster(0)
	second, _ := v.allocateCluster(first)

	if err := v.freeChain(first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range []uint32{first, second} {
		entry, err := v.fatRead(c)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if entry != 0 {
			t.Fatalf("expected cluster %d to be freed; FAT entry is %#x", c, entry)
		}
	}
}

func TestFindOrExtendDirSlotsExtendsDirectory(t *testing.T) {
	dev := newFakeDevice(4096)
	v := newFormattedVolume(t, dev)

	entriesPerCluster := int(v.clusterSize()) / DirEntrySize
	locs, err := v.findOrExtendDirSlots(RootCluster, entriesPerCluster+1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(locs) != entriesPerCluster+1 {
		t.Fatalf("expected %d slots; got %d", entriesPerCluster+1, len(locs))
	}
	if locs[0].cluster == locs[len(locs)-1].cluster {
		t.Fatal("expected extension to a new cluster once the root cluster is exhausted")
	}
}
