package fat32

import (
	"strings"

	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/vfs"
)

var (
	errNotFound   = &kernel.Error{Module: "fat32", Message: "no such file or directory"}
	errExists     = &kernel.Error{Module: "fat32", Message: "a file or directory already exists at this path"}
	errBadPath    = &kernel.Error{Module: "fat32", Message: "an intermediate path component is not a directory"}
	errNotADir    = &kernel.Error{Module: "fat32", Message: "path does not refer to a directory"}
	errIsADir     = &kernel.Error{Module: "fat32", Message: "path refers to a directory, not a file"}
	errNotEmpty   = &kernel.Error{Module: "fat32", Message: "directory is not empty"}
	errBadOEM     = &kernel.Error{Module: "fat32", Message: "volume OEM string is not a recognized FAT32 volume"}
	errNotMounted = &kernel.Error{Module: "fat32", Message: "device has no mounted FAT32 volume"}
)

// sectorCounter is implemented by block devices that know their own
// capacity (ahci.PortEngine does not expose this directly; Format is
// expected to be driven by cmd/runeos-mkfs against a device that does).
type sectorCounter interface {
	SectorCount() uint64
}

// defaultFormatSectorCount is used when dev does not implement
// sectorCounter; it sizes the volume conservatively rather than failing.
const defaultFormatSectorCount = 0x100000 // 512 MiB at 512-byte sectors

// Driver implements vfs.Driver for Microsoft FAT32 volumes.
type Driver struct {
	volumes map[vfs.BlockDevice]*volume
}

// New returns a Driver with no mounted volumes.
func New() *Driver {
	return &Driver{volumes: make(map[vfs.BlockDevice]*volume)}
}

func (d *Driver) Format(dev vfs.BlockDevice) *kernel.Error {
	sectorCount := uint64(defaultFormatSectorCount)
	if sc, ok := dev.(sectorCounter); ok {
		sectorCount = sc.SectorCount()
	}
	sectorSize := dev.SectorSize()
	bpb := NewBootRecord(sectorSize, uint32(sectorCount))

	sector := make([]byte, sectorSize)
	bpb.Encode(sector)
	if err := dev.WriteSectors(0, sector); err != nil {
		return errDeviceIO
	}
	if err := dev.WriteSectors(uint64(bpb.BackupBootSector), sector); err != nil {
		return errDeviceIO
	}

	zeroFAT := make([]byte, uint64(bpb.FATSize())*uint64(sectorSize))
	// Cluster 0 and 1 entries are reserved; cluster 2 (the root directory)
	// is allocated immediately and chained to EOF.
	putLE32(zeroFAT[fatOffset(0):fatOffset(0)+4], 0x0FFFFFF8)
	putLE32(zeroFAT[fatOffset(1):fatOffset(1)+4], 0x0FFFFFFF)
	putLE32(zeroFAT[fatOffset(RootCluster):fatOffset(RootCluster)+4], EOFMarker)
	if err := dev.WriteSectors(uint64(bpb.ReservedSectorCount), zeroFAT); err != nil {
		return errDeviceIO
	}
	if err := dev.WriteSectors(uint64(bpb.ReservedSectorCount)+uint64(bpb.FATSize()), zeroFAT); err != nil {
		return errDeviceIO
	}

	v := &volume{dev: dev, bpb: bpb}
	rootCluster := make([]byte, v.clusterSize())
	return v.writeCluster(RootCluster, rootCluster)
}

func (d *Driver) Mount(dev vfs.BlockDevice) *kernel.Error {
	sectorSize := dev.SectorSize()
	sector := make([]byte, sectorSize)
	if err := dev.ReadSectors(0, sector); err != nil {
		return errDeviceIO
	}
	bpb := DecodeBPB(sector)
	if string(bpb.OEMName[:]) != OEMName || bpb.FATCount != FATCount {
		return errBadOEM
	}
	d.volumes[dev] = &volume{dev: dev, bpb: bpb}
	return nil
}

func (d *Driver) Unmount(dev vfs.BlockDevice) *kernel.Error {
	if _, ok := d.volumes[dev]; !ok {
		return errNotMounted
	}
	delete(d.volumes, dev)
	return nil
}

func (d *Driver) IsValidFilePath(path string) bool {
	for _, comp := range vfs.SplitPath(path) {
		if !isValidComponent(comp) {
			return false
		}
	}
	return true
}

func isValidComponent(name string) bool {
	if name == "" || len(name) > 255 || strings.HasPrefix(name, " ") {
		return false
	}
	for _, c := range name {
		if c > 0x7E {
			continue // non-ASCII is accepted in long names
		}
		if isAlnum(c) || strings.ContainsRune(allowedLongNameSpecials, c) {
			continue
		}
		return false
	}
	return true
}

const allowedLongNameSpecials = "$%'-_@~`!(){}^#&.+,;=[]"

func isAlnum(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func (d *Driver) volumeFor(dev vfs.BlockDevice) (*volume, *kernel.Error) {
	v, ok := d.volumes[dev]
	if !ok {
		return nil, errNotMounted
	}
	return v, nil
}

// navigate resolves path against v's root directory, returning the
// matching entry and the cluster of the directory that contains it.
func navigate(v *volume, path string) (dirEntry, uint32, *kernel.Error) {
	components := vfs.SplitPath(path)
	cluster := v.bpb.RootCluster
	if len(components) == 0 {
		return dirEntry{short: ShortEntry{Attributes: AttrDirectory, FirstClusterHi: uint16(cluster >> 16), FirstClusterLo: uint16(cluster)}}, cluster, nil
	}

	for i, comp := range components {
		it, err := newDirectoryIterator(v, cluster, vfs.ListDirectory)
		if err != nil {
			return dirEntry{}, 0, err
		}
		found := false
		var match dirEntry
		for {
			entry, ok, err := it.next()
			if err != nil {
				return dirEntry{}, 0, err
			}
			if !ok {
				break
			}
			if strings.EqualFold(entry.name(), comp) {
				match = entry
				found = true
				break
			}
		}
		if !found {
			return dirEntry{}, 0, errNotFound
		}
		if i < len(components)-1 {
			if !match.short.HasAttribute(AttrDirectory) {
				return dirEntry{}, 0, errBadPath
			}
			cluster = match.short.Cluster()
			continue
		}
		return match, cluster, nil
	}
	panic("unreachable")
}

func (d *Driver) Create(dev vfs.BlockDevice, path string, attrs vfs.CreateAttrs) *kernel.Error {
	v, err := d.volumeFor(dev)
	if err != nil {
		return err
	}
	components := vfs.SplitPath(path)
	if len(components) == 0 {
		return errExists
	}
	leaf := components[len(components)-1]
	if !isValidComponent(leaf) {
		return errBadPath
	}

	parentCluster := v.bpb.RootCluster
	if len(components) > 1 {
		parentPath := "/" + strings.Join(components[:len(components)-1], "/")
		parent, _, err := navigate(v, parentPath)
		if err != nil {
			return err
		}
		if !parent.short.HasAttribute(AttrDirectory) {
			return errBadPath
		}
		parentCluster = parent.short.Cluster()
	}

	it, err := newDirectoryIterator(v, parentCluster, vfs.ListDirectory)
	if err != nil {
		return err
	}
	collision := 0
	shortNames := map[string]bool{}
	for {
		entry, ok, err := it.next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if strings.EqualFold(entry.name(), leaf) {
			return errExists
		}
		shortNames[entry.short.ShortName()] = true
	}

	var short ShortEntry
	for {
		short.Name = MakeShortName(leaf, collision)
		if !shortNames[short.ShortName()] {
			break
		}
		collision++
	}

	checksum := short.Checksum()
	lfnSlots := BuildLFNChain(leaf, checksum)

	locs, err := v.findOrExtendDirSlots(parentCluster, len(lfnSlots)+1)
	if err != nil {
		return err
	}

	newCluster, err := v.allocateCluster(0)
	if err != nil {
		return err
	}
	short.SetCluster(newCluster)
	if attrs.Kind == vfs.Directory {
		short.Attributes = AttrDirectory
	} else {
		short.Attributes = AttrArchive
	}

	raw := make([]byte, DirEntrySize)
	for i, lfn := range lfnSlots {
		lfn.Encode(raw)
		if err := v.writeSlot(locs[i], raw); err != nil {
			return err
		}
	}
	short.Encode(raw)
	return v.writeSlot(locs[len(locs)-1], raw)
}

func (d *Driver) Open(dev vfs.BlockDevice, mountPath, path string, mode vfs.OpenMode, onClose func()) (vfs.Node, *kernel.Error) {
	v, err := d.volumeFor(dev)
	if err != nil {
		return nil, err
	}
	entry, _, err := navigate(v, path)
	if err != nil {
		return nil, err
	}
	if entry.short.HasAttribute(AttrDirectory) {
		return nil, errIsADir
	}
	return openFileNode(v, entry.short, entry.shortLoc, mode, onClose)
}

func (d *Driver) FindNode(dev vfs.BlockDevice, path string) (vfs.NodeInfo, *kernel.Error) {
	v, err := d.volumeFor(dev)
	if err != nil {
		return vfs.NodeInfo{}, err
	}
	entry, _, err := navigate(v, path)
	if err != nil {
		return vfs.NodeInfo{}, err
	}
	return entry.info(), nil
}

func (d *Driver) DeleteNode(dev vfs.BlockDevice, path string) *kernel.Error {
	v, err := d.volumeFor(dev)
	if err != nil {
		return err
	}
	entry, _, err := navigate(v, path)
	if err != nil {
		return err
	}
	if entry.short.HasAttribute(AttrDirectory) {
		it, err := newDirectoryIterator(v, entry.short.Cluster(), vfs.ListDirectory)
		if err != nil {
			return err
		}
		_, hasEntries, err := it.next()
		if err != nil {
			return err
		}
		if hasEntries {
			return errNotEmpty
		}
	} else {
		if err := v.freeChain(entry.short.Cluster()); err != nil {
			return err
		}
	}

	empty := make([]byte, DirEntrySize)
	empty[0] = MarkEmptyMiddle
	for _, loc := range entry.lfnLocs {
		if err := v.writeSlot(loc, empty); err != nil {
			return err
		}
	}
	return v.writeSlot(entry.shortLoc, empty)
}

func (d *Driver) OpenDirectoryStream(dev vfs.BlockDevice, path string, onClose func()) (vfs.DirectoryStream, *kernel.Error) {
	v, err := d.volumeFor(dev)
	if err != nil {
		return nil, err
	}
	entry, _, err := navigate(v, path)
	if err != nil {
		return nil, err
	}
	if !entry.short.HasAttribute(AttrDirectory) {
		return nil, errNotADir
	}
	it, err := newDirectoryIterator(v, entry.short.Cluster(), vfs.ListDirectory)
	if err != nil {
		return nil, err
	}
	return &fatDirectoryStream{it: it, onClose: onClose}, nil
}
