// Package vfs implements the kernel's virtual filesystem: a mount table
// keyed by path prefix, path resolution against whichever driver owns the
// longest matching mount, and the Node/DirectoryStream capability objects a
// process holds open file state through.
package vfs

import (
	"strings"

	"github.com/Ewogijk/runeOS-sub002/kernel"
)

// NodeKind distinguishes a regular file from a directory.
type NodeKind uint8

const (
	File NodeKind = iota
	Directory
)

// NodeInfo is the metadata FindNode/directory iteration returns about a
// path, independent of which driver backs it.
type NodeInfo struct {
	Name  string
	Kind  NodeKind
	Size  uint64
}

// CreateAttrs describes the kind of node Create should make.
type CreateAttrs struct {
	Kind NodeKind
}

// OpenMode controls the access a Node grants.
type OpenMode uint8

const (
	ReadOnly OpenMode = iota
	ReadWrite
	Append
)

// Node is a capability handle on an open file: reads and writes go through
// it, and closing it releases whatever in-memory state the owning driver
// attached (cached cluster position, dirty directory entry, etc).
type Node interface {
	Info() NodeInfo
	Read(buf []byte) (int, *kernel.Error)
	Write(buf []byte) (int, *kernel.Error)
	Seek(offset int64, whence int) (int64, *kernel.Error)
	Close() *kernel.Error
}

// DirectoryStream iterates the entries of an open directory.
type DirectoryStream interface {
	// Next advances to the next entry per the stream's Mode and returns its
	// info, or ok=false once the directory is exhausted.
	Next() (info NodeInfo, ok bool, err *kernel.Error)
	Close() *kernel.Error
}

// StreamMode selects which directory entries a DirectoryStream yields.
type StreamMode uint8

const (
	// ListDirectory yields only used, non-LFN entries; stops at the first
	// empty-end marker.
	ListDirectory StreamMode = iota

	// ListAll yields every entry, including empty ones, stopping only when
	// the chain of allocated clusters is exhausted.
	ListAll

	// Atomic yields the same slots as ListAll. LFN slots are not yielded on
	// their own; each short entry carries the locations of the LFN slots
	// that precede it.
	Atomic
)

// Driver is the interface a filesystem implementation (FAT32, or any future
// flavor) presents to the VFS.
type Driver interface {
	Format(dev BlockDevice) *kernel.Error
	Mount(dev BlockDevice) *kernel.Error
	Unmount(dev BlockDevice) *kernel.Error
	IsValidFilePath(path string) bool
	Create(dev BlockDevice, path string, attrs CreateAttrs) *kernel.Error
	Open(dev BlockDevice, mountPath, path string, mode OpenMode, onClose func()) (Node, *kernel.Error)
	FindNode(dev BlockDevice, path string) (NodeInfo, *kernel.Error)
	DeleteNode(dev BlockDevice, path string) *kernel.Error
	OpenDirectoryStream(dev BlockDevice, path string, onClose func()) (DirectoryStream, *kernel.Error)
}

// BlockDevice is the storage abstraction a Driver reads/writes sectors
// through; kernel/ahci.PortEngine satisfies it.
type BlockDevice interface {
	SectorSize() uint32
	ReadSectors(lba uint64, buf []byte) *kernel.Error
	WriteSectors(lba uint64, buf []byte) *kernel.Error
}

var (
	errNoMount       = &kernel.Error{Module: "vfs", Message: "no mount point covers this path"}
	errAlreadyMounted = &kernel.Error{Module: "vfs", Message: "a volume is already mounted at this path"}
	errBadPath       = &kernel.Error{Module: "vfs", Message: "path is not valid for the owning driver"}
)

// mountEntry pairs a mount path with the driver and device serving it.
type mountEntry struct {
	path   string
	driver Driver
	dev    BlockDevice
}

// MountTable resolves a path to the driver/device pair whose mount path is
// its longest matching prefix. The zero value is an empty table.
type MountTable struct {
	mounts []mountEntry
}

// Mount attaches driver/dev at mountPath, calling driver.Mount(dev) to bring
// the volume online.
func (t *MountTable) Mount(mountPath string, driver Driver, dev BlockDevice) *kernel.Error {
	mountPath = normalize(mountPath)
	for _, m := range t.mounts {
		if m.path == mountPath {
			return errAlreadyMounted
		}
	}
	if err := driver.Mount(dev); err != nil {
		return err
	}
	t.mounts = append(t.mounts, mountEntry{path: mountPath, driver: driver, dev: dev})
	return nil
}

// Unmount detaches the volume mounted at mountPath.
func (t *MountTable) Unmount(mountPath string) *kernel.Error {
	mountPath = normalize(mountPath)
	for i, m := range t.mounts {
		if m.path == mountPath {
			if err := m.driver.Unmount(m.dev); err != nil {
				return err
			}
			t.mounts = append(t.mounts[:i], t.mounts[i+1:]...)
			return nil
		}
	}
	return errNoMount
}

// Resolve finds the mount covering path and returns its driver/device plus
// the path relative to that mount (what the driver itself should resolve).
func (t *MountTable) Resolve(path string) (Driver, BlockDevice, string, *kernel.Error) {
	path = normalize(path)

	var best *mountEntry
	for i := range t.mounts {
		m := &t.mounts[i]
		if path == m.path || strings.HasPrefix(path, m.path+"/") || m.path == "/" {
			if best == nil || len(m.path) > len(best.path) {
				best = m
			}
		}
	}
	if best == nil {
		return nil, nil, "", errNoMount
	}

	rel := strings.TrimPrefix(path, best.path)
	rel = "/" + strings.TrimPrefix(rel, "/")
	return best.driver, best.dev, rel, nil
}

// Create resolves path and delegates to the owning driver.
func (t *MountTable) Create(path string, attrs CreateAttrs) *kernel.Error {
	driver, dev, rel, err := t.Resolve(path)
	if err != nil {
		return err
	}
	if !driver.IsValidFilePath(rel) {
		return errBadPath
	}
	return driver.Create(dev, rel, attrs)
}

// Open resolves path and delegates to the owning driver.
func (t *MountTable) Open(path string, mode OpenMode, onClose func()) (Node, *kernel.Error) {
	driver, dev, rel, err := t.Resolve(path)
	if err != nil {
		return nil, err
	}
	return driver.Open(dev, "", rel, mode, onClose)
}

// FindNode resolves path and delegates to the owning driver.
func (t *MountTable) FindNode(path string) (NodeInfo, *kernel.Error) {
	driver, dev, rel, err := t.Resolve(path)
	if err != nil {
		return NodeInfo{}, err
	}
	return driver.FindNode(dev, rel)
}

// DeleteNode resolves path and delegates to the owning driver.
func (t *MountTable) DeleteNode(path string) *kernel.Error {
	driver, dev, rel, err := t.Resolve(path)
	if err != nil {
		return err
	}
	return driver.DeleteNode(dev, rel)
}

// OpenDirectoryStream resolves path and delegates to the owning driver.
func (t *MountTable) OpenDirectoryStream(path string, onClose func()) (DirectoryStream, *kernel.Error) {
	driver, dev, rel, err := t.Resolve(path)
	if err != nil {
		return nil, err
	}
	return driver.OpenDirectoryStream(dev, rel, onClose)
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

// SplitPath splits an absolute path into its slash-separated components,
// discarding empty segments ("" from a leading/trailing/doubled slash).
func SplitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
