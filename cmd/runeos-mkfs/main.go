// Command runeos-mkfs builds a FAT32 disk image from a host directory tree,
// driving kernel/vfs/fat32's on-disk layout code directly against a host
// file instead of a running kernel. It plays the same role for runeOS that
// biscuit's mkfs tool plays for biscuit: turn a "skeleton" directory into a
// bootable filesystem image at build time, before any kernel ever runs.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/vfs"
	"github.com/Ewogijk/runeOS-sub002/kernel/vfs/fat32"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[runeos-mkfs] error: %s\n", err.Error())
	os.Exit(1)
}

var errShortReadAt = errors.New("short read from disk image")

// hostDisk adapts an *os.File into a vfs.BlockDevice (and the fat32 package's
// unexported sectorCounter interface, via SectorCount) by translating
// LBA-addressed sector reads/writes into ReadAt/WriteAt calls against a flat
// host file. kernel/ahci.PortEngine plays the equivalent role over real AHCI
// hardware; this is its host-side counterpart for image-building tools.
type hostDisk struct {
	f           *os.File
	sectorSize  uint32
	sectorCount uint64
}

func createHostDisk(path string, sectorSize uint32, sectorCount uint64) (*hostDisk, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(sectorCount) * int64(sectorSize)); err != nil {
		f.Close()
		return nil, err
	}
	return &hostDisk{f: f, sectorSize: sectorSize, sectorCount: sectorCount}, nil
}

func (d *hostDisk) SectorSize() uint32 {
	return d.sectorSize
}

func (d *hostDisk) SectorCount() uint64 {
	return d.sectorCount
}

func (d *hostDisk) ReadSectors(lba uint64, buf []byte) *kernel.Error {
	n, err := d.f.ReadAt(buf, int64(lba)*int64(d.sectorSize))
	if err != nil && err != io.EOF {
		return &kernel.Error{Module: "runeos-mkfs", Message: err.Error()}
	}
	if n != len(buf) {
		return &kernel.Error{Module: "runeos-mkfs", Message: errShortReadAt.Error()}
	}
	return nil
}

func (d *hostDisk) WriteSectors(lba uint64, buf []byte) *kernel.Error {
	if _, err := d.f.WriteAt(buf, int64(lba)*int64(d.sectorSize)); err != nil {
		return &kernel.Error{Module: "runeos-mkfs", Message: err.Error()}
	}
	return nil
}

func (d *hostDisk) Close() error {
	return d.f.Close()
}

// copydata reads the host file at src in 64 KiB chunks and writes
// it into dst, already created inside the image at the given vfs path.
func copydata(driver *fat32.Driver, dev vfs.BlockDevice, src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	node, kerr := driver.Open(dev, "/", dst, vfs.ReadWrite, nil)
	if kerr != nil {
		return kerr
	}
	defer node.Close()

	buf := make([]byte, 64*1024)
	for {
		n, readErr := srcFile.Read(buf)
		if n > 0 {
			if _, kerr := node.Write(buf[:n]); kerr != nil {
				return kerr
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	return nil
}

// addTree walks skelDir on the host and replicates every directory and file
// it finds into dev's freshly-formatted volume, mirroring biscuit's mkfs
// addfiles/copydata pair but driving fat32.Driver directly instead of a
// BootFS handle.
func addTree(driver *fat32.Driver, dev vfs.BlockDevice, skelDir string) error {
	return filepath.WalkDir(skelDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access %q: %w", path, err)
		}

		rel := strings.TrimPrefix(filepath.ToSlash(strings.TrimPrefix(path, skelDir)), "/")
		if rel == "" {
			return nil
		}
		dst := "/" + rel

		if d.IsDir() {
			if kerr := driver.Create(dev, dst, vfs.CreateAttrs{Kind: vfs.Directory}); kerr != nil {
				return fmt.Errorf("mkdir %q: %w", dst, kerr)
			}
			return nil
		}

		if kerr := driver.Create(dev, dst, vfs.CreateAttrs{Kind: vfs.File}); kerr != nil {
			return fmt.Errorf("create %q: %w", dst, kerr)
		}
		if err := copydata(driver, dev, path, dst); err != nil {
			return fmt.Errorf("copy %q: %w", dst, err)
		}
		return nil
	})
}

func runTool() error {
	sizeMB := flag.Uint64("size-mb", 64, "capacity of the generated image in mebibytes")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "runeos-mkfs: build a FAT32 disk image from a host directory tree\n\n")
		fmt.Fprint(os.Stderr, "Usage: runeos-mkfs [options] <output image> <skel dir>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		return errors.New("expected exactly an output image path and a skeleton directory")
	}
	image := flag.Arg(0)
	skelDir := flag.Arg(1)

	if info, err := os.Stat(skelDir); err != nil || !info.IsDir() {
		return fmt.Errorf("%q is not a directory", skelDir)
	}

	const sectorSize = 512
	sectorCount := (*sizeMB * 1024 * 1024) / sectorSize

	dev, err := createHostDisk(image, sectorSize, sectorCount)
	if err != nil {
		return fmt.Errorf("creating %q: %w", image, err)
	}
	defer dev.Close()

	driver := fat32.New()
	if kerr := driver.Format(dev); kerr != nil {
		return fmt.Errorf("formatting %q: %w", image, kerr)
	}
	if kerr := driver.Mount(dev); kerr != nil {
		return fmt.Errorf("mounting %q: %w", image, kerr)
	}

	if err := addTree(driver, dev, skelDir); err != nil {
		return err
	}

	if kerr := driver.Unmount(dev); kerr != nil {
		return fmt.Errorf("unmounting %q: %w", image, kerr)
	}
	fmt.Printf("runeos-mkfs: wrote %q (%d MiB, skeleton %q)\n", image, *sizeMB, skelDir)
	return nil
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
