// Package elf parses and loads ELF64 LSB executables: the header, its LOAD
// program headers and one optional vendor NOTE. Parsing
// (this file) is pure byte-slice decoding in the same style the vfs/fat32
// package uses for its on-disk structures; kernel memory and address-space
// changes live in load.go.
package elf

import (
	"encoding/binary"

	"github.com/Ewogijk/runeOS-sub002/kernel"
)

// class64 is the only ELF class this loader accepts.
const class64 = 2

// typeExec is the only object file type this loader accepts: a final,
// statically linked executable ready to run, not a relocatable or shared
// object.
const typeExec = 2

// Segment types this loader recognizes in a program header; all others are
// skipped.
const (
	segmentLoad = 1
	segmentNote = 4
)

// Segment permission bits, ORed into ProgramHeader.Flags.
const (
	PermExecute = 0x1
	PermWrite   = 0x2
	PermRead    = 0x4
)

// headerSize is the on-disk size of an ELF64 header.
const headerSize = 64

// programHeaderSize is the on-disk size of one ELF64 program header entry.
const programHeaderSize = 56

// Header is the subset of the ELF64 file header this loader consults.
type Header struct {
	Type                   uint16
	Machine                uint16
	Entry                  uint64
	ProgramHeaderOffset    uint64
	ProgramHeaderEntrySize uint16
	ProgramHeaderCount     uint16
}

// ProgramHeader is one ELF64 program header entry.
type ProgramHeader struct {
	Type           uint32
	Flags          uint32
	Offset         uint64
	VirtualAddress uint64
	FileSize       uint64
	MemorySize     uint64
}

// Readable, Writable and Executable report the segment's requested page
// protection, translated to {R,W,X} page permissions at load time.
func (ph ProgramHeader) Readable() bool   { return ph.Flags&PermRead != 0 }
func (ph ProgramHeader) Writable() bool   { return ph.Flags&PermWrite != 0 }
func (ph ProgramHeader) Executable() bool { return ph.Flags&PermExecute != 0 }

// VendorInfo is the vendor name and three-part version carried by the
// image's optional NOTE program header.
type VendorInfo struct {
	Name  string
	Major uint16
	Minor uint16
	Patch uint16
}

// Image is a fully parsed and validated ELF64 executable: the header, its
// LOAD segments and, if present, its vendor NOTE.
type Image struct {
	Header    Header
	Loads     []ProgramHeader
	Vendor    VendorInfo
	HasVendor bool
}

var (
	// ErrBadHeader covers a malformed magic, class, object type, entry
	// point or program header table.
	ErrBadHeader = &kernel.Error{Module: "elf", Message: "ELF header is malformed or unsupported"}

	// ErrBadSegment covers a LOAD segment that does not lie entirely in
	// user space, or whose memory size is smaller than its file size.
	ErrBadSegment = &kernel.Error{Module: "elf", Message: "a LOAD segment is out of bounds or malformed"}

	// ErrBadVendorInfo covers a NOTE program header whose payload does
	// not decode as a vendor name plus major/minor/patch version.
	ErrBadVendorInfo = &kernel.Error{Module: "elf", Message: "vendor NOTE segment is malformed"}

	// ErrIOError is returned when the backing file is too short to
	// contain what the header/program headers claim.
	ErrIOError = &kernel.Error{Module: "elf", Message: "executable file is truncated"}
)

// Parse validates and decodes data as an ELF64 LSB EXEC image whose entry
// point and every LOAD segment lie below userSpaceEnd, the system-call
// gate's kernel-memory threshold.
func Parse(data []byte, userSpaceEnd uintptr) (*Image, *kernel.Error) {
	if len(data) < headerSize {
		return nil, ErrBadHeader
	}
	if data[0] != 0x7F || data[1] != 'E' || data[2] != 'L' || data[3] != 'F' {
		return nil, ErrBadHeader
	}
	if data[4] != class64 {
		return nil, ErrBadHeader
	}

	hdr := Header{
		Type:                   binary.LittleEndian.Uint16(data[16:18]),
		Machine:                binary.LittleEndian.Uint16(data[18:20]),
		Entry:                  binary.LittleEndian.Uint64(data[24:32]),
		ProgramHeaderOffset:    binary.LittleEndian.Uint64(data[32:40]),
		ProgramHeaderEntrySize: binary.LittleEndian.Uint16(data[54:56]),
		ProgramHeaderCount:     binary.LittleEndian.Uint16(data[56:58]),
	}
	if hdr.Type != typeExec {
		return nil, ErrBadHeader
	}
	if uintptr(hdr.Entry) >= userSpaceEnd {
		return nil, ErrBadHeader
	}
	if hdr.ProgramHeaderEntrySize != programHeaderSize {
		return nil, ErrBadHeader
	}

	tableEnd := hdr.ProgramHeaderOffset + uint64(hdr.ProgramHeaderCount)*uint64(hdr.ProgramHeaderEntrySize)
	if tableEnd > uint64(len(data)) {
		return nil, ErrIOError
	}

	img := &Image{Header: hdr}
	for i := uint16(0); i < hdr.ProgramHeaderCount; i++ {
		off := hdr.ProgramHeaderOffset + uint64(i)*uint64(hdr.ProgramHeaderEntrySize)
		ph := decodeProgramHeader(data[off : off+programHeaderSize])

		switch ph.Type {
		case segmentLoad:
			if ph.MemorySize < ph.FileSize {
				return nil, ErrBadSegment
			}
			end := ph.VirtualAddress + ph.MemorySize
			if end < ph.VirtualAddress || end > uint64(userSpaceEnd) {
				return nil, ErrBadSegment
			}
			if ph.Offset+ph.FileSize > uint64(len(data)) {
				return nil, ErrIOError
			}
			img.Loads = append(img.Loads, ph)
		case segmentNote:
			if ph.Offset+ph.FileSize > uint64(len(data)) {
				return nil, ErrIOError
			}
			if !img.HasVendor {
				vendor, err := decodeVendorNote(data, ph)
				if err != nil {
					return nil, err
				}
				img.Vendor = vendor
				img.HasVendor = true
			}
		}
	}

	if len(img.Loads) == 0 {
		return nil, ErrBadHeader
	}
	return img, nil
}

func decodeProgramHeader(b []byte) ProgramHeader {
	return ProgramHeader{
		Type:           binary.LittleEndian.Uint32(b[0:4]),
		Flags:          binary.LittleEndian.Uint32(b[4:8]),
		Offset:         binary.LittleEndian.Uint64(b[8:16]),
		VirtualAddress: binary.LittleEndian.Uint64(b[16:24]),
		FileSize:       binary.LittleEndian.Uint64(b[32:40]),
		MemorySize:     binary.LittleEndian.Uint64(b[40:48]),
	}
}

// noteVendorType tags this loader's vendor-info NOTE payload; it has no
// meaning outside this package, there being no other NOTE consumer.
const noteVendorType = 1

// decodeVendorNote decodes a NOTE segment's payload as
// {namesz u32}{descsz u32}{type u32}{name, 4-byte aligned}{major,minor,patch u16 each}.
func decodeVendorNote(data []byte, ph ProgramHeader) (VendorInfo, *kernel.Error) {
	body := data[ph.Offset : ph.Offset+ph.FileSize]
	if len(body) < 12 {
		return VendorInfo{}, ErrBadVendorInfo
	}

	nameSize := binary.LittleEndian.Uint32(body[0:4])
	descSize := binary.LittleEndian.Uint32(body[4:8])
	noteType := binary.LittleEndian.Uint32(body[8:12])
	if noteType != noteVendorType || descSize != 6 {
		return VendorInfo{}, ErrBadVendorInfo
	}

	nameStart := uint32(12)
	nameEnd := nameStart + nameSize
	if uint64(nameEnd) > uint64(len(body)) {
		return VendorInfo{}, ErrBadVendorInfo
	}
	name := string(body[nameStart:nameEnd])

	descStart := align4(nameEnd)
	descEnd := descStart + descSize
	if uint64(descEnd) > uint64(len(body)) {
		return VendorInfo{}, ErrBadVendorInfo
	}
	desc := body[descStart:descEnd]

	return VendorInfo{
		Name:  name,
		Major: binary.LittleEndian.Uint16(desc[0:2]),
		Minor: binary.LittleEndian.Uint16(desc[2:4]),
		Patch: binary.LittleEndian.Uint16(desc[4:6]),
	}, nil
}

func align4(n uint32) uint32 {
	return (n + 3) &^ 3
}

// EncodeVendorNote is the encoder counterpart of decodeVendorNote, used by
// test fixtures to build vendor NOTE payloads.
func EncodeVendorNote(name string, major, minor, patch uint16) []byte {
	nameEnd := align4(uint32(len(name)))
	buf := make([]byte, 12+int(nameEnd)+6)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(name)))
	binary.LittleEndian.PutUint32(buf[4:8], 6)
	binary.LittleEndian.PutUint32(buf[8:12], noteVendorType)
	copy(buf[12:12+len(name)], name)
	desc := buf[12+int(nameEnd):]
	binary.LittleEndian.PutUint16(desc[0:2], major)
	binary.LittleEndian.PutUint16(desc[2:4], minor)
	binary.LittleEndian.PutUint16(desc[4:6], patch)
	return buf
}
