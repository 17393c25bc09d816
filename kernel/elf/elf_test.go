package elf

import (
	"encoding/binary"
	"testing"
)

const testUserSpaceEnd = uintptr(0x0000800000000000)

// buildImage assembles a minimal but well-formed ELF64 EXEC image with one
// LOAD segment and, optionally, a vendor NOTE segment.
func buildImage(t *testing.T, entry uint64, loadVaddr uint64, fileBytes []byte, memSize uint64, withNote bool) []byte {
	t.Helper()

	var phCount uint16 = 1
	var note []byte
	if withNote {
		note = EncodeVendorNote("runeOS", 1, 2, 3)
		phCount = 2
	}

	phOff := uint64(headerSize)
	loadOff := phOff + uint64(phCount)*programHeaderSize
	noteOff := loadOff + uint64(len(fileBytes))

	buf := make([]byte, noteOff+uint64(len(note)))
	buf[0], buf[1], buf[2], buf[3] = 0x7F, 'E', 'L', 'F'
	buf[4] = class64
	binary.LittleEndian.PutUint16(buf[16:18], typeExec)
	binary.LittleEndian.PutUint64(buf[24:32], entry)
	binary.LittleEndian.PutUint64(buf[32:40], phOff)
	binary.LittleEndian.PutUint16(buf[54:56], programHeaderSize)
	binary.LittleEndian.PutUint16(buf[56:58], phCount)

	writeProgramHeader(buf[phOff:phOff+programHeaderSize], ProgramHeader{
		Type:           segmentLoad,
		Flags:          PermRead | PermExecute,
		Offset:         loadOff,
		VirtualAddress: loadVaddr,
		FileSize:       uint64(len(fileBytes)),
		MemorySize:     memSize,
	})
	copy(buf[loadOff:], fileBytes)

	if withNote {
		writeProgramHeader(buf[phOff+programHeaderSize:phOff+2*programHeaderSize], ProgramHeader{
			Type:       segmentNote,
			Offset:     noteOff,
			FileSize:   uint64(len(note)),
			MemorySize: uint64(len(note)),
		})
		copy(buf[noteOff:], note)
	}

	return buf
}

func writeProgramHeader(b []byte, ph ProgramHeader) {
	binary.LittleEndian.PutUint32(b[0:4], ph.Type)
	binary.LittleEndian.PutUint32(b[4:8], ph.Flags)
	binary.LittleEndian.PutUint64(b[8:16], ph.Offset)
	binary.LittleEndian.PutUint64(b[16:24], ph.VirtualAddress)
	binary.LittleEndian.PutUint64(b[40:48], ph.MemorySize)
	binary.LittleEndian.PutUint64(b[32:40], ph.FileSize)
}

func TestParseAcceptsWellFormedImage(t *testing.T) {
	data := buildImage(t, 0x1000, 0x1000, []byte{0x90, 0x90, 0x90}, 4096, false)

	img, err := Parse(data, testUserSpaceEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(img.Loads) != 1 {
		t.Fatalf("expected 1 LOAD segment; got %d", len(img.Loads))
	}
	if img.HasVendor {
		t.Fatal("expected no vendor info")
	}
	if img.Header.Entry != 0x1000 {
		t.Fatalf("expected entry 0x1000; got %#x", img.Header.Entry)
	}
}

func TestParseDecodesVendorNote(t *testing.T) {
	data := buildImage(t, 0x1000, 0x1000, []byte{0x90}, 4096, true)

	img, err := Parse(data, testUserSpaceEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !img.HasVendor {
		t.Fatal("expected vendor info to be present")
	}
	if img.Vendor.Name != "runeOS" {
		t.Fatalf("expected vendor name 'runeOS'; got %q", img.Vendor.Name)
	}
	if img.Vendor.Major != 1 || img.Vendor.Minor != 2 || img.Vendor.Patch != 3 {
		t.Fatalf("expected version 1.2.3; got %d.%d.%d", img.Vendor.Major, img.Vendor.Minor, img.Vendor.Patch)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	data := buildImage(t, 0x1000, 0x1000, []byte{0x90}, 4096, false)
	data[0] = 0x00

	if _, err := Parse(data, testUserSpaceEnd); err != ErrBadHeader {
		t.Fatalf("expected ErrBadHeader; got %v", err)
	}
}

func TestParseRejectsEntryOutsideUserSpace(t *testing.T) {
	data := buildImage(t, uint64(testUserSpaceEnd), 0x1000, []byte{0x90}, 4096, false)

	if _, err := Parse(data, testUserSpaceEnd); err != ErrBadHeader {
		t.Fatalf("expected ErrBadHeader for out-of-range entry; got %v", err)
	}
}

func TestParseRejectsSegmentCrossingUserSpaceBoundary(t *testing.T) {
	data := buildImage(t, 0x1000, uint64(testUserSpaceEnd)-0x1000, []byte{0x90}, 0x2000, false)

	if _, err := Parse(data, testUserSpaceEnd); err != ErrBadSegment {
		t.Fatalf("expected ErrBadSegment; got %v", err)
	}
}

func TestParseRejectsMemorySizeSmallerThanFileSize(t *testing.T) {
	data := buildImage(t, 0x1000, 0x1000, []byte{0x90, 0x90, 0x90, 0x90}, 2, false)

	if _, err := Parse(data, testUserSpaceEnd); err != ErrBadSegment {
		t.Fatalf("expected ErrBadSegment; got %v", err)
	}
}

func TestParseRejectsImageWithNoLoadSegments(t *testing.T) {
	data := buildImage(t, 0x1000, 0x1000, nil, 0, false)
	// Overwrite the LOAD segment's type with something the loader skips.
	binary.LittleEndian.PutUint32(data[headerSize:headerSize+4], 0x70000000)

	if _, err := Parse(data, testUserSpaceEnd); err != ErrBadHeader {
		t.Fatalf("expected ErrBadHeader for no LOAD segments; got %v", err)
	}
}

func TestParseRejectsTruncatedFile(t *testing.T) {
	data := buildImage(t, 0x1000, 0x1000, []byte{0x90, 0x90}, 4096, false)

	if _, err := Parse(data[:len(data)-1], testUserSpaceEnd); err != ErrIOError {
		t.Fatalf("expected ErrIOError for truncated file; got %v", err)
	}
}

func TestVendorNoteRoundTripsForAnyName(t *testing.T) {
	for _, name := range []string{"a", "runeOS", "some-long-vendor-name-here"} {
		note := EncodeVendorNote(name, 9, 8, 7)
		data := buildImage(t, 0x1000, 0x1000, []byte{0x90}, 4096, false)
		// The note bytes are decoded directly with decodeVendorNote, not
		// spliced into data and run through Parse.
		_ = data
		ph := ProgramHeader{Type: segmentNote, Offset: 0, FileSize: uint64(len(note))}
		got, err := decodeVendorNote(note, ph)
		if err != nil {
			t.Fatalf("unexpected error decoding %q: %v", name, err)
		}
		if got.Name != name || got.Major != 9 || got.Minor != 8 || got.Patch != 7 {
			t.Fatalf("round trip mismatch for %q: got %+v", name, got)
		}
	}
}
