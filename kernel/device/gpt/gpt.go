// Package gpt scans a block device's GUID Partition Table: the header at
// LBA 1, CRC-32-verified, followed by its 128-entry partition array.
package gpt

import (
	"hash/crc32"

	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/ahci"
)

const (
	headerLBA        = 1
	gptSignature     = 0x5452415020494645 // "EFI PART", little-endian U64
	headerSize       = 92
	partitionEntrySize = 128
	maxPartitionEntries = 128
)

// GUID is a 16-byte identifier as laid out on disk (RFC 4122 mixed-endian
// encoding; compared byte-for-byte against the vendor constants below, so
// no endianness conversion is needed here).
type GUID [16]byte

// runeOS's own partition-type GUIDs (Kernel/Include/Device/AHCI/PortEngine.h
// upstream), reused unchanged.
var (
	PartitionTypeGUID = GUID{0x5d, 0x45, 0xa4, 0x8f, 0x55, 0x2d, 0xba, 0x45, 0x8b, 0xca, 0xcb, 0xce, 0xdf, 0x48, 0xbd, 0xf6}
	KernelGUID         = GUID{0x33, 0x05, 0x3f, 0x4d, 0x2a, 0x90, 0x42, 0x46, 0xb1, 0x25, 0x72, 0x8c, 0x91, 0x0c, 0x1f, 0x79}
	DataGUID           = GUID{0x73, 0xb2, 0x74, 0x75, 0x03, 0x95, 0x83, 0x4d, 0x86, 0x17, 0x67, 0x8d, 0x4c, 0x2d, 0x30, 0xc0}
)

// ScanStatus is the outcome of a single ScanDevice call.
type ScanStatus uint8

const (
	Detected ScanStatus = iota
	NotDetected
	CorruptHeader
	CorruptPartitionTable
	StorageDeviceError
)

var scanStatusName = [...]string{"Detected", "NotDetected", "CorruptHeader", "CorruptPartitionTable", "StorageDeviceError"}

func (s ScanStatus) String() string {
	if int(s) >= len(scanStatusName) {
		return "Unknown"
	}
	return scanStatusName[s]
}

// Header is the decoded GPT header at LBA 1.
type Header struct {
	Signature               uint64
	Revision                uint32
	HeaderSize              uint32
	HeaderCRC32             uint32
	MyLBA                   uint64
	AlternateLBA            uint64
	FirstUsableLBA          uint64
	LastUsableLBA           uint64
	DiskGUID                GUID
	PartitionEntryLBA       uint64
	NumberOfPartitionEntries uint32
	SizeOfPartitionEntry    uint32
	PartitionEntryArrayCRC32 uint32
}

// PartitionEntry is one decoded row of the partition entry array.
type PartitionEntry struct {
	PartitionTypeGUID  GUID
	UniquePartitionGUID GUID
	StartingLBA        uint64
	EndingLBA          uint64
	Attributes         uint64
	Name               string
}

// ScanResult is the outcome of scanning a device for a GPT: Header and
// PartitionTable are only valid when Status == Detected.
type ScanResult struct {
	Status          ScanStatus
	Header          Header
	PartitionTable  []PartitionEntry
}

var errSectorRead = &kernel.Error{Module: "gpt", Message: "failed to read a sector from the block device"}

// ScanDevice reads LBA 1 off dev, verifies the header's signature and
// CRC-32, then reads and verifies the partition entry array.
func ScanDevice(dev ahci.BlockDevice) (ScanResult, *kernel.Error) {
	sectorSize := int(dev.SectorSize())

	headerBuf := make([]byte, sectorSize)
	if err := dev.ReadSectors(headerLBA, headerBuf); err != nil {
		return ScanResult{Status: StorageDeviceError}, errSectorRead
	}

	hdr := decodeHeader(headerBuf)
	if hdr.Signature != gptSignature {
		return ScanResult{Status: NotDetected}, nil
	}

	storedCRC := hdr.HeaderCRC32
	if !verifyHeaderCRC(headerBuf, hdr.HeaderSize, storedCRC) {
		return ScanResult{Status: CorruptHeader, Header: hdr}, nil
	}

	entryCount := int(hdr.NumberOfPartitionEntries)
	if entryCount > maxPartitionEntries {
		entryCount = maxPartitionEntries
	}
	entrySize := int(hdr.SizeOfPartitionEntry)
	if entrySize == 0 {
		entrySize = partitionEntrySize
	}
	tableBytes := entryCount * entrySize
	sectorsNeeded := (tableBytes + sectorSize - 1) / sectorSize
	tableBuf := make([]byte, sectorsNeeded*sectorSize)
	if err := dev.ReadSectors(hdr.PartitionEntryLBA, tableBuf); err != nil {
		return ScanResult{Status: StorageDeviceError, Header: hdr}, errSectorRead
	}

	if crc32.ChecksumIEEE(tableBuf[:tableBytes]) != hdr.PartitionEntryArrayCRC32 {
		return ScanResult{Status: CorruptPartitionTable, Header: hdr}, nil
	}

	entries := make([]PartitionEntry, 0, entryCount)
	for i := 0; i < entryCount; i++ {
		raw := tableBuf[i*entrySize : i*entrySize+entrySize]
		if isZeroGUID(raw[:16]) {
			continue
		}
		entries = append(entries, decodePartitionEntry(raw))
	}

	return ScanResult{Status: Detected, Header: hdr, PartitionTable: entries}, nil
}

func decodeHeader(b []byte) Header {
	return Header{
		Signature:                le64(b[0:8]),
		Revision:                 le32(b[8:12]),
		HeaderSize:               le32(b[12:16]),
		HeaderCRC32:              le32(b[16:20]),
		MyLBA:                    le64(b[24:32]),
		AlternateLBA:             le64(b[32:40]),
		FirstUsableLBA:           le64(b[40:48]),
		LastUsableLBA:            le64(b[48:56]),
		DiskGUID:                 guidAt(b[56:72]),
		PartitionEntryLBA:        le64(b[72:80]),
		NumberOfPartitionEntries: le32(b[80:84]),
		SizeOfPartitionEntry:     le32(b[84:88]),
		PartitionEntryArrayCRC32: le32(b[88:92]),
	}
}

func decodePartitionEntry(b []byte) PartitionEntry {
	nameBuf := b[56:128]
	return PartitionEntry{
		PartitionTypeGUID:   guidAt(b[0:16]),
		UniquePartitionGUID: guidAt(b[16:32]),
		StartingLBA:         le64(b[32:40]),
		EndingLBA:           le64(b[40:48]),
		Attributes:          le64(b[48:56]),
		Name:                decodeUTF16LEName(nameBuf),
	}
}

// verifyHeaderCRC recomputes the header's CRC-32 over headerSize bytes with
// the stored HeaderCRC32 field zeroed, per the UEFI spec's definition of
// the field.
func verifyHeaderCRC(headerBuf []byte, headerSize uint32, storedCRC uint32) bool {
	if int(headerSize) > len(headerBuf) || headerSize < 92 {
		return false
	}
	scratch := make([]byte, headerSize)
	copy(scratch, headerBuf[:headerSize])
	scratch[16], scratch[17], scratch[18], scratch[19] = 0, 0, 0, 0
	return crc32.ChecksumIEEE(scratch) == storedCRC
}

func guidAt(b []byte) GUID {
	var g GUID
	copy(g[:], b)
	return g
}

func isZeroGUID(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// decodeUTF16LEName decodes a UTF-16LE partition name, supporting ASCII
// code points only.
func decodeUTF16LEName(b []byte) string {
	out := make([]byte, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		lo, hi := b[i], b[i+1]
		if lo == 0 && hi == 0 {
			break
		}
		if hi != 0 {
			out = append(out, '?')
			continue
		}
		out = append(out, lo)
	}
	return string(out)
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
