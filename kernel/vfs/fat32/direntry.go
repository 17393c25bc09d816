package fat32

import (
	"encoding/binary"
	"strings"
)

// DirEntrySize is the size in bytes of every directory entry slot, short
// or long-file-name.
const DirEntrySize = 32

// Attribute bits of a short directory entry.
const (
	AttrReadonly     uint8 = 0x01
	AttrHidden       uint8 = 0x02
	AttrSystem       uint8 = 0x04
	AttrVolumeID     uint8 = 0x08
	AttrDirectory    uint8 = 0x10
	AttrArchive      uint8 = 0x20
	AttrLongFileName uint8 = AttrReadonly | AttrHidden | AttrSystem | AttrVolumeID
)

// Markers in byte 0 of a short entry's name field.
const (
	MarkEmptyEnd    byte = 0x00
	MarkEmptyMiddle byte = 0xE5
)

// lfnLastSlotBit marks the first LFN slot read (the one with the highest
// sequence number) in its Ord byte.
const lfnLastSlotBit uint8 = 0x40

// lfnCharsPerSlot is the number of UCS-2 code units a single LFN slot
// carries (5 + 6 + 2).
const lfnCharsPerSlot = 13

// ShortEntry is the 32-byte 8.3 directory entry.
type ShortEntry struct {
	Name            [11]byte
	Attributes      uint8
	NTReserved      uint8
	CreateTimeTenth uint8
	CreateTime      uint16
	CreateDate      uint16
	LastAccessDate  uint16
	FirstClusterHi  uint16
	WriteTime       uint16
	WriteDate       uint16
	FirstClusterLo  uint16
	FileSize        uint32
}

// DecodeShortEntry parses a 32-byte slot as a short entry.
func DecodeShortEntry(b []byte) ShortEntry {
	var e ShortEntry
	copy(e.Name[:], b[0:11])
	e.Attributes = b[11]
	e.NTReserved = b[12]
	e.CreateTimeTenth = b[13]
	e.CreateTime = binary.LittleEndian.Uint16(b[14:16])
	e.CreateDate = binary.LittleEndian.Uint16(b[16:18])
	e.LastAccessDate = binary.LittleEndian.Uint16(b[18:20])
	e.FirstClusterHi = binary.LittleEndian.Uint16(b[20:22])
	e.WriteTime = binary.LittleEndian.Uint16(b[22:24])
	e.WriteDate = binary.LittleEndian.Uint16(b[24:26])
	e.FirstClusterLo = binary.LittleEndian.Uint16(b[26:28])
	e.FileSize = binary.LittleEndian.Uint32(b[28:32])
	return e
}

// Encode writes e into a 32-byte slot.
func (e ShortEntry) Encode(b []byte) {
	copy(b[0:11], e.Name[:])
	b[11] = e.Attributes
	b[12] = e.NTReserved
	b[13] = e.CreateTimeTenth
	binary.LittleEndian.PutUint16(b[14:16], e.CreateTime)
	binary.LittleEndian.PutUint16(b[16:18], e.CreateDate)
	binary.LittleEndian.PutUint16(b[18:20], e.LastAccessDate)
	binary.LittleEndian.PutUint16(b[20:22], e.FirstClusterHi)
	binary.LittleEndian.PutUint16(b[22:24], e.WriteTime)
	binary.LittleEndian.PutUint16(b[24:26], e.WriteDate)
	binary.LittleEndian.PutUint16(b[26:28], e.FirstClusterLo)
	binary.LittleEndian.PutUint32(b[28:32], e.FileSize)
}

// IsEmptyEnd reports whether this slot and everything after it in the
// directory is unused.
func (e ShortEntry) IsEmptyEnd() bool { return e.Name[0] == MarkEmptyEnd }

// IsEmptyMiddle reports whether this slot was deleted but later slots may
// still be in use.
func (e ShortEntry) IsEmptyMiddle() bool { return e.Name[0] == MarkEmptyMiddle }

// IsLongFileName reports whether this 32-byte slot is actually an LFN
// slot rather than a short entry (LFN slots alias the Attributes byte to
// AttrLongFileName and the Name field is not a valid short name there).
func (e ShortEntry) IsLongFileName() bool { return e.Attributes&AttrLongFileName == AttrLongFileName }

// HasAttribute reports whether attr is set on e.
func (e ShortEntry) HasAttribute(attr uint8) bool { return e.Attributes&attr == attr }

// Cluster returns the first data cluster this entry points at.
func (e ShortEntry) Cluster() uint32 {
	return uint32(e.FirstClusterHi)<<16 | uint32(e.FirstClusterLo)
}

// SetCluster stores the first data cluster into FirstClusterHi/Lo.
func (e *ShortEntry) SetCluster(cluster uint32) {
	e.FirstClusterHi = uint16(cluster >> 16)
	e.FirstClusterLo = uint16(cluster)
}

// ShortName renders the packed 8.3 Name field back into a "NAME.EXT"
// string, trimming the space padding FAT uses.
func (e ShortEntry) ShortName() string {
	name := strings.TrimRight(string(e.Name[0:8]), " ")
	ext := strings.TrimRight(string(e.Name[8:11]), " ")
	if ext != "" {
		return name + "." + ext
	}
	return name
}

// Checksum computes the LFN checksum over the packed 11-byte short name,
// per the FAT32 specification's algorithm.
func (e ShortEntry) Checksum() uint8 {
	var sum uint8
	for _, c := range e.Name {
		rot := uint8(0)
		if sum&1 != 0 {
			rot = 0x80
		}
		sum = rot + (sum >> 1) + c
	}
	return sum
}

// LFNEntry is one 32-byte long-file-name slot.
type LFNEntry struct {
	Order    uint8
	Name1    [5]uint16
	Checksum uint8
	Name2    [6]uint16
	Name3    [2]uint16
}

// DecodeLFNEntry parses a 32-byte slot as an LFN entry.
func DecodeLFNEntry(b []byte) LFNEntry {
	var e LFNEntry
	e.Order = b[0]
	for i := 0; i < 5; i++ {
		e.Name1[i] = binary.LittleEndian.Uint16(b[1+2*i : 3+2*i])
	}
	e.Checksum = b[13]
	for i := 0; i < 6; i++ {
		e.Name2[i] = binary.LittleEndian.Uint16(b[14+2*i : 16+2*i])
	}
	for i := 0; i < 2; i++ {
		e.Name3[i] = binary.LittleEndian.Uint16(b[28+2*i : 30+2*i])
	}
	return e
}

// Encode writes e into a 32-byte slot.
func (e LFNEntry) Encode(b []byte) {
	b[0] = e.Order
	for i := 0; i < 5; i++ {
		binary.LittleEndian.PutUint16(b[1+2*i:3+2*i], e.Name1[i])
	}
	b[11] = AttrLongFileName
	b[12] = 0
	b[13] = e.Checksum
	for i := 0; i < 6; i++ {
		binary.LittleEndian.PutUint16(b[14+2*i:16+2*i], e.Name2[i])
	}
	binary.LittleEndian.PutUint16(b[26:28], 0)
	for i := 0; i < 2; i++ {
		binary.LittleEndian.PutUint16(b[28+2*i:30+2*i], e.Name3[i])
	}
}

// SequenceNumber is Order with the last-slot bit masked off.
func (e LFNEntry) SequenceNumber() uint8 { return e.Order &^ lfnLastSlotBit }

// IsLastSlot reports whether this is the first LFN slot physically read
// (highest sequence number, i.e. the tail of the name).
func (e LFNEntry) IsLastSlot() bool { return e.Order&lfnLastSlotBit != 0 }

// Chars returns the up-to-13 UCS-2 code units this slot encodes, stopping
// at a 0x0000 terminator (0xFFFF padding past the terminator is dropped).
func (e LFNEntry) Chars() []uint16 {
	all := make([]uint16, 0, lfnCharsPerSlot)
	all = append(all, e.Name1[:]...)
	all = append(all, e.Name2[:]...)
	all = append(all, e.Name3[:]...)
	out := make([]uint16, 0, lfnCharsPerSlot)
	for _, c := range all {
		if c == 0x0000 {
			break
		}
		out = append(out, c)
	}
	return out
}

// BuildLFNChain splits name into the reverse-ordered run of LFN slots
// (last slot first, as they are written to disk) needed to encode it,
// stamping each with checksum and sequence number/last-slot bit.
func BuildLFNChain(name string, checksum uint8) []LFNEntry {
	units := utf16Encode(name)
	slotCount := (len(units) + lfnCharsPerSlot - 1) / lfnCharsPerSlot
	if slotCount == 0 {
		slotCount = 1
	}
	entries := make([]LFNEntry, slotCount)
	for i := 0; i < slotCount; i++ {
		start := i * lfnCharsPerSlot
		var slot [lfnCharsPerSlot]uint16
		for j := range slot {
			slot[j] = 0xFFFF
		}
		terminated := false
		for j := 0; j < lfnCharsPerSlot; j++ {
			idx := start + j
			if idx < len(units) {
				slot[j] = units[idx]
			} else if !terminated {
				slot[j] = 0x0000
				terminated = true
			}
		}
		e := LFNEntry{
			Order:    uint8(i + 1),
			Checksum: checksum,
		}
		copy(e.Name1[:], slot[0:5])
		copy(e.Name2[:], slot[5:11])
		copy(e.Name3[:], slot[11:13])
		entries[slotCount-1-i] = e
	}
	entries[0].Order |= lfnLastSlotBit
	return entries
}

// AssembleLongName reconstructs a long name from its LFN slots, which must
// already be in on-disk order (last slot first).
func AssembleLongName(slots []LFNEntry) string {
	var units []uint16
	for i := len(slots) - 1; i >= 0; i-- {
		units = append(units, slots[i].Chars()...)
	}
	return utf16Decode(units)
}

func utf16Encode(s string) []uint16 {
	out := make([]uint16, 0, len(s))
	for _, r := range s {
		if r <= 0xFFFF {
			out = append(out, uint16(r))
			continue
		}
		r -= 0x10000
		out = append(out, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
	}
	return out
}

func utf16Decode(u []uint16) string {
	var b strings.Builder
	for i := 0; i < len(u); i++ {
		r := u[i]
		if r >= 0xD800 && r <= 0xDBFF && i+1 < len(u) && u[i+1] >= 0xDC00 && u[i+1] <= 0xDFFF {
			c := (rune(r)-0xD800)<<10 + (rune(u[i+1]) - 0xDC00) + 0x10000
			b.WriteRune(c)
			i++
			continue
		}
		b.WriteRune(rune(r))
	}
	return b.String()
}

// illegalShortNameChars mirrors FAT's reserved characters for the 8.3
// region, dropped when deriving a short name from a long one.
const illegalShortNameChars = "\"*+,./:;<=>?[\\]|"

// MakeShortName derives an 8.3 short name for longName, numbered with the
// K-th collision suffix ("~K") when collision > 0. The result is exactly
// 11 bytes: 8-byte name field + 3-byte extension field, space padded.
func MakeShortName(longName string, collision int) [11]byte {
	base := longName
	ext := ""
	if dot := strings.LastIndex(longName, "."); dot > 0 {
		base = longName[:dot]
		ext = longName[dot+1:]
	}

	base = stripIllegal(strings.ToUpper(base))
	ext = stripIllegal(strings.ToUpper(ext))
	if len(ext) > 3 {
		ext = ext[:3]
	}

	mainLen := 8
	if collision > 0 {
		suffix := "~" + itoa(collision)
		mainLen = 8 - len(suffix)
		if len(base) > mainLen {
			base = base[:mainLen]
		}
		base += suffix
	} else if len(base) > 6 {
		base = base[:6]
	}

	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[0:8], base)
	copy(out[8:11], ext)
	return out
}

func stripIllegal(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c == ' ' || strings.ContainsRune(illegalShortNameChars, c) {
			continue
		}
		if c > 0x7E {
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
