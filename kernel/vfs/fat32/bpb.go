// Package fat32 implements the VFS driver for Microsoft FAT32 volumes:
// BIOS parameter block handling, FAT table maintenance, short/long file
// name directory entries, and the Node/DirectoryStream objects the VFS
// mount table drives.
package fat32

import "encoding/binary"

// OEMName is stamped into every volume this engine formats.
const OEMName = "runeOS  "

// ReservedSectorCount and FATCount are the values this engine formats new
// volumes with. Mount rejects a volume whose OEM name is not OEMName or whose
// FAT count is not FATCount; the reserved sector count is taken from the
// on-disk BPB.
const (
	ReservedSectorCount = 32
	FATCount            = 2
	BootSignature       = 0x55AA
	BackupBootSector    = 6
	RootCluster         = 2
)

// bpbSize is the length of the BIOS parameter block region at the start of
// sector 0 that this engine reads/writes; the remainder of the sector
// (boot code, up to offset 510) is left untouched.
const bpbSize = 90

// BIOSParameterBlock is the decoded BPB + FAT32 extended BPB occupying the
// first 90 bytes of LBA 0 (and its backup at BackupBootSector), per the
// Microsoft FAT32 File System Specification.
type BIOSParameterBlock struct {
	JmpBoot             [3]byte
	OEMName             [8]byte
	BytesPerSector      uint16
	SectorsPerCluster   uint8
	ReservedSectorCount uint16
	FATCount            uint8
	RootEntryCount      uint16
	TotalSectors16      uint16
	MediaDescriptor     uint8
	FATSize16           uint16
	SectorsPerTrack     uint16
	HeadCount           uint16
	HiddenSectorCount   uint32
	TotalSectors32      uint32

	FATSize32        uint32
	Flags            uint16
	FATVersion       uint16
	RootCluster      uint32
	FSInfoSector     uint16
	BackupBootSector uint16
	DriveNumber      uint8
	Signature        uint8
	VolumeID         uint32
	VolumeLabel      [11]byte
	SystemID         [8]byte
}

// DecodeBPB parses a BIOSParameterBlock out of a sector-sized buffer read
// from LBA 0 (or the backup boot sector).
func DecodeBPB(b []byte) BIOSParameterBlock {
	var bpb BIOSParameterBlock
	copy(bpb.JmpBoot[:], b[0:3])
	copy(bpb.OEMName[:], b[3:11])
	bpb.BytesPerSector = binary.LittleEndian.Uint16(b[11:13])
	bpb.SectorsPerCluster = b[13]
	bpb.ReservedSectorCount = binary.LittleEndian.Uint16(b[14:16])
	bpb.FATCount = b[16]
	bpb.RootEntryCount = binary.LittleEndian.Uint16(b[17:19])
	bpb.TotalSectors16 = binary.LittleEndian.Uint16(b[19:21])
	bpb.MediaDescriptor = b[21]
	bpb.FATSize16 = binary.LittleEndian.Uint16(b[22:24])
	bpb.SectorsPerTrack = binary.LittleEndian.Uint16(b[24:26])
	bpb.HeadCount = binary.LittleEndian.Uint16(b[26:28])
	bpb.HiddenSectorCount = binary.LittleEndian.Uint32(b[28:32])
	bpb.TotalSectors32 = binary.LittleEndian.Uint32(b[32:36])

	bpb.FATSize32 = binary.LittleEndian.Uint32(b[36:40])
	bpb.Flags = binary.LittleEndian.Uint16(b[40:42])
	bpb.FATVersion = binary.LittleEndian.Uint16(b[42:44])
	bpb.RootCluster = binary.LittleEndian.Uint32(b[44:48])
	bpb.FSInfoSector = binary.LittleEndian.Uint16(b[48:50])
	bpb.BackupBootSector = binary.LittleEndian.Uint16(b[50:52])
	bpb.DriveNumber = b[64]
	bpb.Signature = b[66]
	bpb.VolumeID = binary.LittleEndian.Uint32(b[67:71])
	copy(bpb.VolumeLabel[:], b[71:82])
	copy(bpb.SystemID[:], b[82:90])
	return bpb
}

// Encode writes bpb into a sector-sized buffer at the BPB offsets and
// stamps the 0x55AA boot signature (byte 510 = 0x55, byte 511 = 0xAA),
// leaving the boot code in between untouched.
func (bpb BIOSParameterBlock) Encode(b []byte) {
	copy(b[0:3], bpb.JmpBoot[:])
	copy(b[3:11], bpb.OEMName[:])
	binary.LittleEndian.PutUint16(b[11:13], bpb.BytesPerSector)
	b[13] = bpb.SectorsPerCluster
	binary.LittleEndian.PutUint16(b[14:16], bpb.ReservedSectorCount)
	b[16] = bpb.FATCount
	binary.LittleEndian.PutUint16(b[17:19], bpb.RootEntryCount)
	binary.LittleEndian.PutUint16(b[19:21], bpb.TotalSectors16)
	b[21] = bpb.MediaDescriptor
	binary.LittleEndian.PutUint16(b[22:24], bpb.FATSize16)
	binary.LittleEndian.PutUint16(b[24:26], bpb.SectorsPerTrack)
	binary.LittleEndian.PutUint16(b[26:28], bpb.HeadCount)
	binary.LittleEndian.PutUint32(b[28:32], bpb.HiddenSectorCount)
	binary.LittleEndian.PutUint32(b[32:36], bpb.TotalSectors32)

	binary.LittleEndian.PutUint32(b[36:40], bpb.FATSize32)
	binary.LittleEndian.PutUint16(b[40:42], bpb.Flags)
	binary.LittleEndian.PutUint16(b[42:44], bpb.FATVersion)
	binary.LittleEndian.PutUint32(b[44:48], bpb.RootCluster)
	binary.LittleEndian.PutUint16(b[48:50], bpb.FSInfoSector)
	binary.LittleEndian.PutUint16(b[50:52], bpb.BackupBootSector)
	b[64] = bpb.DriveNumber
	b[66] = bpb.Signature
	binary.LittleEndian.PutUint32(b[67:71], bpb.VolumeID)
	copy(b[71:82], bpb.VolumeLabel[:])
	copy(b[82:90], bpb.SystemID[:])
	binary.BigEndian.PutUint16(b[510:512], BootSignature)
}

// NewBootRecord builds the BPB for a freshly formatted volume: one sector
// per cluster, two FAT copies, 32 reserved sectors, FAT size sized to just
// cover the remaining clusters.
func NewBootRecord(sectorSize, sectorCount uint32) BIOSParameterBlock {
	bpb := BIOSParameterBlock{
		JmpBoot:             [3]byte{0xEB, 0x58, 0x90},
		BytesPerSector:      uint16(sectorSize),
		SectorsPerCluster:   1,
		ReservedSectorCount: ReservedSectorCount,
		FATCount:            FATCount,
		MediaDescriptor:     0xF8,
		TotalSectors32:      sectorCount,
		RootCluster:         RootCluster,
		FSInfoSector:        1,
		BackupBootSector:    BackupBootSector,
		DriveNumber:         0x80,
		Signature:           0x29,
		VolumeLabel:         [11]byte{'N', 'O', ' ', 'N', 'A', 'M', 'E', ' ', ' ', ' ', ' '},
		SystemID:            [8]byte{'F', 'A', 'T', '3', '2', ' ', ' ', ' '},
	}
	copy(bpb.OEMName[:], OEMName)

	nonReserved := sectorCount - ReservedSectorCount
	clusters := nonReserved / uint32(bpb.SectorsPerCluster)
	fatSize := divRoundUp(clusters, sectorSize/4)
	fatSize -= divRoundUp(fatSize, sectorSize) * uint32(bpb.SectorsPerCluster) * FATCount
	bpb.FATSize32 = fatSize
	return bpb
}

func divRoundUp(a, b uint32) uint32 {
	return (a + b - 1) / b
}

// FATSize is the size in sectors of a single FAT copy.
func (bpb BIOSParameterBlock) FATSize() uint32 { return bpb.FATSize32 }

// MaxClusterCount is the ceiling on cluster indices this engine supports,
// matching FAT32's 28-bit cluster number space.
const MaxClusterCount = 0x0FFFFFF0

// EOFMarker terminates a FAT chain.
const EOFMarker = 0xFFFFFFFF
