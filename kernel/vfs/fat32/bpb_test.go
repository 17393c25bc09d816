package fat32

import "testing"

func TestEncodeDecodeBPBRoundTrips(t *testing.T) {
	bpb := NewBootRecord(512, 65536)
	buf := make([]byte, 512)
	bpb.Encode(buf)

	got := DecodeBPB(buf)
	if string(got.OEMName[:]) != OEMName {
		t.Fatalf("expected OEM %q; got %q", OEMName, got.OEMName)
	}
	if got.BytesPerSector != 512 {
		t.Fatalf("expected BytesPerSector=512; got %d", got.BytesPerSector)
	}
	if got.FATCount != FATCount {
		t.Fatalf("expected FATCount=%d; got %d", FATCount, got.FATCount)
	}
	if got.ReservedSectorCount != ReservedSectorCount {
		t.Fatalf("expected ReservedSectorCount=%d; got %d", ReservedSectorCount, got.ReservedSectorCount)
	}
	if got.RootCluster != RootCluster {
		t.Fatalf("expected RootCluster=%d; got %d", RootCluster, got.RootCluster)
	}
	if got.TotalSectors32 != 65536 {
		t.Fatalf("expected TotalSectors32=65536; got %d", got.TotalSectors32)
	}
}

func TestNewBootRecordSizesFATForClusterCount(t *testing.T) {
	bpb := NewBootRecord(512, 65536)
	if bpb.FATSize32 == 0 {
		t.Fatal("expected a non-zero FAT size")
	}
}
