package ahci

import "testing"

func TestReadDMAExtendedFISEncodesLBAAndCount(t *testing.T) {
	fis := ReadDMAExtendedFIS(0x123456789A, 7)

	if fis.Command != CommandReadDMAExtended {
		t.Fatalf("expected READ DMA EXT command; got %#x", fis.Command)
	}
	if fis.PMPortAndC&(1<<7) == 0 {
		t.Fatal("expected the C bit to be set for a command FIS")
	}
	if fis.Device != deviceReadDMAExt {
		t.Fatalf("expected Device=%#x; got %#x", deviceReadDMAExt, fis.Device)
	}
	if fis.LBALow != 0x9A || fis.LBAMid != 0x78 || fis.LBAHigh != 0x56 {
		t.Fatalf("unexpected low LBA bytes: %#x %#x %#x", fis.LBALow, fis.LBAMid, fis.LBAHigh)
	}
	if fis.LBALowExt != 0x34 || fis.LBAMidExt != 0x12 || fis.LBAHighExt != 0x00 {
		t.Fatalf("unexpected extended LBA bytes: %#x %#x %#x", fis.LBALowExt, fis.LBAMidExt, fis.LBAHighExt)
	}
	if fis.Count != 7 {
		t.Fatalf("expected Count=7; got %d", fis.Count)
	}
}

func TestWriteDMAExtendedFISUsesWriteCommand(t *testing.T) {
	fis := WriteDMAExtendedFIS(0, 1)
	if fis.Command != CommandWriteDMAExtended {
		t.Fatalf("expected WRITE DMA EXT command; got %#x", fis.Command)
	}
}

func TestIdentifyDeviceFIS(t *testing.T) {
	fis := IdentifyDeviceFIS()
	if fis.Command != CommandIdentifyDevice {
		t.Fatalf("expected IDENTIFY DEVICE command; got %#x", fis.Command)
	}
}

func TestCommandHeaderSetCommandFIS(t *testing.T) {
	var h CommandHeader
	h.SetCommandFIS(false)
	if h.Flags != commandFISSizeDwords {
		t.Fatalf("expected Flags=%d for a read; got %d", commandFISSizeDwords, h.Flags)
	}

	h.SetCommandFIS(true)
	if h.Flags != commandFISSizeDwords|chWriteBit {
		t.Fatalf("expected the write bit to be set; got %#x", h.Flags)
	}
}
