package ahci

import (
	"unsafe"

	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/timer"
)

// CommandSlotCount is the number of command slots AHCI guarantees every
// port implements (the HBA's CAP.NCS field may report fewer; runeOS only
// ever uses slot 0, so that is never a problem in practice).
const CommandSlotCount = 32

// SectorSize is the fixed logical sector size runeOS's AHCI backend
// assumes; 4Kn (4096-byte sector) drives are out of scope.
const SectorSize = 512

// maxPollIterations bounds the busy-wait for a command to complete, used
// only before kernel/timer is started (the boot-time GPT read has no clock
// to sleep against yet).
const maxPollIterations = 100_000_000

const (
	// pollSliceNanos is how long each sleep-based poll increment waits
	// before re-checking the completion condition, once the timer is
	// running.
	pollSliceNanos = 1_000_000

	// pollDeadlineNanos bounds the total time a sleep-based poll will wait
	// for a command to complete before giving up.
	pollDeadlineNanos = 5_000_000_000
)

// SystemMemory is the pre-allocated, physically addressable memory a
// PortEngine needs: one command list, one received-FIS area, and one
// command table per slot. The caller of Start owns allocating this out of
// the kernel heap and is responsible for it
// being identity- or HHDM-mapped so PortEngine's physical-address
// translation stays trivial.
type SystemMemory struct {
	CommandList  *[CommandSlotCount]CommandHeader
	ReceivedFIS  *ReceivedFIS
	CommandTable *[CommandSlotCount]CommandTable
}

// BlockDevice is the storage abstraction kernel/vfs/fat32 and
// kernel/device/gpt consume instead of touching AHCI registers directly,
// mirroring the dependency inversion kernel/driver/video/console uses
// between Console and its Vga/Ega backends.
type BlockDevice interface {
	SectorSize() uint32
	ReadSectors(lba uint64, buf []byte) *kernel.Error
	WriteSectors(lba uint64, buf []byte) *kernel.Error
}

var (
	errNoDeviceDetected       = &kernel.Error{Module: "ahci", Message: "no device detected on this port"}
	errCommandTimeout         = &kernel.Error{Module: "ahci", Message: "command did not complete before timeout"}
	errTaskFileError          = &kernel.Error{Module: "ahci", Message: "device reported a task file error"}
	errBufferNotSectorAligned = &kernel.Error{Module: "ahci", Message: "buffer length is not a multiple of the sector size"}
	errBufferTooLarge         = &kernel.Error{Module: "ahci", Message: "buffer exceeds a single command table's PRDT capacity"}
)

const (
	tfdErrorBit = 1 << 0
	tfdBusyBit  = 1 << 7
)

// physAddrFn translates a virtual pointer into the physical address the HBA
// needs to DMA against. It defaults to identity, which is correct as long
// as SystemMemory is allocated out of identity- or HHDM-mapped kernel
// memory; callers in higher-half-only configurations should replace it with
// a vmm-aware translation before calling Start.
var physAddrFn = func(ptr unsafe.Pointer) uintptr { return uintptr(ptr) }

// SetPhysAddrFn overrides the virtual-to-physical address translation used
// when programming CLB/FB/PRDT entries.
func SetPhysAddrFn(fn func(unsafe.Pointer) uintptr) {
	physAddrFn = fn
}

// pollUntilFn waits for cond to become true. Once kernel/timer is running
// it sleeps via timer.SleepUntil between checks, so the calling thread
// yields the CPU to the scheduler instead of monopolizing it for the
// duration of a disk command; before the timer exists (the boot-time GPT
// read) there is no clock to sleep against, so it falls back to a bounded
// busy-wait. Replaced in tests to avoid both.
var pollUntilFn = func(cond func() bool) bool {
	if timer.Started() {
		deadline := timer.TimeSinceStart() + pollDeadlineNanos
		for {
			if cond() {
				return true
			}
			now := timer.TimeSinceStart()
			if now >= deadline {
				return false
			}
			timer.SleepUntil(now + pollSliceNanos)
		}
	}

	for i := 0; i < maxPollIterations; i++ {
		if cond() {
			return true
		}
	}
	return false
}

// PortEngine drives a single AHCI port as a BlockDevice: Start brings the
// port's command engine up and points it at SystemMemory; ReadSectors and
// WriteSectors each issue a single command on slot 0 and poll for
// completion.
type PortEngine struct {
	port *HBAPort
	mem  SystemMemory
}

// NewPortEngine returns a PortEngine for port, not yet started.
func NewPortEngine(port *HBAPort) *PortEngine {
	return &PortEngine{port: port}
}

// Start verifies a device is present on the port, stops the command engine
// long enough to (re)program CLB/FB with mem's addresses, then restarts it.
func (e *PortEngine) Start(mem SystemMemory) *kernel.Error {
	if !e.port.DeviceDetected() {
		return errNoDeviceDetected
	}

	e.port.stop()
	e.mem = mem

	clbAddr := physAddrFn(unsafe.Pointer(mem.CommandList))
	e.port.CLB = uint32(clbAddr)
	e.port.CLBU = uint32(clbAddr >> 32)

	fbAddr := physAddrFn(unsafe.Pointer(mem.ReceivedFIS))
	e.port.FB = uint32(fbAddr)
	e.port.FBU = uint32(fbAddr >> 32)

	for i := range mem.CommandList {
		ctAddr := physAddrFn(unsafe.Pointer(&mem.CommandTable[i]))
		mem.CommandList[i].CommandTableBase = uint32(ctAddr)
		mem.CommandList[i].CommandTableBaseUpper = uint32(ctAddr >> 32)
	}

	e.port.SERR = e.port.SERR // clear-on-write register; writing back what we read clears it
	e.port.start()
	return nil
}

// SectorSize returns the engine's fixed logical sector size.
func (e *PortEngine) SectorSize() uint32 {
	return SectorSize
}

// ReadSectors issues a 48-bit LBA READ DMA EXT transferring len(buf)/512
// sectors starting at lba into buf.
func (e *PortEngine) ReadSectors(lba uint64, buf []byte) *kernel.Error {
	return e.transfer(lba, buf, false)
}

// WriteSectors issues a 48-bit LBA WRITE DMA EXT transferring len(buf)/512
// sectors starting at lba from buf.
func (e *PortEngine) WriteSectors(lba uint64, buf []byte) *kernel.Error {
	return e.transfer(lba, buf, true)
}

func (e *PortEngine) transfer(lba uint64, buf []byte, write bool) *kernel.Error {
	if len(buf) == 0 || len(buf)%SectorSize != 0 {
		return errBufferNotSectorAligned
	}
	sectors := len(buf) / SectorSize
	if sectors > 65535 {
		return errBufferTooLarge
	}

	const slot = 0
	header := &e.mem.CommandList[slot]
	table := &e.mem.CommandTable[slot]

	header.SetCommandFIS(write)
	header.PRDTLength = 1

	bufAddr := physAddrFn(unsafe.Pointer(&buf[0]))
	table.PRDT[0] = PRDTEntry{
		DataBase:              uint32(bufAddr),
		DataBaseUpper:         uint32(bufAddr >> 32),
		ByteCountMinusOneAndI: uint32(len(buf)-1) | (1 << 31),
	}

	var fis RegisterHost2DeviceFIS
	if write {
		fis = WriteDMAExtendedFIS(lba, uint16(sectors))
	} else {
		fis = ReadDMAExtendedFIS(lba, uint16(sectors))
	}
	*(*RegisterHost2DeviceFIS)(unsafe.Pointer(&table.CommandFIS[0])) = fis

	for e.port.TFD&tfdBusyBit != 0 {
	}

	e.port.CI |= 1 << slot
	if !pollUntilFn(func() bool { return e.port.CI&(1<<slot) == 0 }) {
		return errCommandTimeout
	}
	if e.port.TFD&tfdErrorBit != 0 {
		return errTaskFileError
	}
	return nil
}
