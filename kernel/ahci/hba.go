// Package ahci drives an AHCI host bus adapter's SATA ports: scanning the
// implemented-ports bitmap, bringing a port out of idle, and issuing
// READ/WRITE DMA EXT commands through its command list and FIS receive
// area. It is the kernel's only block device backend; kernel/vfs/fat32 and
// kernel/device/gpt both consume it through the BlockDevice interface
// rather than touching HBA registers directly.
package ahci

import "unsafe"

// HBAPort is the per-port register block, memory-mapped at ABAR + 0x100 +
// 0x80*portNum. Field layout follows the AHCI 1.3.1 specification section
// 3.3 (the vendor-neutral port register set every HBA implements).
type HBAPort struct {
	CLB      uint32 // command list base address, low 32 bits
	CLBU     uint32 // command list base address, high 32 bits
	FB       uint32 // FIS base address, low 32 bits
	FBU      uint32 // FIS base address, high 32 bits
	IS       uint32 // interrupt status
	IE       uint32 // interrupt enable
	CMD      uint32 // command and status
	reserved0 uint32
	TFD      uint32 // task file data
	SIG      uint32 // signature
	SSTS     uint32 // SATA status (SCR0: DET/SPD/IPM)
	SCTL     uint32 // SATA control (SCR2)
	SERR     uint32 // SATA error (SCR1)
	SACT     uint32 // SATA active (SCR3)
	CI       uint32 // command issue
	SNTF     uint32 // SATA notification (SCR4)
	FBS      uint32 // FIS-based switching control
	reserved1 [11]uint32
	Vendor   [4]uint32
}

const (
	cmdST  = 1 << 0 // start
	cmdFRE = 1 << 4 // FIS receive enable
	cmdFR  = 1 << 14 // FIS receive running
	cmdCR  = 1 << 15 // command list running

	sstsDETMask    = 0x0F
	sstsDETPresent = 0x03 // device present and Phy communication established

	sigATA = 0x00000101
)

// DeviceDetected reports whether a SATA device is present and has
// established Phy communication on this port, and that it identifies as a
// plain ATA device (not ATAPI, not a port multiplier).
func (p *HBAPort) DeviceDetected() bool {
	return p.SSTS&sstsDETMask == sstsDETPresent && p.SIG == sigATA
}

// start enables the port's command list and FIS receive engines.
func (p *HBAPort) start() {
	for p.CMD&cmdCR != 0 {
	}
	p.CMD |= cmdFRE
	p.CMD |= cmdST
}

// stop halts command processing and FIS reception so CLB/FB can be safely
// reprogrammed.
func (p *HBAPort) stop() {
	p.CMD &^= cmdST
	for p.CMD&cmdCR != 0 {
	}
	p.CMD &^= cmdFRE
	for p.CMD&cmdFR != 0 {
	}
}

// HBAMemory is the HBA's generic host control register block at ABAR+0x00,
// followed by the 32-entry port register array at ABAR+0x100.
type HBAMemory struct {
	CAP       uint32 // host capabilities
	GHC       uint32 // global HBA control
	IS        uint32 // interrupt status
	PI        uint32 // ports implemented (bit n set => Port[n] is wired up)
	VS        uint32 // AHCI version
	CCCCTL    uint32
	CCCPorts  uint32
	EMLOC     uint32
	EMCTL     uint32
	CAP2      uint32
	BOHC      uint32

	reserved [116]byte
	vendor   [96]byte

	Port [32]HBAPort
}

// MapHBAMemory overlays an HBAMemory register block on the ABAR physical
// (already identity- or HHDM-mapped) address the PCI BAR5 register gave us.
// Callers are responsible for having mapped abar as uncacheable MMIO before
// calling this.
func MapHBAMemory(abar uintptr) *HBAMemory {
	return (*HBAMemory)(unsafe.Pointer(abar))
}

// ImplementedPorts returns the port indices this HBA has actually wired up,
// per the PI bitmap.
func (m *HBAMemory) ImplementedPorts() []int {
	var ports []int
	for i := 0; i < 32; i++ {
		if m.PI&(1<<uint(i)) != 0 {
			ports = append(ports, i)
		}
	}
	return ports
}
