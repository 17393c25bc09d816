package mem

import "github.com/Ewogijk/runeOS-sub002/kernel"

// MaxMapRegions is the hard cap on the number of regions a Map may hold.
const MaxMapRegions = 64

var (
	errMapFull        = &kernel.Error{Module: "mem", Message: "memory map is full"}
	errMapOverlap     = &kernel.Error{Module: "mem", Message: "region overlaps an existing region"}
	errClaimNoHost    = &kernel.Error{Module: "mem", Message: "no region hosts the requested claim range"}
	errClaimMultiHost = &kernel.Error{Module: "mem", Message: "claim range spans more than one region"}
)

// Map is an ordered, non-overlapping, merge-adjacent sequence of regions,
// capped at MaxMapRegions entries.
type Map struct {
	regions []Region
}

// Regions returns the map's regions in ascending start-address order. The
// returned slice must not be mutated by the caller.
func (m *Map) Regions() []Region {
	return m.regions
}

// Len returns the number of regions currently tracked.
func (m *Map) Len() int {
	return len(m.regions)
}

// TotalSize returns the sum of all region sizes.
func (m *Map) TotalSize() Size {
	var total Size
	for _, r := range m.regions {
		total += r.Size
	}
	return total
}

// FreeSize returns the sum of all Usable region sizes.
func (m *Map) FreeSize() Size {
	var total Size
	for _, r := range m.regions {
		if r.Kind == Usable {
			total += r.Size
		}
	}
	return total
}

// Add inserts a region into the map, keeping it sorted by start address and
// merging it with an adjacent region of the same kind if possible.
func (m *Map) Add(r Region) *kernel.Error {
	if r.Size == 0 {
		return nil
	}

	for _, existing := range m.regions {
		if r.Overlaps(existing) {
			return errMapOverlap
		}
	}

	insertAt := len(m.regions)
	for i, existing := range m.regions {
		if r.Start < existing.Start {
			insertAt = i
			break
		}
	}

	// Try to merge with the region immediately before the insertion point.
	if insertAt > 0 && m.regions[insertAt-1].adjacentTo(r) {
		m.regions[insertAt-1].Size += r.Size
		m.mergeForward(insertAt - 1)
		return nil
	}

	// Try to merge with the region immediately after the insertion point.
	if insertAt < len(m.regions) && r.adjacentTo(m.regions[insertAt]) {
		m.regions[insertAt].Start = r.Start
		m.regions[insertAt].Size += r.Size
		return nil
	}

	if len(m.regions) >= MaxMapRegions {
		return errMapFull
	}

	m.regions = append(m.regions, Region{})
	copy(m.regions[insertAt+1:], m.regions[insertAt:])
	m.regions[insertAt] = r
	return nil
}

// mergeForward merges regions[at] with regions[at+1] if they are adjacent,
// after regions[at] has grown via Add.
func (m *Map) mergeForward(at int) {
	if at+1 < len(m.regions) && m.regions[at].adjacentTo(m.regions[at+1]) {
		m.regions[at].Size += m.regions[at+1].Size
		m.regions = append(m.regions[:at+1], m.regions[at+2:]...)
	}
}

// Claim retags the sub-range [addr, addr+size) as kind, splitting its host
// region into up to three parts: an untouched prefix, the retagged claim,
// and an untouched suffix. The full claim range must lie within a single
// existing region.
func (m *Map) Claim(addr uintptr, size Size, kind RegionKind) *kernel.Error {
	if size == 0 {
		return nil
	}
	claim := Region{Start: addr, Size: size}

	hostIndex := -1
	for i, r := range m.regions {
		if addr >= r.Start && claim.End() <= r.End() {
			hostIndex = i
			break
		}
		if claim.Overlaps(r) {
			return errClaimMultiHost
		}
	}
	if hostIndex == -1 {
		return errClaimNoHost
	}
	host := m.regions[hostIndex]

	var split []Region
	if host.Start < addr {
		split = append(split, Region{Start: host.Start, Size: Size(addr - host.Start), Kind: host.Kind})
	}
	split = append(split, Region{Start: addr, Size: size, Kind: kind})
	if claim.End() < host.End() {
		split = append(split, Region{Start: claim.End(), Size: Size(host.End() - claim.End()), Kind: host.Kind})
	}

	grow := len(split) - 1
	if len(m.regions)+grow > MaxMapRegions {
		return errMapFull
	}

	tail := append([]Region{}, m.regions[hostIndex+1:]...)
	m.regions = append(m.regions[:hostIndex], split...)
	m.regions = append(m.regions, tail...)
	return nil
}

// Bounds returns [lowestAddr, highestAddr) spanning every region that is not
// Reserved.
func (m *Map) Bounds() (lowest, highest uintptr) {
	first := true
	for _, r := range m.regions {
		if r.Kind == Reserved {
			continue
		}
		if first {
			lowest = r.Start
			first = false
		}
		if r.End() > highest {
			highest = r.End()
		}
	}
	return lowest, highest
}
