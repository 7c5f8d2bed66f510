package heap

import (
	"fmt"
	"unsafe"
)

// shadowRegion is a fixed-base virtual mapping holding out-of-band
// metadata keyed by a linear projection of a primary address, the
// pattern mtmalloc_shadow.h's FixedShadow template implements. Unlike
// the C++ original this is a single runtime-configured type rather
// than five template instantiations, since the five shadows this
// package needs (super-page size-class byte, two external chunk-state
// blocks, two tag shadows) differ only in base/granularity/stride.
type shadowRegion struct {
	shadowBase  uintptr
	regionBase  uintptr
	regionSize  uintptr
	granularity uintptr // bytes of primary address space per shadow unit
	stride      uintptr // bytes reserved in the shadow per unit (1 unless blocked)
}

func newShadowRegion(shadowBase, regionBase, regionSize, granularity, stride uintptr) *shadowRegion {
	return &shadowRegion{
		shadowBase:  shadowBase,
		regionBase:  regionBase,
		regionSize:  regionSize,
		granularity: granularity,
		stride:      stride,
	}
}

func (s *shadowRegion) size() uintptr {
	units := s.regionSize / s.granularity
	total := units * s.stride
	// Round up to a word so sub-word atomics never read past the mapping.
	return (total + 3) &^ 3
}

// init reserves the shadow's backing memory. MAP_NORESERVE mirrors
// mtmalloc_shadow.h::Init: the mapping can be many gigabytes of virtual
// address space (e.g. 32 GiB for range 0's chunk-state shadow) but
// costs no physical memory until actually written.
func (s *shadowRegion) init() error {
	if _, err := mmapReserve(s.shadowBase, s.size()); err != nil {
		return fmt.Errorf("heap: reserve shadow at 0x%x (%d bytes): %w", s.shadowBase, s.size(), err)
	}
	if err := mmapCommit(s.shadowBase, s.size()); err != nil {
		return fmt.Errorf("heap: commit shadow at 0x%x (%d bytes): %w", s.shadowBase, s.size(), err)
	}
	return nil
}

func (s *shadowRegion) isMine(addr uintptr) bool {
	return addr >= s.regionBase && addr < s.regionBase+s.regionSize
}

// unitIndex returns which granularity-sized unit addr falls in,
// relative to regionBase.
func (s *shadowRegion) unitIndex(addr uintptr) uintptr {
	return (addr - s.regionBase) / s.granularity
}

// blockPtr returns a pointer to the start of the stride-byte block
// reserved for the unit containing addr.
func (s *shadowRegion) blockPtr(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(s.shadowBase + s.unitIndex(addr)*s.stride)
}

// bytePtr is blockPtr for stride==1 shadows (one byte per unit).
func (s *shadowRegion) bytePtr(addr uintptr) unsafe.Pointer {
	return s.blockPtr(addr)
}
