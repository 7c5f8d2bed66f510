package heap

import (
	"unsafe"
)

// tagWidth selects how many bits of a memory tag are meaningful; it is
// the Go-side mirror of mtmalloc_tags.h's UseTag config knob.
type tagWidth uint8

const (
	tagWidthNone tagWidth = 0
	tagWidth4    tagWidth = 1
	tagWidth8    tagWidth = 2
)

func (w tagWidth) mask() byte {
	switch w {
	case tagWidth4:
		return 0x0F
	case tagWidth8:
		return 0xFF
	default:
		return 0
	}
}

// addressTagScheme is the pointer-encoding variant chosen once at
// init, per spec.md §9's "abstract it as a tagged variant" guidance.
type addressTagScheme uint8

const (
	schemeTopByteIgnore addressTagScheme = iota
	schemeAlias
)

// aliasBitWidth is the width of the alias tag field spec.md §3 places
// at "bits 37..40" — 4 bits, 16 possible aliases. This port encodes
// the field by address arithmetic rather than a literal bit-insert at
// shift 37: spec.md §4.4 separately says alias mappings are "spaced by
// the allocator reservation size" (1<<40), which only avoids colliding
// with real super-pages inside the same reservation if the tag
// actually selects one of 16 reservation-sized copies of the whole
// address space, not a literal bit at shift 37 (a literal bit there
// would alias onto whatever other super-page already occupies that
// bit pattern, corrupting unrelated allocations). No constant for the
// nominal bit-37 position exists; aliasStride alone places the
// mapping. This resolves an internal inconsistency
// between spec.md §3 and §4.4 the same way SPEC_FULL.md's Decision D2
// resolves the super-page size comment: by picking the interpretation
// that is physically realizable and documenting the other as
// approximate.
const (
	aliasBitWidth = 4
	aliasBitMask  = uintptr((1 << aliasBitWidth) - 1)
	aliasStride   = allocatorSize

	tbiShift = 56
)

// applyTag encodes tag into addr's tag bits under the given scheme.
// addr must already be the canonical (untagged) address.
func applyTag(scheme addressTagScheme, addr uintptr, tag byte) uintptr {
	switch scheme {
	case schemeAlias:
		return stripTag(scheme, addr) + uintptr(tag&byte(aliasBitMask))*aliasStride
	default:
		return addr | (uintptr(tag) << tbiShift)
	}
}

// stripTag removes whatever tag bits a scheme may have set, returning
// the canonical chunk address used for all shadow/state lookups.
func stripTag(scheme addressTagScheme, addr uintptr) uintptr {
	switch scheme {
	case schemeAlias:
		copyIdx := (addr - allocatorSpace) / aliasStride
		return addr - copyIdx*aliasStride
	default:
		return addr &^ (uintptr(0xFF) << tbiShift)
	}
}

// extractTag reads back the tag bits a pointer carries, without
// touching the shadow; used to compare against the chunk's stored tag
// on free.
func extractTag(scheme addressTagScheme, addr uintptr) byte {
	switch scheme {
	case schemeAlias:
		return byte((addr - allocatorSpace) / aliasStride)
	default:
		return byte(addr >> tbiShift)
	}
}

// tagStore is the software shadow backend for spec.md §4.7: two fixed
// shadow regions, one per range, one tag byte per granule. A hardware
// MTE backend is out of scope for this port (no Go runtime primitive
// reaches the ARM memory-tagging instructions without cgo/asm the
// teacher's stack never needed), so schemeAlias is this port's
// substitute for hardware TBI when use-aliases is set, and
// schemeTopByteIgnore is used as the software encoding otherwise —
// both always resolve through the shadow, never a tag-set instruction.
type tagStore struct {
	shadows [numSizeClassRanges]*shadowRegion
	width   tagWidth
}

func newTagStore(width tagWidth) *tagStore {
	return &tagStore{
		shadows: [numSizeClassRanges]*shadowRegion{
			newShadowRegion(tagShadowBase0, rangeBase(0), allocatorSize/2, smallGranule, 1),
			newShadowRegion(tagShadowBase1, rangeBase(1), allocatorSize/2, secondRangeAlignment, 1),
		},
		width: width,
	}
}

func (t *tagStore) init() error {
	for _, s := range t.shadows {
		if err := s.init(); err != nil {
			return err
		}
	}
	return nil
}

func (t *tagStore) regionFor(addr uintptr) *shadowRegion {
	for _, s := range t.shadows {
		if s.isMine(addr) {
			return s
		}
	}
	return nil
}

// getTag returns the tag currently recorded for the granule containing
// addr, or 0 if tagging is disabled or addr is unowned.
func (t *tagStore) getTag(addr uintptr) byte {
	if t.width == tagWidthNone {
		return 0
	}
	s := t.regionFor(addr)
	if s == nil {
		return 0
	}
	return loadStateByte(unsafe.Pointer(s.shadowBase), s.unitIndex(addr)) & t.width.mask()
}

// setTag fills every granule in [addr, addr+size) with tag. Called
// for every chunk when its super-page is created (pre-tagging, §4.4)
// and once per free (§4.5) to invalidate stale pointers.
func (t *tagStore) setTag(addr, size uintptr, tag byte) {
	if t.width == tagWidthNone {
		return
	}
	s := t.regionFor(addr)
	if s == nil {
		return
	}
	tag &= t.width.mask()
	granules := (size + s.granularity - 1) / s.granularity
	base := s.unitIndex(addr)
	for i := uintptr(0); i < granules; i++ {
		storeStateByte(unsafe.Pointer(s.shadowBase), base+i, tag)
	}
}

// nextTag computes the tag a chunk transitions to on free: old+1
// modulo the tag space, per spec.md §3.
func (t *tagStore) nextTag(old byte) byte {
	mask := t.width.mask()
	if mask == 0 {
		return 0
	}
	return (old + 1) & mask
}

// quarantineSkippedByTag implements spec.md §4.5's probabilistic
// quarantine skip: with 8-bit tagging, a chunk's own new tag already
// substitutes for a scan as a use-after-free detector roughly 255
// times out of 256 (mtmalloc.cpp's SuperPage::Quarantine: NewValue =
// AVAILABLE whenever NewTag&255 != 0), so only the 1-in-256 case where
// the new tag happens to land back on zero still needs the real
// quarantine/scan path. This has to be decided from the tag this
// specific free just minted, not from the static config — deciding it
// from config alone would disable quarantine entirely under 8-bit
// tagging instead of skipping it 255/256 of the time.
func quarantineSkippedByTag(cfg Config, newTag byte) bool {
	return cfg.UseTag == tagWidth8 && newTag&cfg.UseTag.mask() != 0
}
