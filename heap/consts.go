package heap

// Fixed address-space layout. All bases are illustrative canonical
// x86-64/arm64 addresses, mirroring the approach mtmalloc.h takes with
// kAllocatorSpace/kPrimaryMetaSpace/kSecondRangeMeta: the shadow bases
// must sit entirely beyond the span mapSuperPageWithAliases can ever
// write an alias into, not merely be spaced apart from each other.
// That span is [allocatorSpace, allocatorSpace+(1<<aliasBitWidth)*aliasStride)
// — aliasStride equals allocatorSize (tags.go), and the primary copy
// plus alias.go's numAliases copies make 1<<aliasBitWidth copies in
// all — so every shadow base below starts at
// allocatorSpace + (1<<aliasBitWidth)*allocatorSize, then steps by
// allocatorSize again per shadow; each shadow's own mapped size (the
// largest is the 32 GiB range-0 chunk-state shadow) is far smaller
// than that step, so the shadows can never collide with each other
// either.
const (
	// superPageSize is the fixed size and alignment of every super-page.
	// spec.md writes this as "2 MiB = 1<<19"; 1<<19 is actually 512 KiB.
	// We take "2 MiB" as authoritative (see SPEC_FULL.md Decision D2).
	superPageSize = 1 << 21

	numSizeClassRanges = 2

	// secondRangeAlignment is the granularity of range 1's chunk sizes,
	// and the tag granule size used for range-1 addresses.
	secondRangeAlignment = 1 << 10

	// smallGranule is the tag granule size for range 0.
	smallGranule = 16

	// allocatorSpace is the fixed base of the 1 TiB reservation split
	// across both ranges.
	allocatorSpace = 0x600000000000
	allocatorSize  = uintptr(1) << 40

	// aliasedSpanEnd is the first address past every alias
	// mapSuperPageWithAliases can ever write (alias.go's numAliases
	// copies, at strides of tags.go's aliasStride, which equals
	// allocatorSize, starting at allocatorSpace): every shadow base
	// below must sit at or beyond it, never inside it.
	aliasedSpanEnd = allocatorSpace + (1<<aliasBitWidth)*allocatorSize

	// superPageMetaBase holds one byte per super-page: its size class.
	superPageMetaBase = aliasedSpanEnd

	// chunkStateBase holds, per range, one reserved block per super-page
	// (see Decision D1 in SPEC_FULL.md): the block is wide enough for the
	// largest possible chunk count in that range, and is indexed directly
	// by chunk index.
	chunkStateBase0 = aliasedSpanEnd + 1*allocatorSize
	chunkStateBase1 = aliasedSpanEnd + 2*allocatorSize

	// tagShadowBase holds the software memory-tag shadow, one per range,
	// at the range's natural granule size (16B for range 0, 1024B for
	// range 1), mirroring mtmalloc_tags.h's SmallShadow/LargeShadow.
	tagShadowBase0 = aliasedSpanEnd + 3*allocatorSize
	tagShadowBase1 = aliasedSpanEnd + 4*allocatorSize

	// divMulShift is the shift used by the divide-by-multiply trick
	// (see sizeclass.go); chosen, as in the original, so that the
	// multiplier fits comfortably in 32 bits for every size class up
	// to maxSmallSize.
	divMulShift = 35

	// scanPosIncrement is the number of super-pages one scanShard call
	// claims via a single fetch-add on the per-range scan position.
	scanPosIncrement = 1024

	// localQuarantineFlushThreshold is the amount of freed memory a
	// threadCache accumulates locally before folding it into the global
	// quarantine counter.
	localQuarantineFlushThreshold = 1 << 20
)

func rangeBase(r int) uintptr {
	if r == 0 {
		return allocatorSpace
	}
	return allocatorSpace + allocatorSize/2
}

func rangeCapacity() uintptr {
	return (allocatorSize / 2) / superPageSize
}
