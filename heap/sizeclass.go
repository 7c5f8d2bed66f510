package heap

import "fmt"

// sizeClass is a small index into the descriptor table below.
type sizeClass uint8

// sizeClassDescr carries everything the hot path needs about one size
// class, pre-computed once at init so Allocate/Free never recompute it.
type sizeClassDescr struct {
	rangeNum        uint8  // 0 or 1: which half of the reservation this class lives in
	chunkSize       uint32 // bytes per chunk, a multiple of 16
	numChunks       uint32 // chunks per super-page of this class
	chunkSizeMulDiv uint32 // divide-by-multiply constant: offset/chunkSize == (offset*chunkSizeMulDiv)>>divMulShift
}

// rawSizeClasses is the un-adjusted chunk-size table: every multiple of
// 16 from 16 to 256, then a Scudo/PartitionAlloc-style geometric ladder
// up to maxSmallSize. Copied verbatim from mtmalloc_size_classes.h's
// SCArray — the table property ("every entry satisfies the
// divide-by-multiply identity, or gets rounded up until it does") is
// re-verified at init time below rather than assumed.
var rawSizeClasses = [...]uint32{
	16, 32, 48, 64, 80, 96, 112, 128,
	144, 160, 176, 192, 208, 224, 240, 256,
	272, 288, 336, 368, 448, 480, 512, 576,
	640, 704, 768, 896, 1024, 1152, 1280, 1408,
	1536, 1792, 2048, 2304, 2688, 2816, 3200, 3456,
	3584, 4096, 4736, 5376, 6144, 6528, 7168, 8192,
	9216, 10240, 12288, 14336, 16384, 20480, 24576, 28672,
	32768, 40960, 49152, 57344, 65536, 73728, 81920, 98304,
	106496, 131072, 147456, 164864, 183296, 207872, 230400, 262144,
}

const numSizeClasses = len(rawSizeClasses)

// maxSmallSize is the largest request this allocator serves; anything
// above it belongs to the large-object allocator (see largealloc.LargeAllocator).
var maxSmallSize = uintptr(rawSizeClasses[numSizeClasses-1])

var sizeClassDescrs [numSizeClasses]sizeClassDescr

// minChunkSizeInRange[r] is the smallest chunk size assigned to range
// r, i.e. the largest possible chunk count any of that range's
// super-pages can have. It sizes the per-super-page block reserved in
// that range's external chunk-state shadow (see layout.go).
var minChunkSizeInRange [numSizeClassRanges]uint32

// directClassLimit is the request size up to which resolve() uses the
// O(1) formula instead of a linear scan; mtmalloc.h asserts SCArray[15]==256
// for the same reason.
const directClassLimit = 256

func init() {
	if rawSizeClasses[15] != directClassLimit {
		panic("heap: size-class table broken: class 15 must be 256")
	}
	buildSizeClassDescrs()
}

// computeMulForDiv returns the smallest multiplier Mul such that
// (1<<shift)/div rounds up, the standard magic-number-division
// construction (see mtmalloc.h's ComputeMulForDiv).
func computeMulForDiv(div uint32, shift uint32) uint32 {
	mul := uint32((uint64(1) << shift) / uint64(div))
	if div&(div-1) != 0 {
		mul++
	}
	return mul
}

// isCorrectDivToMul verifies that Left/div == (Left*mul)>>shift for
// every Left in [0, maxLeft), i.e. for every byte offset inside a
// super-page. This is the startup invariant spec.md §4.1/§9 requires be
// checked rather than assumed.
func isCorrectDivToMul(div, mul, shift uint32, maxLeft uint64) bool {
	for left := uint64(0); left < maxLeft; left++ {
		d1 := uint32(left / uint64(div))
		d2 := uint32((left * uint64(mul)) >> shift)
		if d1 != d2 {
			return false
		}
	}
	return true
}

func divBySizeViaMul(left uint64, mul uint32) uint64 {
	return (left * uint64(mul)) >> divMulShift
}

func buildSizeClassDescrs() {
	minChunkSizeInRange[0] = superPageSize
	minChunkSizeInRange[1] = superPageSize
	for i, want := range rawSizeClasses {
		chunkSize := want
		mul := computeMulForDiv(chunkSize, divMulShift)
		for !isCorrectDivToMul(chunkSize, mul, divMulShift, superPageSize) {
			chunkSize += secondRangeAlignment
			mul = computeMulForDiv(chunkSize, divMulShift)
		}
		if chunkSize%16 != 0 {
			panic("heap: adjusted chunk size not a multiple of 16")
		}
		if chunkSize/16 >= 1<<16 {
			panic("heap: chunk size too large to fit its descriptor field")
		}
		r := boolToRange(chunkSize%secondRangeAlignment == 0)
		sizeClassDescrs[i] = sizeClassDescr{
			rangeNum:        r,
			chunkSize:       chunkSize,
			numChunks:       superPageSize / chunkSize,
			chunkSizeMulDiv: mul,
		}
		if chunkSize < minChunkSizeInRange[r] {
			minChunkSizeInRange[r] = chunkSize
		}
	}
}

func boolToRange(secondRange bool) uint8 {
	if secondRange {
		return 1
	}
	return 0
}

// resolve maps a request size to a size class and its descriptor. Sizes
// up to directClassLimit use the direct formula from spec.md §4.1;
// larger sizes walk the (small, 72-entry) table linearly.
func resolve(size uintptr) (sizeClass, sizeClassDescr, error) {
	if size == 0 {
		size = 1
	}
	if size <= directClassLimit {
		sc := sizeClass((size+15)/16 - 1)
		return sc, sizeClassDescrs[sc], nil
	}
	for i := directClassLimit / 16; i < numSizeClasses; i++ {
		if uintptr(sizeClassDescrs[i].chunkSize) >= size {
			return sizeClass(i), sizeClassDescrs[i], nil
		}
	}
	return 0, sizeClassDescr{}, fmt.Errorf("heap: size %d exceeds maxSmallSize %d", size, maxSmallSize)
}

func sizeClassToSize(sc sizeClass) uintptr {
	return uintptr(sizeClassDescrs[sc].chunkSize)
}
