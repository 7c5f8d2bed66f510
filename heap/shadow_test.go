package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShadowRegionUnitIndexAndIsMine(t *testing.T) {
	s := newShadowRegion(0x700000000000, 0x500000000000, 1<<30, 1<<12, 1)
	assert.True(t, s.isMine(0x500000000000))
	assert.True(t, s.isMine(0x500000000000+(1<<30)-1))
	assert.False(t, s.isMine(0x500000000000+(1<<30)))
	assert.False(t, s.isMine(0x400000000000))

	assert.EqualValues(t, 0, s.unitIndex(0x500000000000))
	assert.EqualValues(t, 1, s.unitIndex(0x500000000000+1<<12))
}

func TestShadowRegionBlockPtrUsesStride(t *testing.T) {
	s := newShadowRegion(0x700000000000, 0x500000000000, 1<<30, 1<<12, 8)
	base := s.blockPtr(0x500000000000)
	next := s.blockPtr(0x500000000000 + 1<<12)
	assert.EqualValues(t, uintptr(8), uintptr(next)-uintptr(base))
}

func TestShadowRegionSizeRoundsUpToWord(t *testing.T) {
	s := newShadowRegion(0x700000000000, 0x500000000000, 3, 1, 1)
	assert.EqualValues(t, 4, s.size())
}

func TestShadowRegionInit(t *testing.T) {
	// A small, otherwise-unused region far from any real layout base.
	s := newShadowRegion(0x7f0000000000, 0x500000000000, 1<<16, 1<<12, 1)
	require.NoError(t, s.init())
	storeStateByte(s.bytePtr(0x500000000000), 0, 42)
	assert.EqualValues(t, 42, loadStateByte(s.bytePtr(0x500000000000), 0))
}

func TestChunkStateBlockStrideWideEnoughForSmallestChunk(t *testing.T) {
	for r := 0; r < numSizeClassRanges; r++ {
		stride := chunkStateBlockStride(r)
		assert.EqualValues(t, superPageSize/minChunkSizeInRange[r], stride)
	}
}
