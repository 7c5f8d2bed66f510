package heap

import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

func TestResolveDirectClasses(t *testing.T) {
	for size := uintptr(1); size <= directClassLimit; size++ {
		sc, descr, err := resolve(size)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, uintptr(descr.chunkSize), size, "size=%d", size)
		if size > 1 {
			prevDescr := sizeClassDescrs[sc-1]
			assert.Less(t, uintptr(prevDescr.chunkSize), size, "class below %d should be too small", sc)
		}
	}
}

func TestResolveZeroTreatedAsOne(t *testing.T) {
	sc0, _, err := resolve(0)
	require.NoError(t, err)
	sc1, _, err := resolve(1)
	require.NoError(t, err)
	assert.Equal(t, sc1, sc0)
}

func TestResolveLargerClasses(t *testing.T) {
	sizes := []uintptr{257, 300, 1000, 4097, 50000, uintptr(maxSmallSize)}
	for _, size := range sizes {
		sc, descr, err := resolve(size)
		require.NoError(t, err, "size=%d", size)
		assert.GreaterOrEqual(t, uintptr(descr.chunkSize), size)
		if int(sc) > 0 {
			assert.Less(t, uintptr(sizeClassDescrs[sc-1].chunkSize), size)
		}
	}
}

func TestResolveExceedsMaxSmallSize(t *testing.T) {
	_, _, err := resolve(maxSmallSize + 1)
	require.Error(t, err)
}

func TestSizeClassDivMulIdentityHolds(t *testing.T) {
	for i, descr := range sizeClassDescrs {
		maxLeft := uint64(superPageSize)
		step := maxLeft / 997 // spot-check, not every offset, to keep the test fast
		if step == 0 {
			step = 1
		}
		for left := uint64(0); left < maxLeft; left += step {
			d1 := left / uint64(descr.chunkSize)
			d2 := divBySizeViaMul(left, descr.chunkSizeMulDiv)
			assert.Equal(t, d1, d2, "class %d left=%d", i, left)
		}
	}
}

func TestSizeClassesAreMultipleOf16(t *testing.T) {
	for i, descr := range sizeClassDescrs {
		assert.Zero(t, descr.chunkSize%16, "class %d chunk size %d not 16-aligned", i, descr.chunkSize)
	}
}

func TestSizeClassNumChunksFitsSuperPage(t *testing.T) {
	for i, descr := range sizeClassDescrs {
		assert.LessOrEqual(t, uint64(descr.numChunks)*uint64(descr.chunkSize), uint64(superPageSize), "class %d", i)
	}
}

func TestSizeClassToSize(t *testing.T) {
	for sc := sizeClass(0); int(sc) < numSizeClasses; sc++ {
		assert.Equal(t, uintptr(sizeClassDescrs[sc].chunkSize), sizeClassToSize(sc))
	}
}
