package heap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasZeroByte(t *testing.T) {
	assert.True(t, hasZeroByte(0x00000000))
	assert.True(t, hasZeroByte(0xFF00FFFF))
	assert.True(t, hasZeroByte(0x01020300))
	assert.False(t, hasZeroByte(0x01020304))
	assert.False(t, hasZeroByte(0xFFFFFFFF))
}

func TestLoadStoreStateByteRoundTrip(t *testing.T) {
	words := make([]uint32, 4)
	base := unsafe.Pointer(&words[0])

	for idx := uintptr(0); idx < 16; idx++ {
		storeStateByte(base, idx, byte(idx+1))
	}
	for idx := uintptr(0); idx < 16; idx++ {
		assert.Equal(t, byte(idx+1), loadStateByte(base, idx))
	}
}

func TestCasStateByteSucceedsAndFails(t *testing.T) {
	words := make([]uint32, 1)
	base := unsafe.Pointer(&words[0])

	require.True(t, casStateByte(base, 0, 0, 5))
	assert.Equal(t, byte(5), loadStateByte(base, 0))

	// wrong "old" value: must fail and leave state untouched
	require.False(t, casStateByte(base, 0, 0, 9))
	assert.Equal(t, byte(5), loadStateByte(base, 0))
}

func TestCasStateByteDoesNotDisturbNeighbours(t *testing.T) {
	words := make([]uint32, 1)
	base := unsafe.Pointer(&words[0])

	storeStateByte(base, 0, 0x11)
	storeStateByte(base, 1, 0x22)
	storeStateByte(base, 2, 0x33)
	storeStateByte(base, 3, 0x44)

	require.True(t, casStateByte(base, 1, 0x22, 0x99))

	assert.Equal(t, byte(0x11), loadStateByte(base, 0))
	assert.Equal(t, byte(0x99), loadStateByte(base, 1))
	assert.Equal(t, byte(0x33), loadStateByte(base, 2))
	assert.Equal(t, byte(0x44), loadStateByte(base, 3))
}

func TestFindAvailableFindsZeroByte(t *testing.T) {
	words := make([]uint32, 2)
	base := unsafe.Pointer(&words[0])
	storeStateByte(base, 3, 1) // bytes 3 and 5 nonzero, the rest free
	storeStateByte(base, 5, 1)

	idx := findAvailable(base, 8, 0, func(i uint32) bool {
		return casStateByte(base, uintptr(i), 0, 1)
	})
	require.GreaterOrEqual(t, idx, 0)
	assert.NotEqual(t, 3, idx)
	assert.NotEqual(t, 5, idx)
}

func TestFindAvailableReturnsNegativeOneWhenFull(t *testing.T) {
	words := make([]uint32, 2)
	base := unsafe.Pointer(&words[0])
	for i := uintptr(0); i < 8; i++ {
		storeStateByte(base, i, 1)
	}
	idx := findAvailable(base, 8, 0, func(i uint32) bool {
		return casStateByte(base, uintptr(i), 0, 1)
	})
	assert.Equal(t, -1, idx)
}

func TestFindAvailableHonoursHintWrap(t *testing.T) {
	words := make([]uint32, 4)
	base := unsafe.Pointer(&words[0])
	// Only index 1 is free; hint starts past it, forcing a wraparound.
	for i := uintptr(0); i < 16; i++ {
		storeStateByte(base, i, 1)
	}
	storeStateByte(base, 1, 0)

	idx := findAvailable(base, 16, 10, func(i uint32) bool {
		return casStateByte(base, uintptr(i), 0, 1)
	})
	assert.Equal(t, 1, idx)
}

func TestFindAvailableSkipsWhenTryFails(t *testing.T) {
	words := make([]uint32, 1)
	base := unsafe.Pointer(&words[0])
	// All four bytes free; reject the first candidate so the scan must move on.
	rejectedOnce := false
	idx := findAvailable(base, 4, 0, func(i uint32) bool {
		if !rejectedOnce {
			rejectedOnce = true
			return false
		}
		return casStateByte(base, uintptr(i), 0, 1)
	})
	require.GreaterOrEqual(t, idx, 0)
}
