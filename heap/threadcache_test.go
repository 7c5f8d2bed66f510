package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextRandomAdvancesAndVaries(t *testing.T) {
	tc := &threadCache{seed: 0x9E3779B97F4A7C15}
	first := tc.nextRandom()
	second := tc.nextRandom()
	assert.NotEqual(t, first, second)
	assert.NotZero(t, first)
}

func TestAcquireReleaseThreadCacheRoundTrips(t *testing.T) {
	tc := acquireThreadCache()
	assert.NotNil(t, tc)
	tc.recordAlloc(3)
	releaseThreadCache(tc)
}

func TestRecordAllocAndFreeIncrementCounters(t *testing.T) {
	tc := &threadCache{}
	tc.recordAlloc(5)
	tc.recordAlloc(5)
	tc.recordFree(5)
	assert.EqualValues(t, 2, tc.allocs[5].Load())
	assert.EqualValues(t, 1, tc.frees[5].Load())
}
