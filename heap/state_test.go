package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkStateIsLive(t *testing.T) {
	assert.False(t, stateAvailable.isLive())
	assert.True(t, stateUsedMixed.isLive())
	assert.True(t, stateUsedData.isLive())
	assert.False(t, stateQuarantine.isLive())
	assert.False(t, stateMarked.isLive())
	assert.False(t, stateReleasing.isLive())
}

func TestChunkStateString(t *testing.T) {
	cases := map[chunkState]string{
		stateAvailable:  "available",
		stateUsedMixed:  "used_mixed",
		stateUsedData:   "used_data",
		stateQuarantine: "quarantined",
		stateMarked:     "marked",
		stateReleasing:  "releasing",
		chunkState(0xFF): "unknown",
	}
	for s, want := range cases {
		assert.Equal(t, want, s.String())
	}
}
