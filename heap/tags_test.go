package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopByteIgnoreRoundTrip(t *testing.T) {
	addr := rangeBase(0) + 0x1234
	for tag := 0; tag < 16; tag++ {
		tagged := applyTag(schemeTopByteIgnore, addr, byte(tag))
		assert.Equal(t, addr, stripTag(schemeTopByteIgnore, tagged))
		assert.Equal(t, byte(tag), extractTag(schemeTopByteIgnore, tagged))
	}
}

func TestAliasSchemeRoundTrip(t *testing.T) {
	addr := rangeBase(0) + 7*superPageSize
	for tag := 0; tag < 16; tag++ {
		tagged := applyTag(schemeAlias, addr, byte(tag))
		assert.Equal(t, addr, stripTag(schemeAlias, tagged))
		assert.Equal(t, byte(tag), extractTag(schemeAlias, tagged))
	}
}

func TestAliasSchemeCopiesAreDisjoint(t *testing.T) {
	addr := rangeBase(0)
	a1 := applyTag(schemeAlias, addr, 1)
	a2 := applyTag(schemeAlias, addr, 2)
	assert.NotEqual(t, a1, a2)
	assert.Equal(t, a1+aliasStride, a2)
}

func TestTagWidthMask(t *testing.T) {
	assert.EqualValues(t, 0, tagWidthNone.mask())
	assert.EqualValues(t, 0x0F, tagWidth4.mask())
	assert.EqualValues(t, 0xFF, tagWidth8.mask())
}

func TestTagStoreNextTag(t *testing.T) {
	ts := &tagStore{width: tagWidth4}
	assert.EqualValues(t, 1, ts.nextTag(0))
	assert.EqualValues(t, 0, ts.nextTag(0x0F)) // wraps at the 4-bit boundary

	ts8 := &tagStore{width: tagWidth8}
	assert.EqualValues(t, 0, ts8.nextTag(0xFF))

	tsNone := &tagStore{width: tagWidthNone}
	assert.EqualValues(t, 0, tsNone.nextTag(5))
}

func TestTagStoreGetSetRoundTrip(t *testing.T) {
	ts := newTagStore(tagWidth4)
	require.NoError(t, ts.init())

	addr := rangeBase(0) + 5*smallGranule
	assert.EqualValues(t, 0, ts.getTag(addr))

	ts.setTag(addr, smallGranule, 7)
	assert.EqualValues(t, 7, ts.getTag(addr))

	// tag above the 4-bit mask is truncated on write
	ts.setTag(addr, smallGranule, 0xFF)
	assert.EqualValues(t, 0x0F, ts.getTag(addr))
}

func TestTagStoreSetTagCoversWholeRange(t *testing.T) {
	ts := newTagStore(tagWidth8)
	require.NoError(t, ts.init())

	base := rangeBase(1)
	ts.setTag(base, secondRangeAlignment*3, 0x5A)
	assert.EqualValues(t, 0x5A, ts.getTag(base))
	assert.EqualValues(t, 0x5A, ts.getTag(base+secondRangeAlignment))
	assert.EqualValues(t, 0x5A, ts.getTag(base+2*secondRangeAlignment))
}

func TestTagStoreGetTagDisabledAlwaysZero(t *testing.T) {
	ts := newTagStore(tagWidthNone)
	assert.EqualValues(t, 0, ts.getTag(rangeBase(0)))
}

func TestTagStoreRegionForUnownedAddrIsNil(t *testing.T) {
	ts := newTagStore(tagWidth4)
	require.NoError(t, ts.init())
	assert.Nil(t, ts.regionFor(0x1))
}

// TestQuarantineSkippedByTagIsPerCallNotStatic pins down the bug this
// guards against: deciding the skip from cfg alone (ignoring the tag
// the free just minted) would make 8-bit tagging disable quarantine on
// every single free instead of roughly 255 times out of 256.
func TestQuarantineSkippedByTagIsPerCallNotStatic(t *testing.T) {
	cfg := Config{UseTag: tagWidth8, QuarantineSize: 32}

	skipped := 0
	for newTag := 0; newTag < 256; newTag++ {
		if quarantineSkippedByTag(cfg, byte(newTag)) {
			skipped++
		}
	}
	assert.Equal(t, 255, skipped, "exactly one tag value in 256 (zero) must not be skipped")
	assert.False(t, quarantineSkippedByTag(cfg, 0), "a new tag of exactly zero must still quarantine")
	assert.True(t, quarantineSkippedByTag(cfg, 1), "any nonzero new tag must skip quarantine under 8-bit tagging")
}

func TestQuarantineSkippedByTagNeverAppliesOutsideEightBitTagging(t *testing.T) {
	for _, width := range []tagWidth{tagWidthNone, tagWidth4} {
		cfg := Config{UseTag: width, QuarantineSize: 32}
		for newTag := 0; newTag < 256; newTag++ {
			assert.False(t, quarantineSkippedByTag(cfg, byte(newTag)))
		}
	}
}
