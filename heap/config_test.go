package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigMatchesCompiledDefaults(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, tagWidth4, c.UseTag)
	assert.True(t, c.UseShadow)
	assert.False(t, c.UseAliases)
	assert.EqualValues(t, 32, c.QuarantineSize)
	assert.True(t, c.HandleStopSignal)
	assert.EqualValues(t, 100, c.ReleaseFreqMillis)
}

func TestLoadConfigReadsEnvOverrides(t *testing.T) {
	t.Setenv("GOMTALLOC_PRINT_STATS", "true")
	t.Setenv("GOMTALLOC_USE_TAG", "2")
	t.Setenv("GOMTALLOC_USE_ALIASES", "true")
	t.Setenv("GOMTALLOC_QUARANTINE_SIZE", "10")
	t.Setenv("GOMTALLOC_RELEASE_FREQ", "5")

	c := LoadConfig()
	assert.True(t, c.PrintStats)
	assert.Equal(t, tagWidth8, c.UseTag)
	assert.True(t, c.UseAliases)
	assert.EqualValues(t, 10, c.QuarantineSize)
	assert.EqualValues(t, 5, c.ReleaseFreqMillis)
}

func TestLoadConfigFallsBackOnMalformedValue(t *testing.T) {
	t.Setenv("GOMTALLOC_USE_TAG", "not-a-number")
	t.Setenv("GOMTALLOC_QUARANTINE_SIZE", "999") // outside 0..255: falls back to the default

	c := LoadConfig()
	assert.Equal(t, DefaultConfig().UseTag, c.UseTag)
	assert.Equal(t, DefaultConfig().QuarantineSize, c.QuarantineSize)
}

func TestEnvToBoolUnsetReturnsDefault(t *testing.T) {
	assert.True(t, envToBool("GOMTALLOC_DOES_NOT_EXIST", true))
	assert.False(t, envToBool("GOMTALLOC_DOES_NOT_EXIST", false))
}

func TestEnvToLongOutOfRangeReturnsDefault(t *testing.T) {
	t.Setenv("GOMTALLOC_TEST_LONG", "1000")
	assert.EqualValues(t, 42, envToLong("GOMTALLOC_TEST_LONG", 42, 0, 255))
}
