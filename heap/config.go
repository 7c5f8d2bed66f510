package heap

import (
	"os"
	"strconv"
)

// Config holds the runtime feature switches spec.md §6 lists, each
// sourced from a GOMTALLOC_* environment variable. Grounded line for
// line on mtmalloc_config.h's MallocConfig::Init/EnvToLong/EnvToBool.
type Config struct {
	PrintStats         bool
	PrintSuperPageAlloc bool
	PrintScan          bool

	LargeAllocFence   bool
	LargeAllocVerbose bool

	UseTag      tagWidth // 0=none, 1=4-bit, 2=8-bit
	UseShadow   bool
	UseAliases  bool

	QuarantineSize uint8 // 0..255; 0 disables quarantine

	HandleStopSignal bool

	ReleaseFreqMillis uint8 // 0..255; 0 disables the release-to-OS loop
}

// DefaultConfig matches the original's compiled-in defaults: shadow
// tagging on, quarantine on, no hardware aliases, periodic release.
func DefaultConfig() Config {
	return Config{
		UseTag:            tagWidth4,
		UseShadow:         true,
		QuarantineSize:    32,
		HandleStopSignal:  true,
		ReleaseFreqMillis: 100,
	}
}

// LoadConfig reads Config from the environment, falling back to
// DefaultConfig for any variable that is unset or malformed.
func LoadConfig() Config {
	c := DefaultConfig()
	c.PrintStats = envToBool("GOMTALLOC_PRINT_STATS", c.PrintStats)
	c.PrintSuperPageAlloc = envToBool("GOMTALLOC_PRINT_SUPERPAGE_ALLOC", c.PrintSuperPageAlloc)
	c.PrintScan = envToBool("GOMTALLOC_PRINT_SCAN", c.PrintScan)
	c.LargeAllocFence = envToBool("GOMTALLOC_LARGE_ALLOC_FENCE", c.LargeAllocFence)
	c.LargeAllocVerbose = envToBool("GOMTALLOC_LARGE_ALLOC_VERBOSE", c.LargeAllocVerbose)
	c.UseTag = tagWidth(envToLong("GOMTALLOC_USE_TAG", int64(c.UseTag), 0, 2))
	c.UseShadow = envToBool("GOMTALLOC_USE_SHADOW", c.UseShadow)
	c.UseAliases = envToBool("GOMTALLOC_USE_ALIASES", c.UseAliases)
	c.QuarantineSize = uint8(envToLong("GOMTALLOC_QUARANTINE_SIZE", int64(c.QuarantineSize), 0, 255))
	c.HandleStopSignal = envToBool("GOMTALLOC_HANDLE_STOP_SIGNAL", c.HandleStopSignal)
	c.ReleaseFreqMillis = uint8(envToLong("GOMTALLOC_RELEASE_FREQ", int64(c.ReleaseFreqMillis), 0, 255))
	return c
}

func envToBool(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envToLong(name string, def, min, max int64) int64 {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < min || n > max {
		return def
	}
	return n
}
