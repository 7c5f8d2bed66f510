package heap

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
)

// classCache is the per-size-class half of a threadCache: a favourite
// super-page and a rotating hint into its state array, mirroring
// spec.md §3's "per-thread state" fields for one class.
type classCache struct {
	favorite *superPage
	hint     uint32
}

// threadCache is this port's substitute for spec.md's per-OS-thread
// state (see SPEC_FULL.md Decision D3): Go exposes no portable
// per-OS-thread storage and goroutines migrate between OS threads, so
// affinity is approximated with a sync.Pool of these structs instead
// of a real thread-local variable with a per-thread exit destructor.
type threadCache struct {
	seed      uint64
	localQuar uintptr // bytes pushed into quarantine, not yet flushed globally
	classes   [numSizeClasses]classCache
	allocs    [numSizeClasses]atomic.Uint64
	frees     [numSizeClasses]atomic.Uint64
}

var threadCachePool = sync.Pool{
	New: func() any {
		tc := &threadCache{seed: rand.Uint64()}
		liveThreadCaches.Store(tc, struct{}{})
		return tc
	},
}

// liveThreadCaches tracks every threadCache the pool has ever minted,
// idle or currently on loan to a goroutine. sync.Pool has no iteration
// API (its whole point is letting the runtime drop entries silently
// under memory pressure), so Stats needs this side registry to sum
// per-class counters across caches it can't otherwise reach. Entries
// are never removed: a dropped-by-the-GC pool member is harmless to
// keep summing over, since its counters simply stop advancing.
var liveThreadCaches sync.Map

// acquireThreadCache hands out a cache for the duration of one
// Allocate/Free call; the caller must releaseThreadCache it before
// returning, folding any accumulated local quarantine bytes into the
// global counter first if the caller is done with it for good (it
// never is mid-call, only the Pool's background clearing drops one,
// which is the accepted trade-off Decision D3 documents).
func acquireThreadCache() *threadCache {
	return threadCachePool.Get().(*threadCache)
}

func releaseThreadCache(tc *threadCache) {
	threadCachePool.Put(tc)
}

// nextRandom advances the cache's PRNG seed and returns a pseudo-random
// value used to pick a random starting super-page in the slow path
// (§4.3) — an xorshift64* step, cheap enough for the hot path and good
// enough for load-spreading, not for anything security-sensitive.
func (tc *threadCache) nextRandom() uint64 {
	x := tc.seed
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	tc.seed = x
	return x * 0x2545F4914F6CDD1D
}

func (tc *threadCache) recordAlloc(sc sizeClass) {
	tc.allocs[sc].Add(1)
}

func (tc *threadCache) recordFree(sc sizeClass) {
	tc.frees[sc].Add(1)
}
