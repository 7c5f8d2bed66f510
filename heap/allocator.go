package heap

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Allocator is the process-wide singleton spec.md §9 calls for: an
// explicit, guarded, one-time-initialised state object rather than a
// bare global (the teacher's mheap plays the same role for the Go
// runtime's own allocator). Every public operation is a method on it.
type Allocator struct {
	cfg    Config
	scheme addressTagScheme
	tags   *tagStore

	superPageMeta *shadowRegion
	chunkState    [numSizeClassRanges]*shadowRegion

	mu            sync.Mutex // super-page creation + scan arming (spec.md §5)
	numSuperPages [numSizeClassRanges]atomic.Uint32
	superPages    [numSizeClassRanges][]atomic.Pointer[superPage]

	scanPos  [numSizeClassRanges]atomic.Uint32
	scanGen  atomic.Uint64 // even = idle, odd = scan in progress (§4.11 safe-point)
	scansRun atomic.Uint64

	globalQuarantine atomic.Uint64
	lastQuarantine   uint64 // only touched under mu, by PostScan

	dataOnlyDepth atomic.Int32

	releasePos  atomic.Uint64 // packed (range<<32 | index), round-robin cursor for release-to-OS
	releaseStop chan struct{}
	releaseOnce sync.Once
}

var (
	defaultAllocator *Allocator
	defaultOnce      sync.Once
)

// Default returns the process-wide allocator, constructing it from
// LoadConfig on first use.
func Default() *Allocator {
	defaultOnce.Do(func() {
		a, err := NewAllocator(LoadConfig())
		if err != nil {
			outOfMemory("Default", err)
		}
		defaultAllocator = a
	})
	return defaultAllocator
}

// NewAllocator reserves the fixed address space and shadow mappings
// and returns a ready-to-use allocator. Only one Allocator backed by
// the real OS mappings may exist per process at a time, since every
// region is reserved at a fixed address (spec.md §6's "Process-wide
// state layout").
func NewAllocator(cfg Config) (*Allocator, error) {
	a := &Allocator{cfg: cfg}

	a.scheme = schemeTopByteIgnore
	if cfg.UseAliases {
		a.scheme = schemeAlias
	}

	tagW := cfg.UseTag
	if !cfg.UseShadow {
		tagW = tagWidthNone
	}
	a.tags = newTagStore(tagW)
	if tagW != tagWidthNone {
		if err := a.tags.init(); err != nil {
			return nil, err
		}
	}

	a.superPageMeta = newSuperPageMetaShadow()
	if err := a.superPageMeta.init(); err != nil {
		return nil, err
	}
	for r := 0; r < numSizeClassRanges; r++ {
		a.chunkState[r] = newChunkStateShadow(r)
		if err := a.chunkState[r].init(); err != nil {
			return nil, err
		}
		if _, err := mmapReserve(rangeBase(r), allocatorSize/2); err != nil {
			return nil, err
		}
		a.superPages[r] = make([]atomic.Pointer[superPage], rangeCapacity())
	}

	a.releaseStop = make(chan struct{})
	if cfg.ReleaseFreqMillis > 0 {
		go a.releaseLoop()
	}
	return a, nil
}

// Owns implements spec.md §6's owns(pointer): a pure range test on the
// fixed reservation, after stripping any address tag.
func (a *Allocator) Owns(addr uintptr) bool {
	addr = stripTag(a.scheme, addr)
	for r := 0; r < numSizeClassRanges; r++ {
		base := rangeBase(r)
		if addr >= base && addr < base+allocatorSize/2 {
			return true
		}
	}
	return false
}

// superPageAt returns the super-page covering addr, or nil if no
// super-page has been created there yet.
func (a *Allocator) superPageAt(addr uintptr) *superPage {
	addr = stripTag(a.scheme, addr)
	for r := 0; r < numSizeClassRanges; r++ {
		base := rangeBase(r)
		if addr < base || addr >= base+allocatorSize/2 {
			continue
		}
		idx := uint32((addr - base) / superPageSize)
		if int(idx) >= len(a.superPages[r]) {
			return nil
		}
		return a.superPages[r][idx].Load()
	}
	return nil
}

// SizeOf implements spec.md §6's size_of(pointer): the chunk size of
// the super-page owning addr, or 0 if unowned.
func (a *Allocator) SizeOf(addr uintptr) uintptr {
	sp := a.superPageAt(addr)
	if sp == nil {
		return 0
	}
	return uintptr(sp.descr.chunkSize)
}

// EnterDataOnlyScope and ExitDataOnlyScope implement the data-only
// scope depth counter of spec.md §3: the depth is allocator-wide, and
// while it is nonzero every allocation, from any goroutine, carries
// USED_DATA state instead of USED_MIXED (skipped by the conservative
// scan).
func (a *Allocator) EnterDataOnlyScope() { a.dataOnlyDepth.Add(1) }
func (a *Allocator) ExitDataOnlyScope()  { a.dataOnlyDepth.Add(-1) }

func (a *Allocator) dataOnly() bool { return a.dataOnlyDepth.Load() > 0 }

// Allocate implements the public allocate(size) operation: resolve a
// size class, run the safe-point check, then the fast and slow paths
// of spec.md §4.2/§4.3.
func (a *Allocator) Allocate(size uintptr) (uintptr, error) {
	if size > maxSmallSize {
		return 0, fmt.Errorf("heap: size %d exceeds maxSmallSize %d", size, maxSmallSize)
	}
	sc, descr, err := resolve(size)
	if err != nil {
		return 0, err
	}
	tc := acquireThreadCache()
	defer releaseThreadCache(tc)
	a.maybeJoinScan(tc)
	return a.allocateClass(tc, sc, descr)
}

func (a *Allocator) allocateClass(tc *threadCache, sc sizeClass, descr sizeClassDescr) (uintptr, error) {
	cc := &tc.classes[sc]
	dataOnly := a.dataOnly()

	if cc.favorite != nil {
		if idx, next, ok := cc.favorite.tryAllocate(cc.hint, dataOnly); ok {
			cc.hint = next
			return a.finishAllocate(tc, sc, cc.favorite, idx), nil
		}
	}
	return a.allocateSlower(tc, sc, descr, dataOnly)
}

// allocateSlower implements spec.md §4.3: scan existing super-pages of
// the class's range for a free chunk without taking the global lock,
// and create a new super-page (under the lock, in createSuperPage) if
// none has one.
func (a *Allocator) allocateSlower(tc *threadCache, sc sizeClass, descr sizeClassDescr, dataOnly bool) (uintptr, error) {
	r := descr.rangeNum
	for {
		n := a.numSuperPages[r].Load()
		if n > 0 {
			start := uint32(tc.nextRandom() % uint64(n))
			for i := uint32(0); i < n; i++ {
				idx := (start + i) % n
				sp := a.superPages[r][idx].Load()
				if sp == nil || sp.sc != sc {
					continue
				}
				if chunkIdx, next, ok := sp.tryAllocate(tc.classes[sc].hint, dataOnly); ok {
					tc.classes[sc].favorite = sp
					tc.classes[sc].hint = next
					return a.finishAllocate(tc, sc, sp, chunkIdx), nil
				}
			}
		}
		sp, err := a.createSuperPage(sc, descr)
		if err != nil {
			return 0, err
		}
		tc.classes[sc].favorite = sp
		tc.classes[sc].hint = 0
	}
}

func (a *Allocator) finishAllocate(tc *threadCache, sc sizeClass, sp *superPage, idx uint32) uintptr {
	addr := sp.chunkAddr(idx)
	tag := a.tags.getTag(addr)
	tc.recordAlloc(sc)
	if a.cfg.PrintStats {
		Logger.Debug("allocate", slog.Uint64("addr", uint64(addr)), slog.Int("class", int(sc)))
	}
	return applyTag(a.scheme, addr, tag)
}

// createSuperPage implements spec.md §4.4 under the global lock.
func (a *Allocator) createSuperPage(sc sizeClass, descr sizeClassDescr) (*superPage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := descr.rangeNum
	idx := a.numSuperPages[r].Load()
	if uintptr(idx) >= rangeCapacity() {
		return nil, fmt.Errorf("heap: range %d exhausted at %d super-pages", r, idx)
	}
	base := rangeBase(int(r)) + uintptr(idx)*superPageSize
	if a.cfg.UseAliases {
		if err := mapSuperPageWithAliases(base); err != nil {
			return nil, err
		}
	} else if err := mmapCommit(base, superPageSize); err != nil {
		return nil, err
	}
	storeStateByte(a.superPageMeta.bytePtr(base), 0, byte(sc))

	sp := &superPage{a: a, base: base, rangeNum: r, index: idx, sc: sc, descr: descr}
	for i := uint32(0); i < descr.numChunks; i++ {
		a.tags.setTag(sp.chunkAddr(i), uintptr(descr.chunkSize), 0)
	}
	a.superPages[r][idx].Store(sp)
	a.numSuperPages[r].Store(idx + 1) // release store: readers use Load (acquire)

	if a.cfg.PrintSuperPageAlloc {
		Logger.Info("super-page created", slog.Uint64("base", uint64(base)), slog.Int("class", int(sc)))
	}
	return sp, nil
}

// Free implements spec.md §4.5.
func (a *Allocator) Free(addr uintptr) error {
	canonical := stripTag(a.scheme, addr)
	sp := a.superPageAt(canonical)
	if sp == nil {
		return fmt.Errorf("heap: free of unowned pointer 0x%x", addr)
	}

	if a.cfg.UseAliases {
		want := a.tags.getTag(canonical)
		got := extractTag(a.scheme, addr)
		if want != got {
			tagMismatch(canonical, want, got)
			return nil // unreachable: tagMismatch calls os.Exit
		}
	}

	idx := sp.chunkIndex(canonical)
	chunkAddr := sp.chunkAddr(idx)
	oldTag := a.tags.getTag(chunkAddr)
	newTag := a.tags.nextTag(oldTag)

	quarantine := a.cfg.QuarantineSize > 0 && !quarantineSkippedByTag(a.cfg, newTag)

	prior := sp.free(idx, quarantine)
	if !prior.isLive() {
		doubleFree(chunkAddr)
		return nil // unreachable: doubleFree calls os.Exit
	}
	a.tags.setTag(chunkAddr, uintptr(sp.descr.chunkSize), newTag)

	tc := acquireThreadCache()
	tc.recordFree(sp.sc)
	if quarantine {
		tc.localQuar += uintptr(sp.descr.chunkSize)
		if tc.localQuar >= localQuarantineFlushThreshold {
			a.flushQuarantine(tc.localQuar)
			tc.localQuar = 0
		}
	}
	a.maybeJoinScan(tc)
	releaseThreadCache(tc)
	return nil
}

func (a *Allocator) flushQuarantine(bytes uintptr) {
	total := a.globalQuarantine.Add(uint64(bytes))
	// The limit is the configured size (MiB) plus the quarantine that
	// survived the previous scan, so after a scan that recovers little
	// the next scan needs correspondingly more freed bytes to trigger.
	a.mu.Lock()
	limit := uint64(a.cfg.QuarantineSize)<<20 + a.lastQuarantine
	a.mu.Unlock()
	if total > limit {
		a.triggerScan()
	}
}

// AllocateAligned implements spec.md §4.10.
func (a *Allocator) AllocateAligned(alignment, size uintptr) (uintptr, error) {
	if alignment <= 16 {
		return a.Allocate(size)
	}
	if alignment > superPageSize {
		return 0, fmt.Errorf("heap: alignment %d exceeds super-page size, delegate to large allocator", alignment)
	}
	for sc := sizeClass(0); int(sc) < numSizeClasses; sc++ {
		descr := sizeClassDescrs[sc]
		if uintptr(descr.chunkSize) < size {
			continue
		}
		if uintptr(descr.chunkSize)%alignment != 0 {
			continue
		}
		tc := acquireThreadCache()
		defer releaseThreadCache(tc)
		a.maybeJoinScan(tc)
		return a.allocateClass(tc, sc, descr)
	}
	return 0, fmt.Errorf("heap: no size class satisfies alignment %d for size %d", alignment, size)
}

// Realloc implements spec.md §4.9. Per SPEC_FULL.md §9, the copied
// byte count is min(size_of(p), n): the chunk size backing p, since
// this port never stashes the originally requested size.
func (a *Allocator) Realloc(addr, newSize uintptr) (uintptr, error) {
	oldSize := a.SizeOf(addr)
	newAddr, err := a.Allocate(newSize)
	if err != nil {
		return 0, err
	}
	n := oldSize
	if newSize < n {
		n = newSize
	}
	if n > 0 {
		copyBytes(newAddr, addr, n)
	}
	if err := a.Free(addr); err != nil {
		return 0, err
	}
	return newAddr, nil
}

// Stats returns a snapshot of allocator-wide counters for the
// print-stats switch and cmd/mtmallocctl's stat subcommand. Per-class
// alloc/free counts are summed live across every threadCache the pool
// has ever minted (see liveThreadCaches in threadcache.go), whether
// it's idle in the pool or currently on loan to a goroutine — the
// counters are monotonic atomics, so reading one mid-use is safe and
// just catches it a moment before its next increment.
func (a *Allocator) Stats() Statistics {
	var s Statistics
	for r := 0; r < numSizeClassRanges; r++ {
		s.SuperPages[r] = a.numSuperPages[r].Load()
	}
	s.GlobalQuarantine = a.globalQuarantine.Load()
	s.LastQuarantine = a.lastQuarantine
	s.ScansRun = a.scansRun.Load()
	liveThreadCaches.Range(func(k, _ any) bool {
		s.mergeThreadCache(k.(*threadCache))
		return true
	})
	return s
}
