package heap

import "unsafe"

// superPage is one fixed-size, fixed-aligned region dedicated to a
// single size class for its whole lifetime (spec.md §3). Its chunk
// state bytes live in the owning allocator's external chunk-state
// shadow for its range, not inline (Decision D1).
type superPage struct {
	a        *Allocator
	base     uintptr
	rangeNum uint8
	index    uint32
	sc       sizeClass
	descr    sizeClassDescr
}

func (sp *superPage) stateBlock() unsafe.Pointer {
	return sp.a.chunkState[sp.rangeNum].blockPtr(sp.base)
}

func (sp *superPage) loadState(idx uint32) chunkState {
	return chunkState(loadStateByte(sp.stateBlock(), uintptr(idx)))
}

func (sp *superPage) storeState(idx uint32, s chunkState) {
	storeStateByte(sp.stateBlock(), uintptr(idx), byte(s))
}

func (sp *superPage) casState(idx uint32, old, new chunkState) bool {
	return casStateByte(sp.stateBlock(), uintptr(idx), byte(old), byte(new))
}

// chunkAddr computes the address of chunk idx; the inverse of
// chunkIndex. Both rely on the super-page being aligned to its own
// size, so base+i*chunkSize never crosses into the next super-page.
func (sp *superPage) chunkAddr(idx uint32) uintptr {
	return sp.base + uintptr(idx)*uintptr(sp.descr.chunkSize)
}

// chunkIndex computes which chunk addr (anywhere inside the
// super-page, not necessarily chunk-aligned) falls in, via the
// divide-by-multiply identity verified at startup (sizeclass.go).
func (sp *superPage) chunkIndex(addr uintptr) uint32 {
	offset := addr - sp.base
	return uint32(divBySizeViaMul(uint64(offset), sp.descr.chunkSizeMulDiv))
}

// tryAllocate implements the fast path of spec.md §4.2: scan for an
// AVAILABLE chunk starting at hint, CAS it to the wanted used state,
// and report the winning index plus the next hint.
func (sp *superPage) tryAllocate(hint uint32, dataOnly bool) (idx uint32, nextHint uint32, ok bool) {
	want := stateUsedMixed
	if dataOnly {
		want = stateUsedData
	}
	base := sp.stateBlock()
	found := findAvailable(base, sp.descr.numChunks, hint, func(i uint32) bool {
		return casStateByte(base, uintptr(i), byte(stateAvailable), byte(want))
	})
	if found < 0 {
		return 0, hint, false
	}
	return uint32(found), uint32(found) + 1, true
}

// free implements spec.md §4.5's state write: AVAILABLE directly if
// quarantine is disabled, else QUARANTINED. Returns the prior state so
// the caller can detect double-free (prior state not USED_*).
func (sp *superPage) free(idx uint32, quarantine bool) chunkState {
	next := stateAvailable
	if quarantine {
		next = stateQuarantine
	}
	base := sp.stateBlock()
	for {
		old := chunkState(loadStateByte(base, uintptr(idx)))
		if !old.isLive() {
			return old
		}
		if casStateByte(base, uintptr(idx), byte(old), byte(next)) {
			return old
		}
	}
}

// mark implements spec.md §4.6's Mark(v): a QUARANTINED chunk that a
// conservative scan finds a live pointer into is promoted to MARKED so
// the post-pass returns it to QUARANTINED instead of AVAILABLE.
func (sp *superPage) mark(idx uint32) {
	casStateByte(sp.stateBlock(), uintptr(idx), byte(stateQuarantine), byte(stateMarked))
}

// markAllLivePointers implements spec.md §4.6's per-super-page scan
// step: every USED_MIXED chunk's bytes are walked at pointer alignment
// and any word that looks like a pointer into either range gets routed
// through the owning allocator's mark dispatch.
func (sp *superPage) markAllLivePointers() {
	base := sp.stateBlock()
	chunkSize := uintptr(sp.descr.chunkSize)
	for i := uint32(0); i < sp.descr.numChunks; i++ {
		if loadStateByte(base, uintptr(i)) != byte(stateUsedMixed) {
			continue
		}
		addr := sp.chunkAddr(i)
		scanWordsForPointers(addr, chunkSize, sp.a.markPointerCandidate)
	}
}

// scanWordsForPointers walks [addr, addr+size) at pointer alignment,
// calling visit with every word's raw bit pattern reinterpreted as a
// pointer value. It never dereferences the word itself, only reads it
// as an integer, so it is safe to run over memory that may not
// actually hold valid pointers (spec.md's "conservative" scan).
func scanWordsForPointers(addr, size uintptr, visit func(uintptr)) {
	const wordSize = unsafe.Sizeof(uintptr(0))
	for off := uintptr(0); off+wordSize <= size; off += wordSize {
		v := *(*uintptr)(unsafe.Pointer(addr + off))
		visit(v)
	}
}

// postScanSweep implements spec.md §4.6's post-pass for one
// super-page: QUARANTINED -> AVAILABLE, MARKED -> QUARANTINED, and
// returns the bytes still held in (the now-QUARANTINED-again) chunks.
func (sp *superPage) postScanSweep() uint64 {
	base := sp.stateBlock()
	var quarantined uint64
	chunkSize := uint64(sp.descr.chunkSize)
	for i := uint32(0); i < sp.descr.numChunks; i++ {
		switch chunkState(loadStateByte(base, uintptr(i))) {
		case stateQuarantine:
			storeStateByte(base, uintptr(i), byte(stateAvailable))
		case stateMarked:
			storeStateByte(base, uintptr(i), byte(stateQuarantine))
			quarantined += chunkSize
		}
	}
	return quarantined
}

// resetForRelease restores a super-page's external state bytes to
// AVAILABLE after the backing pages were MADV_DONTNEED'd. Because the
// state array is external for both ranges (Decision D1), the kernel
// never zeroes it, so this step runs for range-0 and range-1
// super-pages alike, unlike the original's inline-vs-external split.
func (sp *superPage) resetForRelease() {
	base := sp.stateBlock()
	for i := uint32(0); i < sp.descr.numChunks; i++ {
		storeStateByte(base, uintptr(i), byte(stateAvailable))
	}
}

// tryRelease implements spec.md §4.8: CAS every chunk AVAILABLE to
// RELEASING, aborting and reverting if any chunk is not AVAILABLE or
// any CAS loses a race, then madvise the backing pages away on
// success.
func (sp *superPage) tryRelease() bool {
	base := sp.stateBlock()
	var i uint32
	for i = 0; i < sp.descr.numChunks; i++ {
		if !casStateByte(base, uintptr(i), byte(stateAvailable), byte(stateReleasing)) {
			break
		}
	}
	if i < sp.descr.numChunks {
		for j := uint32(0); j < i; j++ {
			storeStateByte(base, uintptr(j), byte(stateAvailable))
		}
		return false
	}
	if err := madviseFree(sp.base, superPageSize); err != nil {
		for j := uint32(0); j < sp.descr.numChunks; j++ {
			storeStateByte(base, uintptr(j), byte(stateAvailable))
		}
		return false
	}
	sp.resetForRelease()
	return true
}
