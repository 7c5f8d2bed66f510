package heap

import "time"

// releaseLoop implements spec.md §4.8: a dedicated goroutine wakes
// every configured interval, picks one super-page round-robin across
// both ranges, and attempts to release it.
func (a *Allocator) releaseLoop() {
	ticker := time.NewTicker(time.Duration(a.cfg.ReleaseFreqMillis) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-a.releaseStop:
			return
		case <-ticker.C:
			a.releaseOne()
		}
	}
}

// releaseOne advances the round-robin cursor by one super-page,
// alternating ranges each tick, and attempts tryRelease on whatever it
// currently points at.
func (a *Allocator) releaseOne() {
	pos := a.releasePos.Add(1) - 1
	r := int(pos) % numSizeClassRanges
	n := a.numSuperPages[r].Load()
	if n == 0 {
		return
	}
	idx := uint32(pos/numSizeClassRanges) % n
	sp := a.superPages[r][idx].Load()
	if sp != nil {
		sp.tryRelease()
	}
}

// Close stops the release-to-OS background goroutine. Super-page and
// shadow mappings are never unmapped (spec.md §3: "Super-pages are
// never freed"), so Close does not attempt to reverse NewAllocator's
// reservations.
func (a *Allocator) Close() {
	a.releaseOnce.Do(func() {
		close(a.releaseStop)
	})
}
