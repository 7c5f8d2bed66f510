package heap

import "log/slog"

// This file implements spec.md §4.6's scan protocol using the
// safe-point substitute for directed signals described in
// SPEC_FULL.md §4.11: scanGen is even while idle and odd while a scan
// is in progress; Allocate and Free each check it once per call and
// run a shard if it's odd, the same cooperative-sharding idea
// ScanLoop/ScanShard use for signal-driven peers, just polled instead
// of interrupted into.

// maybeJoinScan is the one-atomic-load safe-point check every
// Allocate/Free performs.
func (a *Allocator) maybeJoinScan(tc *threadCache) {
	if a.scanGen.Load()&1 == 1 {
		a.scanShard()
	}
}

// triggerScan arms a scan if one is not already running, resets the
// per-range scan positions, and runs this caller's own shard before
// returning — mirroring spec.md §4.6 step 1-3 where "the coordinator
// thread also runs ScanShard()".
func (a *Allocator) triggerScan() {
	a.mu.Lock()
	if a.scanGen.Load()&1 == 1 {
		a.mu.Unlock()
		return
	}
	for r := 0; r < numSizeClassRanges; r++ {
		a.scanPos[r].Store(0)
	}
	a.scanGen.Add(1) // now odd: scan in progress: every safe-point check now joins in
	a.mu.Unlock()

	if a.cfg.PrintScan {
		Logger.Info("scan triggered")
	}
	a.nudgePeerThreads()
	a.scanShard()
	a.runScanUntilDone()
}

// runScanUntilDone keeps this goroutine running shards until both
// ranges are exhausted, then performs the single-threaded post-pass.
// In a real multi-threaded workload other goroutines calling
// Allocate/Free drain shards too via maybeJoinScan; this loop is what
// guarantees forward progress even under a single caller (e.g. the
// release-to-OS goroutine, or a lone allocating goroutine with no
// peers to cooperate).
func (a *Allocator) runScanUntilDone() {
	for !a.scanDone() {
		a.scanShard()
	}
	a.mu.Lock()
	if a.scanGen.Load()&1 == 1 {
		a.postScan()
		a.scanGen.Add(1) // back to even: scan finished
	}
	a.mu.Unlock()
}

func (a *Allocator) scanDone() bool {
	for r := 0; r < numSizeClassRanges; r++ {
		if a.scanPos[r].Load() < a.numSuperPages[r].Load() {
			return false
		}
	}
	return true
}

// scanShard implements spec.md §4.6 step 3: fetch-add a shard of
// super-page indices from the per-range position counter and mark
// each. It touches only atomic byte operations, integer arithmetic,
// and raw shadow loads/stores, so (per spec.md §5) it would remain
// safe to run from a true async signal handler if this port ever grew
// one; the safe-point caller here is a regular goroutine, not a
// signal context, so that constraint is inherited rather than load-
// bearing.
func (a *Allocator) scanShard() {
	for r := 0; r < numSizeClassRanges; r++ {
		n := a.numSuperPages[r].Load()
		if n == 0 {
			continue
		}
		start := a.scanPos[r].Add(scanPosIncrement) - scanPosIncrement
		end := start + scanPosIncrement
		if end > n {
			end = n
		}
		for i := start; i < end; i++ {
			sp := a.superPages[r][i].Load()
			if sp != nil {
				sp.markAllLivePointers()
			}
		}
	}
}

// markPointerCandidate implements spec.md §4.6's Mark(v): if v falls
// inside either range's reservation, compute its super-page and mark
// the chunk it lands in if that chunk is QUARANTINED.
func (a *Allocator) markPointerCandidate(v uintptr) {
	sp := a.superPageAt(v)
	if sp == nil {
		return
	}
	sp.mark(sp.chunkIndex(stripTag(a.scheme, v)))
}

// postScan implements spec.md §4.6's single-threaded post-pass: every
// QUARANTINED chunk becomes AVAILABLE, every MARKED chunk becomes
// QUARANTINED, and the survivors are summed into the new global
// quarantine baseline. Called with a.mu held.
func (a *Allocator) postScan() {
	var total uint64
	for r := 0; r < numSizeClassRanges; r++ {
		n := a.numSuperPages[r].Load()
		for i := uint32(0); i < n; i++ {
			sp := a.superPages[r][i].Load()
			if sp == nil {
				continue
			}
			total += sp.postScanSweep()
		}
	}
	a.globalQuarantine.Store(total)
	a.lastQuarantine = total
	a.scansRun.Add(1)
	if a.cfg.PrintScan {
		Logger.Info("scan complete", slog.Uint64("quarantine_bytes", total))
	}
}
