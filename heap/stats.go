package heap

// Statistics is a point-in-time snapshot of allocator-wide counters,
// returned by Allocator.Stats for the print-stats switch and for
// cmd/mtmallocctl's "stat" subcommand.
type Statistics struct {
	SuperPages        [numSizeClassRanges]uint32
	GlobalQuarantine  uint64
	LastQuarantine    uint64
	ScansRun          uint64
	AllocsByClass     [numSizeClasses]uint64
	FreesByClass      [numSizeClasses]uint64
}

func (s *Statistics) mergeThreadCache(tc *threadCache) {
	for i := 0; i < numSizeClasses; i++ {
		s.AllocsByClass[i] += tc.allocs[i].Load()
		s.FreesByClass[i] += tc.frees[i].Load()
	}
}
