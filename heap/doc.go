// Package heap implements the core of a memory-tagging-aware heap
// allocator: a segregated size-class engine built on fixed-size,
// fixed-aligned super-pages, a quarantine, and a stop-the-world
// mark-only scan that recycles quarantined chunks once no live
// pointer into them can be found.
//
// The design follows the Go runtime's own small-object allocator
// (mheap/mcache/mspan) generalized to carry a per-chunk quarantine
// state and a memory tag, the way LLVM's MTMalloc prototype layers
// memory tagging on top of a runtime-shaped segregated allocator.
//
// Everything in this package talks to the OS exclusively through
// golang.org/x/sys/unix; nothing here calls into cgo.
package heap
