// Package largealloc is the out-of-scope large-object allocator
// spec.md §1 asks for as an interface-only external collaborator: a
// separate component for requests above heap.maxSmallSize. It is
// grounded on mtmalloc_large.h's header-prefixed mmap scheme — one
// full page of header in front of every allocation, holding a magic
// number pair and the mmap size so Free/SizeOf can recover it
// without a side table.
package largealloc

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	pageSize = 1 << 12

	leftHeaderMagic  = 0x039C823525B0237E
	rightHeaderMagic = 0x1C2C5300098D85AD

	headerBytes = 24 // magic, mmapSize, magic, 8 bytes each
)

// LargeAllocator is the contract spec.md §1/§6.4 asks the core to
// delegate out-of-range requests to.
type LargeAllocator interface {
	Allocate(size, alignment uintptr) (unsafe.Pointer, error)
	SizeOf(p unsafe.Pointer) uintptr
	Free(p unsafe.Pointer, protectOnFree bool) error
	Owns(p unsafe.Pointer) bool
}

// Allocator is the minimal mmap-backed implementation: correctness and
// interface fidelity only, not hardened against adversarial input
// (per SPEC_FULL.md §6.4, hardening this component is explicitly out
// of scope for this port).
//
// Every mapping is driven through raw mmap/munmap/mprotect syscalls
// rather than golang.org/x/sys/unix's []byte-returning Mmap/Munmap:
// those track each mapping by the identity of the slice Mmap handed
// back, but Free here recomputes the mapping's base from the header
// embedded in it, not from a retained slice, so there is no tracked
// slice to hand Munmap.
type Allocator struct {
	verbose bool
}

func New(verbose bool) *Allocator {
	return &Allocator{verbose: verbose}
}

func roundUpTo(n, mult uintptr) uintptr {
	return (n + mult - 1) &^ (mult - 1)
}

// Allocate mmaps size rounded up to a page, prefixed by one page of
// header. alignment above pageSize is not supported, matching the
// original's own scope (see spec.md §9's valloc/memalign note).
func (a *Allocator) Allocate(size, alignment uintptr) (unsafe.Pointer, error) {
	if alignment > pageSize {
		return nil, fmt.Errorf("largealloc: alignment %d exceeds page size", alignment)
	}
	rounded := roundUpTo(size, pageSize)
	total := rounded + pageSize

	base, _, errno := unix.Syscall6(unix.SYS_MMAP, 0, total,
		uintptr(unix.PROT_READ|unix.PROT_WRITE),
		uintptr(unix.MAP_ANON|unix.MAP_PRIVATE|unix.MAP_NORESERVE), ^uintptr(0), 0)
	if errno != 0 {
		return nil, fmt.Errorf("largealloc: mmap %d bytes: %w", total, errno)
	}
	if a.verbose {
		fmt.Printf("LargeAllocator::Allocate:   0x%x %d\n", base, total)
	}

	writeHeader(base, total)
	return unsafe.Pointer(base + pageSize), nil
}

// SizeOf returns the usable size of the region, i.e. the requested
// size rounded up to a page (the mmap size minus the header page),
// matching GetPtrChunkSize.
func (a *Allocator) SizeOf(p unsafe.Pointer) uintptr {
	base, size, err := headerOf(p)
	if err != nil {
		return 0
	}
	_ = base
	return size - pageSize
}

// Free either unmaps the region (protectOnFree == false) or remaps it
// PROT_NONE in place so further use-after-free accesses fault instead
// of silently succeeding against memory the kernel could have handed
// to an unrelated mapping (protectOnFree == true, the large-alloc-
// fence config switch from spec.md §6).
func (a *Allocator) Free(p unsafe.Pointer, protectOnFree bool) error {
	base, size, err := headerOf(p)
	if err != nil {
		return err
	}

	if a.verbose {
		mode := "recycle"
		if protectOnFree {
			mode = "protect"
		}
		fmt.Printf("LargeAllocator::Deallocate: 0x%x %d %s\n", base, size, mode)
	}

	if protectOnFree {
		_, _, errno := unix.Syscall(unix.SYS_MPROTECT, base, size, uintptr(unix.PROT_NONE))
		if errno != 0 {
			return fmt.Errorf("largealloc: mprotect: %w", errno)
		}
		return nil
	}
	_, _, errno := unix.Syscall(unix.SYS_MUNMAP, base, size, 0)
	if errno != 0 {
		return fmt.Errorf("largealloc: munmap: %w", errno)
	}
	return nil
}

// Owns reports whether p looks like a pointer this allocator handed
// out, by checking the header magic numbers. Best-effort: like the
// original, it trusts the caller to have already excluded pointers
// owned by the small/medium allocator.
func (a *Allocator) Owns(p unsafe.Pointer) bool {
	_, _, err := headerOf(p)
	return err == nil
}

func writeHeader(base, size uintptr) {
	header := unsafe.Slice((*byte)(unsafe.Pointer(base)), headerBytes)
	binary.LittleEndian.PutUint64(header[0:8], leftHeaderMagic)
	binary.LittleEndian.PutUint64(header[8:16], uint64(size))
	binary.LittleEndian.PutUint64(header[16:24], rightHeaderMagic)
}

// headerOf recovers the mapping's base address and total mmap size
// given a pointer previously returned by Allocate, verifying the
// magic numbers the way GetHeader does.
func headerOf(p unsafe.Pointer) (base, size uintptr, err error) {
	base = uintptr(p) - pageSize
	header := unsafe.Slice((*byte)(unsafe.Pointer(base)), headerBytes)
	left := binary.LittleEndian.Uint64(header[0:8])
	right := binary.LittleEndian.Uint64(header[16:24])
	if left != leftHeaderMagic || right != rightHeaderMagic {
		return 0, 0, fmt.Errorf("largealloc: pointer %p is not a large allocation", p)
	}
	return base, uintptr(binary.LittleEndian.Uint64(header[8:16])), nil
}
