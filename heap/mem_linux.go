package heap

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// golang.org/x/sys/unix's Mmap/Munmap/Mremap/Madvise/Mprotect all work
// in terms of a []byte previously handed back by Mmap itself, and Mmap
// never exposes the addr argument to the underlying mmap(2) call (it
// always asks the kernel to pick, then wraps the result). None of that
// fits this package: every mapping here must land at one exact,
// pre-reserved canonical address (the super-page arena, the two
// chunk-state shadows, the two tag shadows, the super-page size-class
// table) and is sized in the tens of gigabytes, far larger than
// anything that should be held as a single Go []byte. mmapFixed and
// munmapFixed go around the high-level wrappers and drive mmap(2)/
// munmap(2) directly through unix.Syscall6/unix.RawSyscall, the same
// primitive unix.Mmap itself is built on, operating on uintptrs instead.

// mmapFixed maps length bytes at exactly addr. Every caller in this
// package passes MAP_FIXED, so any existing mapping there (such as an
// earlier mmapReserve) is replaced; a mapping the kernel places at any
// other address is unmapped again and reported as an error.
func mmapFixed(addr, length uintptr, prot, flags int) (uintptr, error) {
	return mmapFixedFd(addr, length, prot, flags, -1, 0)
}

// mmapFixedFd is mmapFixed with an explicit backing file descriptor,
// used to map the same physical pages at several virtual aliases
// (software address-tag aliasing, spec.md §4.4) — anonymous mappings
// can never share pages across two mmap calls, only a real fd can.
func mmapFixedFd(addr, length uintptr, prot, flags, fd int, offset int64) (uintptr, error) {
	ret, _, errno := unix.Syscall6(unix.SYS_MMAP,
		addr, length, uintptr(prot), uintptr(flags), uintptr(fd), uintptr(offset))
	if errno != 0 {
		return 0, fmt.Errorf("mmap(0x%x, %d): %w", addr, length, errno)
	}
	if ret != addr {
		munmapFixed(ret, length)
		return 0, fmt.Errorf("mmap(0x%x, %d): kernel returned 0x%x instead", addr, length, ret)
	}
	return ret, nil
}

// mmapReserve reserves length bytes of address space at addr without
// committing physical memory, the same PROT_NONE|MAP_NORESERVE idiom
// the Go runtime's sysReserve uses before sysMap'ing pieces of it later.
func mmapReserve(addr, length uintptr) (uintptr, error) {
	return mmapFixed(addr, length, unix.PROT_NONE,
		unix.MAP_FIXED|unix.MAP_ANON|unix.MAP_PRIVATE|unix.MAP_NORESERVE)
}

// mmapCommit upgrades a previously reserved range to read/write,
// backing it with zeroed pages on first touch.
func mmapCommit(addr, length uintptr) error {
	_, err := mmapFixed(addr, length, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_FIXED|unix.MAP_ANON|unix.MAP_PRIVATE|unix.MAP_NORESERVE)
	return err
}

func munmapFixed(addr, length uintptr) {
	unix.RawSyscall(unix.SYS_MUNMAP, addr, length, 0)
}

// madviseFree tells the kernel it may reclaim the physical pages
// backing [addr, addr+length) without unmapping the virtual range,
// used when a super-page is released back to the OS but its address
// range stays reserved for reuse (see superPage.tryRelease).
func madviseFree(addr, length uintptr) error {
	return unix.Madvise(unsafeByteSliceView(addr, length), unix.MADV_DONTNEED)
}

// unsafeByteSliceView builds a []byte over [addr, addr+length) without
// copying, for the handful of golang.org/x/sys/unix helpers (Madvise,
// Mprotect) that only accept a slice. The slice must never outlive the
// mapping it views and must never be appended to or reallocated.
func unsafeByteSliceView(addr, length uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
}
