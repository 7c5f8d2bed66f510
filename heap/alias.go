package heap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// numAliases is the number of extra virtual mappings a software-alias
// super-page gets beyond its primary address, one per non-zero value
// the 4-bit alias tag field can hold (see the scheme-resolution note
// on aliasStride in tags.go).
const numAliases = 1<<aliasBitWidth - 1

// aliasAddr computes the address of alias i (1..numAliases) of the
// super-page whose primary, untagged address is base: the same
// super-page in the i-th reservation-sized copy of the address space.
func aliasAddr(base uintptr, i int) uintptr {
	return applyTag(schemeAlias, base, byte(i))
}

// mapSuperPageWithAliases backs one super-page with a memfd instead of
// an anonymous mapping, so the 15 additional fixed mappings spec.md
// §4.4 calls for can share its physical pages: two anonymous mappings
// of the same address range are always independent, but two MAP_SHARED
// mappings of the same fd are not.
func mapSuperPageWithAliases(base uintptr) error {
	fd, err := unix.MemfdCreate("mtalloc-superpage", 0)
	if err != nil {
		return fmt.Errorf("heap: memfd_create: %w", err)
	}
	defer unix.Close(fd)
	if err := unix.Ftruncate(fd, int64(superPageSize)); err != nil {
		return fmt.Errorf("heap: ftruncate memfd: %w", err)
	}

	flags := unix.MAP_FIXED | unix.MAP_SHARED
	if _, err := mmapFixedFd(base, superPageSize, unix.PROT_READ|unix.PROT_WRITE, flags, fd, 0); err != nil {
		return fmt.Errorf("heap: mmap primary alias: %w", err)
	}
	for i := 1; i <= numAliases; i++ {
		addr := aliasAddr(base, i)
		if _, err := mmapFixedFd(addr, superPageSize, unix.PROT_READ|unix.PROT_WRITE, flags, fd, 0); err != nil {
			return fmt.Errorf("heap: mmap alias %d: %w", i, err)
		}
	}
	return nil
}
