package heap

import "unsafe"

// copyBytes copies n bytes from src to dst, both raw heap addresses.
// Used by Realloc; not on any allocate/free hot path.
func copyBytes(dst, src, n uintptr) {
	copy(unsafe.Slice((*byte)(unsafe.Pointer(dst)), n), unsafe.Slice((*byte)(unsafe.Pointer(src)), n))
}
