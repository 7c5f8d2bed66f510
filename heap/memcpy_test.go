package heap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestCopyBytes(t *testing.T) {
	src := make([]byte, 32)
	for i := range src {
		src[i] = byte(i + 1)
	}
	dst := make([]byte, 32)

	copyBytes(uintptr(unsafe.Pointer(&dst[0])), uintptr(unsafe.Pointer(&src[0])), 32)
	assert.Equal(t, src, dst)
}
