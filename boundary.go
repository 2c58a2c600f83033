package sensormux

import "fmt"

// Boundary moves bytes between a caller's memory and the channel's internal
// buffers. Implementations report a failed transfer with ErrBoundaryFault.
type Boundary interface {
	// CopyIn copies src, owned by the caller, into dst.
	CopyIn(dst, src []byte) (int, error)
	// CopyOut copies src into dst, owned by the caller.
	CopyOut(dst, src []byte) (int, error)
}

// MemoryBoundary copies within the process address space.
type MemoryBoundary struct{}

var _ Boundary = MemoryBoundary{}

func (MemoryBoundary) CopyIn(dst, src []byte) (int, error) {
	return memcopy(dst, src)
}

func (MemoryBoundary) CopyOut(dst, src []byte) (int, error) {
	return memcopy(dst, src)
}

func memcopy(dst, src []byte) (int, error) {
	if len(dst) < len(src) {
		return 0, fmt.Errorf("%w: %d bytes do not fit in %d", ErrBoundaryFault, len(src), len(dst))
	}
	return copy(dst, src), nil
}
