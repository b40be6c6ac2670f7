//go:build !unix

package mmarena

// Map allocates size zeroed bytes on the Go heap when mmap is not available.
func Map(size int) ([]byte, func() error, error) {
	if size <= 0 {
		return []byte{}, func() error { return nil }, nil
	}
	return make([]byte, size), func() error { return nil }, nil
}

// Mapped reports whether Map is backed by mmap on this platform.
const Mapped = false
