package format

import "encoding/binary"

// Binary encoding utilities for the records the kernel keeps inside its own
// arena (block boundary tags, task control blocks, page flags).
//
// RISC-V is little-endian and every record field is one machine word (reg_t),
// so the helpers below only deal in bytes and 64-bit words.

// PutU64 writes a uint64 value to the buffer at the specified offset in little-endian format.
func PutU64(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+WordSize], v)
}

// ReadU64 reads a uint64 value from the buffer at the specified offset in little-endian format.
func ReadU64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+WordSize])
}

// ClearWords zeroes n consecutive words starting at off.
func ClearWords(b []byte, off, n int) {
	clear(b[off : off+n*WordSize])
}
