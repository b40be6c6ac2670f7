package mem

import "fmt"

// Addr is a physical address on the simulated RV64 hart. The zero value is
// the null address.
type Addr uint64

// Null is the address returned for "no allocation".
const Null Addr = 0

// IsNull reports whether a is the null address.
func (a Addr) IsNull() bool { return a == Null }

// Add returns a advanced by n bytes.
func (a Addr) Add(n Size) Addr { return a + Addr(n) }

// String formats the address the way the kernel prints pointers.
func (a Addr) String() string { return fmt.Sprintf("0x%x", uint64(a)) }
