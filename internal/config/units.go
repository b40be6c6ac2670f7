package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joshuapare/rvoskit/kernel/mem"
)

// Addr is a physical address written in hex in YAML.
type Addr uint64

// MarshalYAML renders the address as a plain hex integer.
func (a Addr) MarshalYAML() (any, error) {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprintf("0x%x", uint64(a))}, nil
}

// UnmarshalYAML accepts hex (0x...), octal (0o...) or decimal integers.
func (a *Addr) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: address must be a scalar", value.Line)
	}
	v, err := strconv.ParseUint(strings.ReplaceAll(value.Value, "_", ""), 0, 64)
	if err != nil {
		return fmt.Errorf("line %d: bad address %q", value.Line, value.Value)
	}
	*a = Addr(v)
	return nil
}

// ByteSize is a byte count written with an optional binary unit suffix:
// "4096", "64KiB", "128MiB", "1GiB" (K, M, G and KB, MB, GB are accepted as
// the same binary units).
type ByteSize uint64

var units = []struct {
	suffix string
	mult   mem.Size
}{
	{"gib", mem.Gb}, {"mib", mem.Mb}, {"kib", mem.Kb},
	{"gb", mem.Gb}, {"mb", mem.Mb}, {"kb", mem.Kb},
	{"g", mem.Gb}, {"m", mem.Mb}, {"k", mem.Kb},
	{"b", mem.Byte},
}

// ParseByteSize parses the textual form of a ByteSize.
func ParseByteSize(s string) (ByteSize, error) {
	str := strings.ToLower(strings.TrimSpace(s))
	mult := mem.Byte
	for _, u := range units {
		if strings.HasPrefix(str, "0x") {
			break
		}
		if strings.HasSuffix(str, u.suffix) {
			str = strings.TrimSpace(strings.TrimSuffix(str, u.suffix))
			mult = u.mult
			break
		}
	}
	n, err := strconv.ParseUint(str, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad size %q", s)
	}
	return ByteSize(mem.Size(n) * mult), nil
}

// MarshalYAML renders the size with the largest exact unit.
func (b ByteSize) MarshalYAML() (any, error) {
	return mem.Size(b).String(), nil
}

// UnmarshalYAML accepts an integer or a suffixed size string.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", value.Line)
	}
	v, err := ParseByteSize(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*b = v
	return nil
}
