// Package config holds the machine description the kernel boots with. It can
// be loaded from YAML; every field missing from the document keeps its
// default, so an empty file boots the reference machine.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joshuapare/rvoskit/internal/logger"
	"github.com/joshuapare/rvoskit/kernel/console"
	"github.com/joshuapare/rvoskit/kernel/mem"
)

// Heap modes.
const (
	ModeRaw   = "raw"   // block heap covers the whole arena
	ModePages = "pages" // block heap sits on a run from the page allocator
)

// Arena backings.
const (
	BackingMmap = "mmap"
	BackingHeap = "heap"
)

// Config is the full machine and kernel configuration.
type Config struct {
	Heap    HeapConfig    `yaml:"heap"`
	Sched   SchedConfig   `yaml:"sched"`
	Console ConsoleConfig `yaml:"console"`
	Log     LogConfig     `yaml:"log"`
	Trace   TraceConfig   `yaml:"trace"`
}

// HeapConfig describes simulated RAM and how the heap is carved from it.
type HeapConfig struct {
	Base     Addr     `yaml:"base"`
	Size     ByteSize `yaml:"size"`
	Mode     string   `yaml:"mode"`
	Pages    int      `yaml:"pages"`     // initial heap pages in pages mode
	AutoGrow bool     `yaml:"auto_grow"` // grow a pages-mode heap on a miss
	Backing  string   `yaml:"backing"`
}

// SchedConfig sizes the scheduler.
type SchedConfig struct {
	Priorities int `yaml:"priorities"`
	StackSize  int `yaml:"stack_size"`
	DelayScale int `yaml:"delay_scale"`
}

// ConsoleConfig selects the console code page.
type ConsoleConfig struct {
	Charset string `yaml:"charset"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"` // text or json
}

// TraceConfig configures span export.
type TraceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Output  string `yaml:"output"` // file path; empty means stderr
}

// Default returns the reference machine: 128 MiB of RAM at 0x80000000, a raw
// heap, ten priority levels and 1 KiB task stacks.
func Default() *Config {
	return &Config{
		Heap: HeapConfig{
			Base:    0x80000000,
			Size:    ByteSize(128 * mem.Mb),
			Mode:    ModeRaw,
			Pages:   16,
			Backing: BackingMmap,
		},
		Sched: SchedConfig{
			Priorities: 10,
			StackSize:  1024,
			DelayScale: 50000,
		},
		Console: ConsoleConfig{Charset: console.CharsetUTF8},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML file on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document on top of the defaults. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate returns every invalid setting joined into one error, or nil.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	h := c.Heap
	if h.Base == 0 {
		bad("heap.base must be non-zero")
	} else if uint64(h.Base)%8 != 0 {
		bad("heap.base %s is not word aligned", mem.Addr(h.Base))
	}
	if h.Size < ByteSize(2*mem.PageSize) {
		bad("heap.size %s is below two pages", mem.Size(h.Size))
	}
	switch h.Mode {
	case ModeRaw:
	case ModePages:
		if h.Pages < 1 {
			bad("heap.pages must be at least 1 in pages mode")
		} else if limit := int(mem.Size(h.Size) / mem.PageSize); h.Pages >= limit {
			bad("heap.pages %d does not fit in %d pages of RAM", h.Pages, limit)
		}
	default:
		bad("heap.mode %q must be %q or %q", h.Mode, ModeRaw, ModePages)
	}
	if h.Backing != BackingMmap && h.Backing != BackingHeap {
		bad("heap.backing %q must be %q or %q", h.Backing, BackingMmap, BackingHeap)
	}

	s := c.Sched
	if s.Priorities < 1 || s.Priorities > 256 {
		bad("sched.priorities %d not in [1, 256]", s.Priorities)
	}
	if s.StackSize < 64 || s.StackSize%16 != 0 {
		bad("sched.stack_size %d must be a multiple of 16 and at least 64", s.StackSize)
	}
	if s.DelayScale < 0 {
		bad("sched.delay_scale must be >= 0")
	}

	if _, err := console.New(io.Discard, c.Console.Charset); err != nil {
		bad("console.charset: %w", err)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		bad("log.level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		bad("log.format %q must be text or json", c.Log.Format)
	}

	return errors.Join(errs...)
}

// LoggerOptions maps the log section onto logger.Options.
func (c *Config) LoggerOptions(w io.Writer) (logger.Options, error) {
	level, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		return logger.Options{}, err
	}
	return logger.Options{
		Enabled: c.Log.Enabled,
		Writer:  w,
		Level:   level,
		JSON:    c.Log.Format == "json",
	}, nil
}
