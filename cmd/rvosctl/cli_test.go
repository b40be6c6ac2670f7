package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	return buf.String(), fnErr
}

// runCLI executes rvosctl with args and returns its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		verbose, quiet, jsonOut = false, false, false
		configPath, heapSize, heapMode = "", "", ""
		bootMallocTest, bootPageTest, bootNoDemo = false, false, false
		bootTimeout = 0
		traceShutdown = nil
	})
	rootCmd.SetArgs(args)
	return captureOutput(t, rootCmd.Execute)
}

// fastConfig writes a machine file with no task delay and a small heap.
func fastConfig(t *testing.T, extra ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "machine.yaml")
	doc := "heap:\n  size: 256KiB\n  backing: heap\nsched:\n  delay_scale: 0\n" + strings.Join(extra, "")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func assertJSON(t *testing.T, output string, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(output), v), "output: %s", output)
}

func TestConfigCommand(t *testing.T) {
	out, err := runCLI(t, "config", "--heap-size", "128KiB", "--heap-mode", "pages")
	require.NoError(t, err)
	assert.Contains(t, out, "size: 128KiB")
	assert.Contains(t, out, "mode: pages")
	assert.Contains(t, out, "priorities: 10")
}

func TestConfigCommand_Invalid(t *testing.T) {
	_, err := runCLI(t, "config", "--heap-mode", "sparse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heap.mode")
}

func TestBootCommand(t *testing.T) {
	out, err := runCLI(t, "boot", "--config", fastConfig(t))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "Hello,RVOS!\n"))
	assert.Equal(t, 5, strings.Count(out, "Task 0: Running..."))
	assert.Equal(t, 10, strings.Count(out, "Task 2: Running..."))
	assert.Contains(t, out, "No task to schedule!")
}

func TestBootCommand_JSON(t *testing.T) {
	out, err := runCLI(t, "boot", "--config", fastConfig(t), "--malloc-test", "--page-test", "--json")
	require.NoError(t, err)

	var res struct {
		Session string `json:"session"`
		Malloc  struct {
			Reused bool
			Merged uint64
		} `json:"malloc_test"`
		Pages struct {
			Reused bool
		} `json:"page_test"`
		Switches int  `json:"switches"`
		Idle     bool `json:"idle"`
	}
	assertJSON(t, out, &res)
	assert.NotEmpty(t, res.Session)
	assert.True(t, res.Malloc.Reused)
	assert.Equal(t, uint64(1072), res.Malloc.Merged)
	assert.True(t, res.Pages.Reused)
	assert.True(t, res.Idle)
	assert.Positive(t, res.Switches)
}

func TestBootCommand_JSONWithTracing(t *testing.T) {
	cfg := fastConfig(t, "trace:\n  enabled: true\n")
	out, err := runCLI(t, "boot", "--config", cfg, "--no-demo", "--json")
	require.NoError(t, err)

	var res struct {
		Idle bool `json:"idle"`
	}
	assertJSON(t, out, &res)
	assert.True(t, res.Idle)
	assert.NotContains(t, out, "SpanContext", "spans stay off stdout")
}

func TestMallocTestCommand(t *testing.T) {
	out, err := runCLI(t, "malloc-test", "--heap-size", "128KiB", "--heap-mode", "pages")
	require.NoError(t, err)
	assert.Contains(t, out, "p5 = ")
	assert.Contains(t, out, "merged block: 1072 bytes, p5 reused p1: true")
}

func TestPageTestCommand(t *testing.T) {
	out, err := runCLI(t, "page-test", "--config", fastConfig(t), "--json")
	require.NoError(t, err)

	var res struct{ Reused bool }
	assertJSON(t, out, &res)
	assert.True(t, res.Reused)
}

func TestHeapMapCommand(t *testing.T) {
	file := filepath.Join(t.TempDir(), "heap.png")
	out, err := runCLI(t, "heapmap", file, "--config", fastConfig(t), "--columns", "64", "--rows", "32")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+file)

	f, err := os.Open(file)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "rvosctl dev")
	assert.NotContains(t, out, "session:")
}

func TestVersionCommand_JSON(t *testing.T) {
	out, err := runCLI(t, "version", "--json")
	require.NoError(t, err)

	var v versionInfo
	assertJSON(t, out, &v)
	assert.Equal(t, "dev", v.Version)
	assert.NotEmpty(t, v.Session, "setup assigns a session before any command runs")
	assert.Equal(t, uint64(4096), v.PageSize)
	assert.Equal(t, 24, v.HeaderSize)
	assert.Equal(t, 248, v.ContextSize)
}
