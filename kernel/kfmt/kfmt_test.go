package kfmt

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Output()
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(prev) })
	return &buf
}

func stubHalt(t *testing.T) *int {
	t.Helper()
	calls := 0
	prev := SetHaltFunc(func() { calls++ })
	t.Cleanup(func() { SetHaltFunc(prev) })
	return &calls
}

func TestPrintf(t *testing.T) {
	buf := captureOutput(t)
	Printf("num_sizes: %d\n", 134217704)
	assert.Equal(t, "num_sizes: 134217704\n", buf.String())
}

func TestPanic_String(t *testing.T) {
	buf := captureOutput(t)
	calls := stubHalt(t)

	Panic("No task to schedule!")

	require.Equal(t, 1, *calls)
	assert.Contains(t, buf.String(), "unrecoverable error: No task to schedule!")
	assert.Contains(t, buf.String(), "*** kernel panic: system halted ***")
}

func TestPanic_Error(t *testing.T) {
	buf := captureOutput(t)
	calls := stubHalt(t)

	Panic(errors.New("heap used before init"))

	require.Equal(t, 1, *calls)
	assert.Contains(t, buf.String(), "heap used before init")
}

func TestSetOutput_Nil(t *testing.T) {
	prev := Output()
	t.Cleanup(func() { SetOutput(prev) })

	SetOutput(nil)
	assert.NotPanics(t, func() { Printf("dropped") })
}
