package trap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/rvoskit/kernel/kfmt"
)

type fakeSys struct{ calls []string }

func (f *fakeSys) Yield() { f.calls = append(f.calls, "yield") }
func (f *fakeSys) Exit()  { f.calls = append(f.calls, "exit") }

func captureConsole(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := kfmt.Output()
	kfmt.SetOutput(&buf)
	t.Cleanup(func() { kfmt.SetOutput(prev) })
	return &buf
}

func TestDispatch_Interrupts(t *testing.T) {
	tests := []struct {
		name string
		code uint64
		msg  string
	}{
		{"software", IRQSoftware, "software interruption!\n"},
		{"timer", IRQTimer, "timer interruption!\n"},
		{"external", IRQExternal, "external interruption!\n"},
		{"unknown", 5, "unknown async exception!\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureConsole(t)
			r := NewRouter()
			pc := r.Dispatch(0x80001234, InterruptBit|tt.code, 0)
			assert.Equal(t, uint64(0x80001234), pc, "interrupts resume at epc")
			assert.Equal(t, tt.msg, out.String())
		})
	}
}

func TestDispatch_HandlersReceiveTrap(t *testing.T) {
	captureConsole(t)
	var got []uint64
	record := func(epc, cause uint64) { got = append(got, epc, Code(cause)) }

	r := NewRouter(WithSoftware(record), WithTimer(record), WithExternal(record))
	r.Dispatch(0x10, InterruptBit|IRQTimer, 0)
	r.Dispatch(0x20, InterruptBit|IRQExternal, 0)
	r.Dispatch(0x30, InterruptBit|IRQSoftware, 0)

	assert.Equal(t, []uint64{0x10, 7, 0x20, 11, 0x30, 3}, got)
	s := r.Stats()
	assert.Equal(t, 1, s.Timer)
	assert.Equal(t, 1, s.External)
	assert.Equal(t, 1, s.Software)
}

func TestDispatch_Ecall(t *testing.T) {
	captureConsole(t)
	sys := &fakeSys{}
	r := NewRouter(WithSyscalls(sys))

	assert.Equal(t, uint64(0x104), r.Dispatch(0x100, ExcEcallM, SysYield))
	assert.Equal(t, uint64(0x204), r.Dispatch(0x200, ExcEcallU, SysExit))
	assert.Equal(t, uint64(0x304), r.Dispatch(0x300, ExcEcallM, 99))

	assert.Equal(t, []string{"yield", "exit"}, sys.calls)
	assert.Equal(t, 2, r.Stats().Syscalls)
	assert.Equal(t, 1, r.Stats().BadSyscall)
}

func TestDispatch_EcallWithoutTable(t *testing.T) {
	r := NewRouter()
	assert.Equal(t, uint64(0x104), r.Dispatch(0x100, ExcEcallM, SysYield))
	assert.Equal(t, 1, r.Stats().BadSyscall)
}

func TestDispatch_FaultHalts(t *testing.T) {
	out := captureConsole(t)
	var halted []string
	r := NewRouter(WithHalt(func(msg string) { halted = append(halted, msg) }))

	// Store/AMO access fault.
	pc := r.Dispatch(0x80000100, 7, 0)
	assert.Equal(t, uint64(0x80000100), pc)
	require.Equal(t, []string{"OOPS! What can I do!"}, halted)
	assert.Contains(t, out.String(), "Sync exceptions!, code = 7")
	assert.Equal(t, 1, r.Stats().Faults)
}

func TestDispatch_DefaultHaltUsesKernelPanic(t *testing.T) {
	out := captureConsole(t)
	prev := kfmt.SetHaltFunc(func() { panic("halted") })
	t.Cleanup(func() { kfmt.SetHaltFunc(prev) })

	r := NewRouter()
	assert.PanicsWithValue(t, "halted", func() { r.Dispatch(0, 5, 0) })
	assert.Contains(t, out.String(), "OOPS! What can I do!")
}

func TestDecode(t *testing.T) {
	assert.True(t, IsInterrupt(0x8000000000000007))
	assert.False(t, IsInterrupt(7))
	assert.Equal(t, uint64(11), Code(0x800000000000000b))
	assert.Equal(t, uint64(0xabc), Code(0x1abc))
}
