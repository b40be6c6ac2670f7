package kernel

import (
	"bytes"
	"context"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/rvoskit/internal/config"
	"github.com/joshuapare/rvoskit/internal/heapmap"
	"github.com/joshuapare/rvoskit/internal/mmarena"
	"github.com/joshuapare/rvoskit/kernel/kfmt"
	"github.com/joshuapare/rvoskit/kernel/mem"
	"github.com/joshuapare/rvoskit/kernel/sched"
)

func testConfig(mode string) *config.Config {
	cfg := config.Default()
	cfg.Heap.Size = config.ByteSize(1 * mem.Mb)
	cfg.Heap.Backing = config.BackingHeap
	cfg.Heap.Mode = mode
	cfg.Sched.DelayScale = 0
	return cfg
}

// bootTest boots a kernel whose fatal path prints the banner and returns.
func bootTest(t *testing.T, cfg *config.Config) (*Kernel, *bytes.Buffer) {
	t.Helper()
	prevHalt := kfmt.SetHaltFunc(func() {})
	prevOut := kfmt.Output()
	t.Cleanup(func() {
		kfmt.SetHaltFunc(prevHalt)
		kfmt.SetOutput(prevOut)
	})

	var out bytes.Buffer
	k, err := Boot(context.Background(), cfg, Options{Console: &out, Session: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	return k, &out
}

func TestBoot_Raw(t *testing.T) {
	k, out := bootTest(t, testConfig(config.ModeRaw))

	assert.Equal(t, "Hello,RVOS!\n", out.String())
	assert.Equal(t, "test", k.Session())
	assert.Nil(t, k.Pages())
	assert.Equal(t, mem.Addr(0x80000000), k.RAM().Base())
	assert.Equal(t, 1*mem.Mb, k.Heap().Size())
	assert.False(t, k.Heap().PageBacked())
	require.NoError(t, k.Heap().Verify())
	assert.Equal(t, sched.DefaultPriorities, k.Scheduler().Priorities())
}

func TestBoot_Pages(t *testing.T) {
	cfg := testConfig(config.ModePages)
	cfg.Heap.Pages = 8
	k, out := bootTest(t, cfg)

	require.NotNil(t, k.Pages())
	assert.True(t, k.Heap().PageBacked())
	assert.Equal(t, k.Pages().AllocStart(), k.Heap().Arena().Base())
	assert.Equal(t, 8*mem.PageSize, k.Heap().Size())
	assert.Contains(t, out.String(), "HEAP_START = 0x80000000")
}

func TestBoot_Mmap(t *testing.T) {
	if !mmarena.Mapped {
		t.Skip("no mmap on this platform")
	}
	cfg := testConfig(config.ModeRaw)
	cfg.Heap.Backing = config.BackingMmap
	k, _ := bootTest(t, cfg)
	require.NoError(t, k.Heap().Verify())
}

func TestBoot_InvalidConfig(t *testing.T) {
	cfg := testConfig(config.ModeRaw)
	cfg.Sched.Priorities = 0
	_, err := Boot(context.Background(), cfg, Options{Console: &bytes.Buffer{}})
	require.Error(t, err)
}

func TestRun_DemoTasks(t *testing.T) {
	k, out := bootTest(t, testConfig(config.ModeRaw))
	free := k.Heap().Stats().FreeBytes

	err := k.Run(context.Background(), DemoTasks()...)
	require.ErrorIs(t, err, sched.ErrNoTask)

	text := out.String()
	assert.Equal(t, 5, strings.Count(text, "Task 0: Running..."))
	assert.Equal(t, 10, strings.Count(text, "Task 1: Running..."))
	assert.Equal(t, 10, strings.Count(text, "Task 2: Running..."))
	assert.Less(t, strings.LastIndex(text, "Task 1: Running..."), strings.Index(text, "Task 2: Created!"),
		"priority 1 only runs once priority 0 is empty")
	assert.Less(t, strings.Index(text, "Task 1: Created!"), strings.Index(text, "Task 0: Created!"),
		"the last created task is the ring entry point")
	assert.Contains(t, text, "No task to schedule!")

	assert.Equal(t, 0, k.Scheduler().NumTasks())
	assert.Equal(t, free, k.Heap().Stats().FreeBytes)
	assert.Equal(t, 6, k.Traps().Stats().Syscalls, "task0 yields five times and exits through ecall")
}

func TestRun_Cancelled(t *testing.T) {
	k, _ := bootTest(t, testConfig(config.ModeRaw))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := k.Run(ctx, DemoTasks()...)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, k.Scheduler().NumTasks())
}

func TestRun_SpawnFailureUnwindsCreatedTasks(t *testing.T) {
	k, _ := bootTest(t, testConfig(config.ModeRaw))
	free := k.Heap().Stats().FreeBytes

	tasks := append(DemoTasks(), TaskSpec{Name: "bad", Entry: func(*Kernel, any) {}, Priority: 99})
	err := k.Run(context.Background(), tasks...)
	require.ErrorIs(t, err, sched.ErrBadPriority)

	assert.Zero(t, k.Scheduler().NumTasks())
	assert.Zero(t, k.Scheduler().Switches(), "nothing was dispatched")
	assert.Equal(t, free, k.Heap().Stats().FreeBytes)
	require.NoError(t, k.Heap().Verify())
}

func TestSpawn_BadPriority(t *testing.T) {
	k, _ := bootTest(t, testConfig(config.ModeRaw))
	_, err := k.Spawn(TaskSpec{Name: "x", Entry: func(*Kernel, any) {}, Priority: 99})
	require.ErrorIs(t, err, sched.ErrBadPriority)
	_, err = k.Spawn(TaskSpec{Name: "nil"})
	require.ErrorIs(t, err, sched.ErrNilEntry)
}

func TestMallocTest(t *testing.T) {
	for _, mode := range []string{config.ModeRaw, config.ModePages} {
		t.Run(mode, func(t *testing.T) {
			k, out := bootTest(t, testConfig(mode))
			res, err := k.MallocTest(context.Background())
			require.NoError(t, err)

			assert.True(t, res.Reused)
			assert.Equal(t, res.P1, res.P5)
			assert.Equal(t, uint64(512+256+256+2*24), res.Merged)
			assert.Contains(t, out.String(), "p5 = "+res.P5.String())

			blocks := k.Heap().Blocks()
			require.Len(t, blocks, 1, "self-test releases everything")
			assert.True(t, blocks[0].Free)
		})
	}
}

func TestPageTest(t *testing.T) {
	for _, mode := range []string{config.ModeRaw, config.ModePages} {
		t.Run(mode, func(t *testing.T) {
			k, out := bootTest(t, testConfig(mode))
			res, err := k.PageTest(context.Background())
			require.NoError(t, err)

			assert.True(t, res.Reused)
			assert.Equal(t, res.B, res.D)
			assert.Equal(t, res.A.Add(2*mem.PageSize), res.B)
			assert.Equal(t, res.FreeBefore, res.FreeAfter)
			assert.Contains(t, out.String(), "page_alloc(7) = "+res.B.String())
			assert.Len(t, k.Heap().Blocks(), 1)
		})
	}
}

func TestRenderHeapMap(t *testing.T) {
	cfg := testConfig(config.ModePages)
	k, _ := bootTest(t, cfg)
	_, err := k.Heap().Alloc(4096)
	require.NoError(t, err)

	segs := k.Segments()
	require.NotEmpty(t, segs)
	assert.Equal(t, heapmap.Reserved, segs[0].Kind)

	var buf bytes.Buffer
	require.NoError(t, k.RenderHeapMap(&buf, heapmap.Options{Columns: 64, Rows: 16}))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())
}
