package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/rvoskit/internal/heapmap"
	"github.com/joshuapare/rvoskit/kernel/mem"
)

var (
	mapAlloc   []int
	mapFree    []int
	mapColumns int
	mapRows    int
)

func init() {
	cmd := newHeapMapCmd()
	cmd.Flags().IntSliceVar(&mapAlloc, "alloc", []int{1024, 512, 256, 256, 128}, "Allocation sizes to place before drawing")
	cmd.Flags().IntSliceVar(&mapFree, "free", []int{1, 3}, "Indexes into --alloc to release before drawing")
	cmd.Flags().IntVar(&mapColumns, "columns", 512, "Cells per row")
	cmd.Flags().IntVar(&mapRows, "rows", 128, "Rows of cells")
	rootCmd.AddCommand(cmd)
}

func newHeapMapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heapmap <out.png>",
		Short: "Render heap occupancy as a PNG",
		Long: `The heapmap command boots the kernel, performs the requested
allocations and releases, and draws RAM occupancy: boundary tags, taken and
free payloads, and in pages mode the flag table and page runs.

Example:
  rvosctl heapmap heap.png --heap-size 64KiB
  rvosctl heapmap heap.png --alloc 4096,100,4096 --free 1 --heap-mode pages`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeapMap(cmd.Context(), args)
		},
	}
	return cmd
}

func runHeapMap(ctx context.Context, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := args[0]

	k, err := bootKernel(ctx)
	if err != nil {
		return err
	}
	defer k.Close()

	addrs := make([]mem.Addr, len(mapAlloc))
	for i, n := range mapAlloc {
		p, err := k.Heap().Alloc(n)
		if err != nil {
			return fmt.Errorf("alloc %d bytes: %w", n, err)
		}
		addrs[i] = p
		printVerbose("alloc(%d) = %s\n", n, p)
	}
	for _, i := range mapFree {
		if i < 0 || i >= len(mapAlloc) {
			return fmt.Errorf("--free index %d out of range", i)
		}
		if err := k.Heap().Free(addrs[i]); err != nil {
			return err
		}
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	if err := k.RenderHeapMap(f, heapmap.Options{Columns: mapColumns, Rows: mapRows}); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(map[string]interface{}{
			"file":   out,
			"blocks": len(k.Heap().Blocks()),
		})
	}
	printInfo("Wrote %s (%d blocks)\n", out, len(k.Heap().Blocks()))
	return nil
}
