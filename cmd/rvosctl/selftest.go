package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newMallocTestCmd())
	rootCmd.AddCommand(newPageTestCmd())
}

func newMallocTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "malloc-test",
		Short: "Run the heap allocation self-test",
		Long: `The malloc-test command boots the kernel, allocates 1024, 512, 256,
256 and 128 bytes, frees the 512-byte block and both 256-byte blocks, and
checks that a 1040-byte request is served from the merged region.

Example:
  rvosctl malloc-test
  rvosctl malloc-test --heap-size 64KiB --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMallocTest(cmd.Context())
		},
	}
}

func runMallocTest(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	k, err := bootKernel(ctx)
	if err != nil {
		return err
	}
	defer k.Close()

	res, err := k.MallocTest(ctx)
	if err != nil {
		return fmt.Errorf("malloc-test: %w", err)
	}
	if jsonOut {
		return printJSON(res)
	}
	printInfo("merged block: %d bytes, p5 reused p1: %t\n", res.Merged, res.Reused)
	return nil
}

func newPageTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "page-test",
		Short: "Run the page allocator self-test",
		Long: `The page-test command boots the kernel and allocates runs of 2, 7 and 1
pages, releases the 7-page run and checks that a 4-page request lands where it
was. With a raw heap the test uses a scratch page pool carved from the heap.

Example:
  rvosctl page-test --heap-mode pages`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPageTest(cmd.Context())
		},
	}
}

func runPageTest(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	k, err := bootKernel(ctx)
	if err != nil {
		return err
	}
	defer k.Close()

	res, err := k.PageTest(ctx)
	if err != nil {
		return fmt.Errorf("page-test: %w", err)
	}
	if jsonOut {
		return printJSON(res)
	}
	printInfo("4-page run reused the released run: %t (free pages %d -> %d)\n",
		res.Reused, res.FreeBefore, res.FreeAfter)
	return nil
}
