package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/rvoskit/kernel"
	"github.com/joshuapare/rvoskit/kernel/sched"
)

var (
	bootMallocTest bool
	bootPageTest   bool
	bootNoDemo     bool
	bootTimeout    time.Duration
)

func init() {
	cmd := newBootCmd()
	cmd.Flags().BoolVar(&bootMallocTest, "malloc-test", false, "Run the heap self-test before the tasks")
	cmd.Flags().BoolVar(&bootPageTest, "page-test", false, "Run the page allocator self-test before the tasks")
	cmd.Flags().BoolVar(&bootNoDemo, "no-demo", false, "Do not start the reference user tasks")
	cmd.Flags().DurationVar(&bootTimeout, "timeout", 0, "Stop the scheduler after this long (0 = run until idle)")
	rootCmd.AddCommand(cmd)
}

func newBootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boot",
		Short: "Boot the kernel and run the reference tasks",
		Long: `The boot command maps simulated RAM, initialises the allocators and
the scheduler, and runs the reference user program: task 0 and task 1 at
priority 0, task 2 at priority 1. The scheduler halts once every task has
exited.

Example:
  rvosctl boot
  rvosctl boot --malloc-test --heap-mode pages
  rvosctl boot --config machine.yaml --timeout 2s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoot(cmd.Context())
		},
	}
	return cmd
}

type bootResult struct {
	Session  string               `json:"session"`
	Malloc   *kernel.MallocResult `json:"malloc_test,omitempty"`
	Pages    *kernel.PageResult   `json:"page_test,omitempty"`
	Switches int                  `json:"switches"`
	Idle     bool                 `json:"idle"`
}

func runBoot(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	k, err := bootKernel(ctx)
	if err != nil {
		return err
	}
	defer k.Close()

	res := bootResult{Session: k.Session()}
	if bootMallocTest {
		m, err := k.MallocTest(ctx)
		if err != nil {
			return err
		}
		res.Malloc = &m
	}
	if bootPageTest {
		p, err := k.PageTest(ctx)
		if err != nil {
			return err
		}
		res.Pages = &p
	}

	var tasks []kernel.TaskSpec
	if !bootNoDemo {
		tasks = kernel.DemoTasks()
	}
	if bootTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, bootTimeout)
		defer cancel()
	}

	err = k.Run(ctx, tasks...)
	res.Switches = k.Scheduler().Switches()
	switch {
	case errors.Is(err, sched.ErrNoTask):
		res.Idle = true
	case errors.Is(err, context.DeadlineExceeded):
		printVerbose("Scheduler stopped after %s with %d task(s) left\n", bootTimeout, k.Scheduler().NumTasks())
	case err != nil:
		return err
	}

	if jsonOut {
		return printJSON(res)
	}
	printVerbose("%d context switches\n", res.Switches)
	return nil
}
