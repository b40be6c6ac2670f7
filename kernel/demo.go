package kernel

import (
	"fmt"

	"github.com/joshuapare/rvoskit/kernel/trap"
)

// demoDelay is the spin count each demo task burns per iteration.
const demoDelay = 1000

// DemoTasks returns the reference user program: two tasks sharing priority
// 0 and one at priority 1. Task 0 enters the kernel through ecall; the others
// call the scheduler directly.
func DemoTasks() []TaskSpec {
	return []TaskSpec{
		{Name: "task0", Entry: userTask0, Priority: 0},
		{Name: "task1", Entry: countingTask(1, 10), Priority: 0},
		{Name: "task2", Entry: countingTask(2, 10), Priority: 1},
	}
}

func userTask0(k *Kernel, _ any) {
	k.console.Puts("Task 0: Created!\n")
	for range 5 {
		k.console.Puts("Task 0: Running...\n")
		k.sched.Delay(demoDelay)
		k.Syscall(trap.SysYield)
	}
	k.Syscall(trap.SysExit)
}

func countingTask(id, loops int) func(*Kernel, any) {
	return func(k *Kernel, _ any) {
		k.console.Puts(fmt.Sprintf("Task %d: Created!\n", id))
		for range loops {
			k.console.Puts(fmt.Sprintf("Task %d: Running...\n", id))
			k.sched.Delay(demoDelay)
			k.sched.Yield()
		}
		k.sched.Exit()
	}
}
