package sched

import "errors"

var (
	// ErrBadPriority indicates a priority outside [0, priorities).
	ErrBadPriority = errors.New("sched: priority out of range")

	// ErrNoMemory indicates the heap could not hold a new task control block.
	ErrNoMemory = errors.New("sched: no memory for task")

	// ErrNoTask indicates the run loop found every ring empty.
	ErrNoTask = errors.New("sched: no task to schedule")

	// ErrNilEntry indicates Create was given no entry function.
	ErrNilEntry = errors.New("sched: nil entry")

	// ErrRunning indicates Run was entered while already running.
	ErrRunning = errors.New("sched: already running")

	// ErrUnknownTask indicates a task that is not registered with the scheduler.
	ErrUnknownTask = errors.New("sched: unknown task")

	// ErrActive indicates an operation on the task that holds the CPU.
	ErrActive = errors.New("sched: task is running")
)
