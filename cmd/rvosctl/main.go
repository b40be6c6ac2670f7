// Command rvosctl boots the kernel core on a simulated RV64 machine and runs
// its demo program and self-tests.
package main

func main() {
	execute()
}
