// Command tracetarget is a deterministic probe target for a process
// inspector. It prints a startup marker, stops at two explicit traps,
// copies a process-wide counter into a stack variable through a pointer,
// prints what it saw, and exits with a distinctive status.
//
// Run standalone (with no tracer attached) the traps are fatal; that is
// the expected platform default, not a bug.
package main

import (
	"fmt"
	"os"
	"runtime"
)

var gGlobal int

// stuff writes the current value of gGlobal through v.
// It must not retain v after returning.
func stuff(v *int) {
	*v = gGlobal
}

func main() {
	fmt.Println("hi")

	runtime.Breakpoint()

	gGlobal = 0x1234
	var x int
	x = 0x5678

	stuff(&x)

	runtime.Breakpoint()

	fmt.Printf("x: %d, g_global: %d, &x: %p, &g_global: %p\n", x, gGlobal, &x, &gGlobal)

	os.Exit(0x1337)
}
