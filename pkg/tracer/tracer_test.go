package tracer_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/go-bugger/tracetarget/pkg/tracer"
	protest "github.com/go-bugger/tracetarget/pkg/tracer/test"
)

func TestMain(m *testing.M) {
	os.Exit(protest.RunTestsWithFixtures(m))
}

func assertNoError(err error, t testing.TB, s string) {
	if err != nil {
		_, file, line, _ := runtime.Caller(1)
		fname := filepath.Base(file)
		t.Fatalf("failed assertion at %s:%d: %s - %s\n", fname, line, s, err)
	}
}

func withTestTarget(t *testing.T, fn func(p *tracer.TracedProcess, fixture protest.Fixture)) {
	fixture := protest.BuildFixture("tracetarget")

	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	assertNoError(err, t, "open devnull")
	defer devnull.Close()

	p, err := tracer.Launch([]string{fixture.Path}, devnull)
	assertNoError(err, t, "Launch()")
	defer func() {
		if !p.Exited() {
			p.Kill()
		}
	}()

	fn(p, fixture)
}

func TestLaunchStopsAtEntry(t *testing.T) {
	withTestTarget(t, func(p *tracer.TracedProcess, fixture protest.Fixture) {
		if p.Exited() {
			t.Fatal("process exited before being resumed")
		}
		pc, err := p.CurrentPC()
		assertNoError(err, t, "CurrentPC()")
		if pc == 0 {
			t.Fatal("current pc is zero")
		}
	})
}

func TestSymbolLookup(t *testing.T) {
	withTestTarget(t, func(p *tracer.TracedProcess, fixture protest.Fixture) {
		addr, err := p.Symbols.LookupFunc("main.stuff")
		assertNoError(err, t, "LookupFunc(main.stuff)")
		if addr == 0 {
			t.Fatal("main.stuff has address zero")
		}
		if name := p.Symbols.PCToFunc(addr); name != "main.stuff" {
			t.Fatalf("PCToFunc(%#x) = %q, want main.stuff", addr, name)
		}

		gaddr, err := p.Symbols.LookupVariable("main.gGlobal")
		assertNoError(err, t, "LookupVariable(main.gGlobal)")
		if gaddr == 0 {
			t.Fatal("main.gGlobal has address zero")
		}

		if _, err := p.Symbols.LookupFunc("main.missing"); err == nil {
			t.Fatal("expected error looking up a function that does not exist")
		}
	})
}

func TestContinueToTrap(t *testing.T) {
	withTestTarget(t, func(p *tracer.TracedProcess, fixture protest.Fixture) {
		th, err := p.Continue()
		assertNoError(err, t, "Continue()")
		regs, err := th.Registers()
		assertNoError(err, t, "Registers()")
		if fn := p.Symbols.PCToFunc(regs.PC()); fn != "runtime.breakpoint" {
			t.Fatalf("stopped in %q at %#x, want runtime.breakpoint", fn, regs.PC())
		}
	})
}

func TestSetClearBreakpoint(t *testing.T) {
	withTestTarget(t, func(p *tracer.TracedProcess, fixture protest.Fixture) {
		addr, err := p.Symbols.LookupFunc("main.stuff")
		assertNoError(err, t, "LookupFunc(main.stuff)")

		bp, err := p.SetBreakpoint(addr)
		assertNoError(err, t, "SetBreakpoint()")
		if bp.FunctionName != "main.stuff" || bp.Addr != addr {
			t.Fatalf("unexpected breakpoint %v", bp)
		}

		if _, err := p.SetBreakpoint(addr); err == nil {
			t.Fatal("expected error setting a breakpoint twice")
		} else if _, ok := err.(tracer.BreakpointExistsError); !ok {
			t.Fatalf("expected BreakpointExistsError, got %v", err)
		}

		if _, err := p.SetBreakpoint(1); err == nil {
			t.Fatal("expected error setting a breakpoint at an invalid address")
		} else if _, ok := err.(tracer.InvalidAddressError); !ok {
			t.Fatalf("expected InvalidAddressError, got %v", err)
		}

		_, err = p.ClearBreakpoint(addr)
		assertNoError(err, t, "ClearBreakpoint()")

		if _, err := p.ClearBreakpoint(addr); err == nil {
			t.Fatal("expected error clearing a breakpoint twice")
		} else if _, ok := err.(tracer.NoBreakpointError); !ok {
			t.Fatalf("expected NoBreakpointError, got %v", err)
		}
	})
}

func TestBreakpointHit(t *testing.T) {
	withTestTarget(t, func(p *tracer.TracedProcess, fixture protest.Fixture) {
		addr, err := p.Symbols.LookupFunc("main.stuff")
		assertNoError(err, t, "LookupFunc(main.stuff)")
		bp, err := p.SetBreakpoint(addr)
		assertNoError(err, t, "SetBreakpoint()")

		_, err = p.Continue() // the target's first trap
		assertNoError(err, t, "Continue() to first trap")
		th, err := p.Continue() // our breakpoint on the helper
		assertNoError(err, t, "Continue() to breakpoint")

		regs, err := th.Registers()
		assertNoError(err, t, "Registers()")
		hit, ok := p.FindBreakpoint(regs.PC())
		if !ok || hit != bp {
			t.Fatalf("stopped at %#x, not at breakpoint %v", regs.PC(), bp)
		}
		if regs.Rax() == 0 {
			t.Fatal("helper argument register is zero")
		}

		_, err = p.ClearBreakpoint(bp.Addr)
		assertNoError(err, t, "ClearBreakpoint()")
		assertNoError(p.RewindToBreakpoint(bp), t, "RewindToBreakpoint()")

		pc, err := p.CurrentPC()
		assertNoError(err, t, "CurrentPC()")
		if pc != bp.Addr {
			t.Fatalf("pc is %#x after rewind, want %#x", pc, bp.Addr)
		}
	})
}

func TestReadWriteMemory(t *testing.T) {
	withTestTarget(t, func(p *tracer.TracedProcess, fixture protest.Fixture) {
		gaddr, err := p.Symbols.LookupVariable("main.gGlobal")
		assertNoError(err, t, "LookupVariable(main.gGlobal)")

		_, err = p.Continue() // first trap, before the target writes the counter
		assertNoError(err, t, "Continue()")

		val, err := p.ReadInt(gaddr)
		assertNoError(err, t, "ReadInt()")
		if val != 0 {
			t.Fatalf("counter is %#x before the target sets it, want 0", val)
		}

		assertNoError(p.WriteInt(gaddr, 0xdeadbeef), t, "WriteInt()")
		val, err = p.ReadInt(gaddr)
		assertNoError(err, t, "ReadInt() after write")
		if val != 0xdeadbeef {
			t.Fatalf("counter is %#x after write, want 0xdeadbeef", val)
		}
	})
}

func TestRunToExit(t *testing.T) {
	withTestTarget(t, func(p *tracer.TracedProcess, fixture protest.Fixture) {
		for i := 0; i < 2; i++ {
			_, err := p.Continue()
			assertNoError(err, t, "Continue() to trap")
		}
		_, err := p.Continue()
		pe, ok := err.(tracer.ProcessExitedError)
		if !ok {
			t.Fatalf("expected ProcessExitedError, got %v", err)
		}
		if pe.Status != 0x1337&0xff {
			t.Fatalf("exit status %d, want %d", pe.Status, 0x1337&0xff)
		}
		if !p.Exited() || p.Running() || p.ExitStatus() != pe.Status {
			t.Fatal("process state does not reflect the exit")
		}
	})
}

func TestRepeatedRuns(t *testing.T) {
	// Several full launch-to-exit sequences in one test process. Gives the
	// scheduler plenty of chances to migrate the goroutine between OS
	// threads; a ptrace request issued off the tracer thread shows up here
	// as a hang.
	for i := 0; i < 4; i++ {
		withTestTarget(t, func(p *tracer.TracedProcess, fixture protest.Fixture) {
			for {
				_, err := p.Continue()
				if err == nil {
					continue
				}
				pe, ok := err.(tracer.ProcessExitedError)
				if !ok {
					t.Fatalf("run %d: expected ProcessExitedError, got %v", i, err)
				}
				if pe.Status != 0x1337&0xff {
					t.Fatalf("run %d: exit status %d, want %d", i, pe.Status, 0x1337&0xff)
				}
				break
			}
		})
	}
}

func TestHWBreakpoint(t *testing.T) {
	withTestTarget(t, func(p *tracer.TracedProcess, fixture protest.Fixture) {
		addr, err := p.Symbols.LookupFunc("main.stuff")
		assertNoError(err, t, "LookupFunc(main.stuff)")

		bp, err := p.SetHWBreakpoint(addr)
		if err != nil {
			t.Skipf("hardware breakpoints unavailable: %v", err)
		}

		_, err = p.Continue() // the target's first trap
		assertNoError(err, t, "Continue() to first trap")
		th, err := p.Continue() // the hardware breakpoint
		assertNoError(err, t, "Continue() to hardware breakpoint")

		regs, err := th.Registers()
		assertNoError(err, t, "Registers()")
		if regs.PC() != addr {
			t.Fatalf("stopped at %#x, want %#x", regs.PC(), addr)
		}

		assertNoError(p.ClearHWBreakpoint(bp), t, "ClearHWBreakpoint()")
	})
}
