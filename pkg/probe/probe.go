// Package probe drives the probe target program through its fixed trap
// sequence and records everything an inspector can observe: the trap
// sites, the counter values and addresses, the target's output, and its
// exit status.
package probe

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-bugger/tracetarget/pkg/logflags"
	"github.com/go-bugger/tracetarget/pkg/tracer"
)

// Values the target sets during its sequence, mirrored from
// cmd/tracetarget.
const (
	GlobalSetValue = 0x1234
	LocalSetValue  = 0x5678
	ExitCode       = 0x1337

	// StartupLine is printed by the target before the first trap.
	StartupLine = "hi"

	globalSymbol = "main.gGlobal"
	helperSymbol = "main.stuff"
)

// startupTimeout bounds how long we wait for the startup line to show up
// in the target's output while it sits at the first trap.
const startupTimeout = 2 * time.Second

// Options control a single probe run.
type Options struct {
	// GlobalOverride, when non-nil, is written over the process-wide
	// counter while the target is stopped at the helper's entry. That is
	// after the target's own assignment and before the helper reads the
	// counter, so the helper must copy this value, not the constant the
	// target assigned.
	GlobalOverride *int

	// DisasmLines, when positive, decodes that many instructions at each
	// trap site.
	DisasmLines int
}

// Run launches the already built target binary under the tracer and
// drives it through the full sequence. The returned Report is complete
// even when some properties failed; use Report.Problems to check them.
func Run(binary string, opts Options) (*Report, error) {
	log := logflags.ProbeLogger()

	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	p, err := tracer.Launch([]string{binary}, w)
	w.Close()
	if err != nil {
		return nil, err
	}
	defer func() {
		if !p.Exited() {
			p.Kill()
		}
	}()

	report := &Report{override: opts.GlobalOverride}

	globalAddr, err := p.Symbols.LookupVariable(globalSymbol)
	if err != nil {
		return nil, err
	}
	report.GlobalAddr = globalAddr
	helperAddr, err := p.Symbols.LookupFunc(helperSymbol)
	if err != nil {
		return nil, err
	}

	// First trap. The target stops before touching either counter, so
	// the process-wide counter must still be zero here.
	if err := continueToTrap(p, report, opts); err != nil {
		return nil, err
	}
	report.GlobalAtA, err = p.ReadInt(globalAddr)
	if err != nil {
		return nil, err
	}

	stdout := &strings.Builder{}
	br := bufio.NewReader(r)
	report.StartupSeen = readStartupLine(r, br, stdout)

	// Trap the helper to observe the address of the caller's stack
	// counter: at entry the pointer argument is in RAX.
	bp, err := p.SetBreakpoint(helperAddr)
	if err != nil {
		return nil, err
	}
	th, err := p.Continue()
	if err != nil {
		return nil, err
	}
	regs, err := th.Registers()
	if err != nil {
		return nil, err
	}
	if hit, ok := p.FindBreakpoint(regs.PC()); !ok || hit != bp {
		return nil, fmt.Errorf("expected stop at %s, stopped at %#x", helperSymbol, regs.PC())
	}
	report.LocalAddr = regs.Rax()
	log.Debugf("helper called with argument %#x", report.LocalAddr)
	if opts.GlobalOverride != nil {
		// The target has assigned the counter by now but the helper has
		// not read it yet, so this value is the one the helper copies.
		log.Debugf("overriding %s with %#x", globalSymbol, *opts.GlobalOverride)
		if err := p.WriteInt(globalAddr, int64(*opts.GlobalOverride)); err != nil {
			return nil, err
		}
	}
	if _, err := p.ClearBreakpoint(bp.Addr); err != nil {
		return nil, err
	}
	if err := p.RewindToBreakpoint(bp); err != nil {
		return nil, err
	}

	// Second trap: the helper has copied the process-wide counter into
	// the stack counter by now.
	if err := continueToTrap(p, report, opts); err != nil {
		return nil, err
	}
	report.GlobalAtB, err = p.ReadInt(globalAddr)
	if err != nil {
		return nil, err
	}
	report.LocalAtB, err = p.ReadInt(report.LocalAddr)
	if err != nil {
		return nil, err
	}

	// Resume to exit.
	_, err = p.Continue()
	exitErr, ok := err.(tracer.ProcessExitedError)
	if !ok {
		return nil, fmt.Errorf("expected target exit, got %v", err)
	}
	report.ExitStatus = exitErr.Status

	// The write end of the pipe is gone with the target, drain the rest.
	r.SetReadDeadline(time.Time{})
	rest, _ := io.ReadAll(br)
	stdout.Write(rest)
	report.Stdout = stdout.String()
	report.Final = parseFinalLine(report.Stdout)

	return report, nil
}

// continueToTrap resumes the target until it reaches one of its own traps
// and records the stop site.
func continueToTrap(p *tracer.TracedProcess, report *Report, opts Options) error {
	th, err := p.Continue()
	if err != nil {
		return err
	}
	regs, err := th.Registers()
	if err != nil {
		return err
	}
	site := TrapSite{PC: regs.PC(), Func: p.Symbols.PCToFunc(regs.PC())}
	if opts.DisasmLines > 0 {
		site.Disasm, err = p.Disassemble(regs.PC(), opts.DisasmLines)
		if err != nil {
			return err
		}
	}
	report.Traps = append(report.Traps, site)
	return nil
}

// readStartupLine reads the target's startup line from the pipe while the
// target sits at the first trap. The line was written before the trap, so
// it must already be in flight; the deadline only guards against a target
// that never printed it.
func readStartupLine(r *os.File, br *bufio.Reader, stdout *strings.Builder) bool {
	r.SetReadDeadline(time.Now().Add(startupTimeout))
	line, err := br.ReadString('\n')
	stdout.WriteString(line)
	return err == nil && strings.TrimSuffix(line, "\n") == StartupLine
}
