package probe

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-bugger/tracetarget/pkg/tracer"
)

// TrapSite describes one stop of the target at its own trap instruction.
type TrapSite struct {
	PC     uint64
	Func   string
	Disasm []tracer.Instruction
}

// FinalLine is the parsed form of the target's closing report line.
type FinalLine struct {
	X          int64
	Global     int64
	XAddr      uint64
	GlobalAddr uint64
}

// Report is everything observed during one probe run.
type Report struct {
	// Traps are the target's own traps, in hit order. The helper entry
	// breakpoint the driver sets for itself is not included.
	Traps []TrapSite

	GlobalAddr uint64 // address of the process-wide counter, from the symbol table
	LocalAddr  uint64 // address of the stack counter, from the helper's argument

	GlobalAtA int64 // process-wide counter at the first trap
	GlobalAtB int64 // process-wide counter at the second trap
	LocalAtB  int64 // stack counter at the second trap

	ExitStatus int // 8-bit wait status of the exited target

	Stdout      string     // everything the target wrote
	StartupSeen bool       // startup line arrived before the first trap was resumed
	Final       *FinalLine // parsed closing line, nil if it never appeared

	override *int
}

var finalLineRe = regexp.MustCompile(`(?m)^x: (-?\d+), g_global: (-?\d+), &x: (0x[0-9a-f]+), &g_global: (0x[0-9a-f]+)$`)

// parseFinalLine extracts the target's closing report line from its
// output.
func parseFinalLine(out string) *FinalLine {
	m := finalLineRe.FindStringSubmatch(out)
	if m == nil {
		return nil
	}
	x, _ := strconv.ParseInt(m[1], 10, 64)
	g, _ := strconv.ParseInt(m[2], 10, 64)
	xa, _ := strconv.ParseUint(m[3], 0, 64)
	ga, _ := strconv.ParseUint(m[4], 0, 64)
	return &FinalLine{X: x, Global: g, XAddr: xa, GlobalAddr: ga}
}

// Problems describes every observable property the run violated. An empty
// result means the target behaved exactly as specified.
func (r *Report) Problems() []string {
	var problems []string

	if len(r.Traps) != 2 {
		problems = append(problems, fmt.Sprintf("expected 2 traps, saw %d", len(r.Traps)))
	}
	if r.GlobalAtA != 0 {
		problems = append(problems, fmt.Sprintf("process-wide counter is %#x at the first trap, want 0", r.GlobalAtA))
	}

	wantGlobal := int64(GlobalSetValue)
	if r.override != nil {
		wantGlobal = int64(*r.override)
	}
	if r.GlobalAtB != wantGlobal {
		problems = append(problems, fmt.Sprintf("process-wide counter is %#x at the second trap, want %#x", r.GlobalAtB, wantGlobal))
	}
	if r.LocalAtB != r.GlobalAtB {
		problems = append(problems, fmt.Sprintf("stack counter %#x does not match process-wide counter %#x after the helper ran", r.LocalAtB, r.GlobalAtB))
	}

	if !r.StartupSeen {
		problems = append(problems, "startup line did not arrive before the first trap was resumed")
	}
	if n := strings.Count(r.Stdout, StartupLine+"\n"); n != 1 {
		problems = append(problems, fmt.Sprintf("startup line appears %d times in output, want exactly once", n))
	}

	if r.Final == nil {
		problems = append(problems, "closing report line missing from output")
	} else {
		if n := len(finalLineRe.FindAllString(r.Stdout, -1)); n != 1 {
			problems = append(problems, fmt.Sprintf("closing report line appears %d times, want exactly once", n))
		}
		if r.Final.X != r.LocalAtB {
			problems = append(problems, fmt.Sprintf("printed x %#x disagrees with memory %#x", r.Final.X, r.LocalAtB))
		}
		if r.Final.Global != r.GlobalAtB {
			problems = append(problems, fmt.Sprintf("printed g_global %#x disagrees with memory %#x", r.Final.Global, r.GlobalAtB))
		}
		if r.Final.XAddr != r.LocalAddr {
			problems = append(problems, fmt.Sprintf("printed &x %#x disagrees with observed address %#x", r.Final.XAddr, r.LocalAddr))
		}
		if r.Final.GlobalAddr != r.GlobalAddr {
			problems = append(problems, fmt.Sprintf("printed &g_global %#x disagrees with symbol address %#x", r.Final.GlobalAddr, r.GlobalAddr))
		}
	}

	if r.ExitStatus != ExitCode&0xff {
		problems = append(problems, fmt.Sprintf("exit status %d, want %d (%#x truncated to 8 bits)", r.ExitStatus, ExitCode&0xff, ExitCode))
	}

	return problems
}

// Summary formats the report for human consumption.
func (r *Report) Summary() string {
	var b strings.Builder
	for i, site := range r.Traps {
		fmt.Fprintf(&b, "trap %d at %#x in %s\n", i+1, site.PC, site.Func)
		for _, inst := range site.Disasm {
			fmt.Fprintf(&b, "\t%#x\t%s\n", inst.Addr, inst.Text)
		}
	}
	fmt.Fprintf(&b, "g_global = %#x at %#x\n", r.GlobalAtB, r.GlobalAddr)
	fmt.Fprintf(&b, "x        = %#x at %#x\n", r.LocalAtB, r.LocalAddr)
	fmt.Fprintf(&b, "exit status %d\n", r.ExitStatus)
	return b.String()
}
