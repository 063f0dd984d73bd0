package tracer

import "fmt"

// trapInstruction is INT 3, the x86 software breakpoint trap.
var trapInstruction = []byte{0xCC}

// uDebugRegOffset is the offset of u_debugreg inside struct user on
// linux/amd64, used with PTRACE_PEEKUSER/PTRACE_POKEUSER to reach the x86
// debug registers DR0-DR7.
const uDebugRegOffset = 848

// SetHWBreakpoint sets an execute hardware breakpoint at addr in the first
// free debug register slot. There are only four such slots (DR0-DR3).
func (tp *TracedProcess) SetHWBreakpoint(addr uint64) (*Breakpoint, error) {
	fname := tp.Symbols.PCToFunc(addr)
	if fname == "" {
		return nil, InvalidAddressError{Addr: addr}
	}
	tid := tp.CurrentThread.ID
	for i := range tp.hwBreakpoints {
		if tp.hwBreakpoints[i] != nil {
			if tp.hwBreakpoints[i].Addr == addr {
				return nil, BreakpointExistsError{Addr: addr}
			}
			continue
		}
		var err error
		tp.execPtraceFunc(func() { err = setHardwareBreakpoint(i, tid, addr) })
		if err != nil {
			return nil, err
		}
		tp.bpIDCounter++
		bp := &Breakpoint{
			FunctionName: fname,
			Addr:         addr,
			ID:           tp.bpIDCounter,
			Hardware:     true,
			reg:          i,
		}
		tp.hwBreakpoints[i] = bp
		return bp, nil
	}
	return nil, fmt.Errorf("hardware breakpoints exhausted")
}

// ClearHWBreakpoint frees bp's debug register slot.
func (tp *TracedProcess) ClearHWBreakpoint(bp *Breakpoint) error {
	if !bp.Hardware {
		return fmt.Errorf("breakpoint at %#x is not a hardware breakpoint", bp.Addr)
	}
	tid := tp.CurrentThread.ID
	var err error
	tp.execPtraceFunc(func() { err = clearHardwareBreakpoint(bp.reg, tid) })
	if err != nil {
		return err
	}
	tp.hwBreakpoints[bp.reg] = nil
	return nil
}

// setHardwareBreakpoint loads addr into debug register reg and flips the
// slot's local enable bit in DR7. Zero len/rw bits select a 1-byte execute
// breakpoint.
func setHardwareBreakpoint(reg, tid int, addr uint64) error {
	if reg < 0 || reg >= 4 {
		return fmt.Errorf("invalid debug register %d", reg)
	}
	if err := PtracePokeUser(tid, uintptr(uDebugRegOffset+8*reg), uintptr(addr)); err != nil {
		return err
	}
	// Clear stale status bits in DR6 before enabling the slot.
	if err := PtracePokeUser(tid, uintptr(uDebugRegOffset+8*6), 0); err != nil {
		return err
	}
	dr7, err := PtracePeekUser(tid, uintptr(uDebugRegOffset+8*7))
	if err != nil {
		return err
	}
	dr7 |= 1 << (2 * uint(reg))
	return PtracePokeUser(tid, uintptr(uDebugRegOffset+8*7), dr7)
}

// clearHardwareBreakpoint clears the slot's enable bit in DR7 and zeroes
// its address register.
func clearHardwareBreakpoint(reg, tid int) error {
	if reg < 0 || reg >= 4 {
		return fmt.Errorf("invalid debug register %d", reg)
	}
	dr7, err := PtracePeekUser(tid, uintptr(uDebugRegOffset+8*7))
	if err != nil {
		return err
	}
	dr7 &^= 1 << (2 * uint(reg))
	if err := PtracePokeUser(tid, uintptr(uDebugRegOffset+8*7), dr7); err != nil {
		return err
	}
	return PtracePokeUser(tid, uintptr(uDebugRegOffset+8*reg), 0)
}
