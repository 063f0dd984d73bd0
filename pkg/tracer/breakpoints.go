package tracer

import "fmt"

// Breakpoint represents a single breakpoint. For software breakpoints the
// bytes the trap instruction replaced are kept so the breakpoint can be
// cleared again.
type Breakpoint struct {
	FunctionName string
	Addr         uint64
	OriginalData []byte
	ID           int
	Hardware     bool

	reg int // debug register slot, hardware breakpoints only
}

func (bp *Breakpoint) String() string {
	return fmt.Sprintf("breakpoint %d at %#x (%s)", bp.ID, bp.Addr, bp.FunctionName)
}

// BreakpointExistsError is returned when setting a breakpoint at an
// address that already has one.
type BreakpointExistsError struct {
	Addr uint64
}

func (bpe BreakpointExistsError) Error() string {
	return fmt.Sprintf("breakpoint already exists at %#x", bpe.Addr)
}

// InvalidAddressError is returned when setting a breakpoint at an address
// outside any known function.
type InvalidAddressError struct {
	Addr uint64
}

func (iae InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address %#x", iae.Addr)
}

// NoBreakpointError is returned when clearing an address that has no
// breakpoint set.
type NoBreakpointError struct {
	Addr uint64
}

func (nbe NoBreakpointError) Error() string {
	return fmt.Sprintf("no breakpoint at %#x", nbe.Addr)
}

// SetBreakpoint sets a software breakpoint at addr by patching in the
// architecture's trap instruction. The original bytes are saved so the
// breakpoint can be cleared.
func (tp *TracedProcess) SetBreakpoint(addr uint64) (*Breakpoint, error) {
	if _, ok := tp.Breakpoints[addr]; ok {
		return nil, BreakpointExistsError{Addr: addr}
	}
	fname := tp.Symbols.PCToFunc(addr)
	if fname == "" {
		return nil, InvalidAddressError{Addr: addr}
	}
	originalData := make([]byte, len(trapInstruction))
	if _, err := tp.ReadMemory(addr, originalData); err != nil {
		return nil, err
	}
	if _, err := tp.WriteMemory(addr, trapInstruction); err != nil {
		return nil, err
	}
	tp.bpIDCounter++
	bp := &Breakpoint{
		FunctionName: fname,
		Addr:         addr,
		OriginalData: originalData,
		ID:           tp.bpIDCounter,
	}
	tp.Breakpoints[addr] = bp
	return bp, nil
}

// ClearBreakpoint restores the original instruction bytes at addr.
func (tp *TracedProcess) ClearBreakpoint(addr uint64) (*Breakpoint, error) {
	bp, ok := tp.Breakpoints[addr]
	if !ok {
		return nil, NoBreakpointError{Addr: addr}
	}
	if _, err := tp.WriteMemory(bp.Addr, bp.OriginalData); err != nil {
		return nil, fmt.Errorf("could not clear breakpoint: %s", err)
	}
	delete(tp.Breakpoints, addr)
	return bp, nil
}

// FindBreakpoint returns the breakpoint the stopped thread with program
// counter pc is sitting on, if any. A software trap leaves the PC one
// instruction past the patch; a hardware breakpoint stops exactly at its
// address.
func (tp *TracedProcess) FindBreakpoint(pc uint64) (*Breakpoint, bool) {
	if bp, ok := tp.Breakpoints[pc-uint64(len(trapInstruction))]; ok {
		return bp, true
	}
	for _, bp := range tp.hwBreakpoints {
		if bp != nil && bp.Addr == pc {
			return bp, true
		}
	}
	return nil, false
}

// RewindToBreakpoint moves the current thread's PC back to bp's address
// after a software breakpoint hit, so execution resumes from the patched
// instruction. The breakpoint must already be cleared.
func (tp *TracedProcess) RewindToBreakpoint(bp *Breakpoint) error {
	if bp.Hardware {
		return nil
	}
	return tp.CurrentThread.SetPC(bp.Addr)
}
