package tracer

import sys "golang.org/x/sys/unix"

// Regs wraps the amd64 ptrace register set.
type Regs struct {
	regs *sys.PtraceRegs
}

// PC returns the instruction pointer.
func (r *Regs) PC() uint64 {
	return r.regs.PC()
}

// SP returns the stack pointer.
func (r *Regs) SP() uint64 {
	return r.regs.Rsp
}

// Rax returns the RAX register. The Go internal ABI passes a function's
// first integer argument in RAX, so at a function entry breakpoint this
// holds the first argument.
func (r *Regs) Rax() uint64 {
	return r.regs.Rax
}

