package tracer

import (
	sys "golang.org/x/sys/unix"
)

// Thread is a single traced thread of the process.
type Thread struct {
	ID     int
	Status *sys.WaitStatus
	proc   *TracedProcess
}

// resume continues a trace-stopped thread.
func (t *Thread) resume() error {
	var err error
	t.proc.execPtraceFunc(func() { err = PtraceCont(t.ID, 0) })
	return err
}

// Step executes a single instruction on this thread and waits for the
// resulting trap.
func (t *Thread) Step() error {
	var err error
	t.proc.execPtraceFunc(func() { err = PtraceSingleStep(t.ID) })
	if err != nil {
		return err
	}
	_, _, err = wait(t.ID, 0)
	return err
}

// Registers returns this thread's register state.
func (t *Thread) Registers() (*Regs, error) {
	var (
		regs sys.PtraceRegs
		err  error
	)
	t.proc.execPtraceFunc(func() { err = sys.PtraceGetRegs(t.ID, &regs) })
	if err != nil {
		return nil, err
	}
	return &Regs{&regs}, nil
}

// SetPC moves this thread's instruction pointer.
func (t *Thread) SetPC(pc uint64) error {
	var (
		regs sys.PtraceRegs
		err  error
	)
	t.proc.execPtraceFunc(func() {
		if err = sys.PtraceGetRegs(t.ID, &regs); err != nil {
			return
		}
		regs.SetPC(pc)
		err = sys.PtraceSetRegs(t.ID, &regs)
	})
	return err
}

// ReadMemory reads len(data) bytes of the process image at addr through
// this thread.
func (t *Thread) ReadMemory(addr uint64, data []byte) (int, error) {
	var (
		n   int
		err error
	)
	t.proc.execPtraceFunc(func() { n, err = sys.PtracePeekData(t.ID, uintptr(addr), data) })
	return n, err
}

// WriteMemory writes data to the process image at addr through this
// thread.
func (t *Thread) WriteMemory(addr uint64, data []byte) (int, error) {
	var (
		n   int
		err error
	)
	t.proc.execPtraceFunc(func() { n, err = sys.PtracePokeData(t.ID, uintptr(addr), data) })
	return n, err
}
