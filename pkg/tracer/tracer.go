// Package tracer provides functions for launching and manipulating a
// traced process during an inspection session.
//
// Only linux/amd64 is supported: the probe target's trap instruction and
// register conventions are architecture specific.
package tracer

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"
	sys "golang.org/x/sys/unix"

	"github.com/go-bugger/tracetarget/pkg/logflags"
)

// TracedProcess represents a process running under ptrace control. Holds
// the pid, symbol information, breakpoint table and known threads.
type TracedProcess struct {
	Pid           int
	Process       *os.Process
	Symbols       *SymTable
	Breakpoints   map[uint64]*Breakpoint
	Threads       map[int]*Thread
	CurrentThread *Thread

	hwBreakpoints [4]*Breakpoint
	bpIDCounter   int
	exited        bool
	exitStatus    int
	log           *logrus.Entry

	ptraceChan     chan func()
	ptraceDoneChan chan interface{}
	relayStopped   bool
}

// ProcessExitedError indicates that the traced process has exited. Status
// is the 8-bit exit status from the wait status.
type ProcessExitedError struct {
	Pid    int
	Status int
}

func (pe ProcessExitedError) Error() string {
	return fmt.Sprintf("process %d has exited with status %d", pe.Pid, pe.Status)
}

// Launch creates and begins tracing a new process. The first entry in cmd
// is the program to run, and the rest are its arguments. The child's
// standard output goes to stdout, or to the parent's standard output when
// stdout is nil. The child is stopped at its first instruction when Launch
// returns.
func Launch(cmd []string, stdout *os.File) (*TracedProcess, error) {
	if stdout == nil {
		stdout = os.Stdout
	}
	tp := newTracedProcess()
	var (
		proc *exec.Cmd
		err  error
	)
	// The fork has to happen on the ptrace thread: the kernel makes the
	// forking thread the tracer of a PTRACE_TRACEME child.
	tp.execPtraceFunc(func() {
		proc = exec.Command(cmd[0])
		proc.Args = cmd
		proc.Stdout = stdout
		proc.Stderr = os.Stderr
		proc.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}
		err = proc.Start()
	})
	if err != nil {
		tp.stopPtraceRelay()
		return nil, err
	}
	tp.Pid = proc.Process.Pid
	tp.Process = proc.Process

	if _, _, err := wait(tp.Pid, 0); err != nil {
		return nil, fmt.Errorf("waiting for target execve failed: %s", err)
	}

	return initializeTracedProcess(tp, false)
}

// Attach begins tracing an existing process with the given PID.
func Attach(pid int) (*TracedProcess, error) {
	tp := newTracedProcess()
	tp.Pid = pid

	var err error
	tp.execPtraceFunc(func() { err = sys.PtraceAttach(pid) })
	if err != nil {
		tp.stopPtraceRelay()
		return nil, err
	}
	if _, _, err := wait(pid, 0); err != nil {
		return nil, err
	}

	tp.Process, err = os.FindProcess(pid)
	if err != nil {
		return nil, err
	}

	return initializeTracedProcess(tp, true)
}

func newTracedProcess() *TracedProcess {
	tp := &TracedProcess{
		Breakpoints:    make(map[uint64]*Breakpoint),
		Threads:        make(map[int]*Thread),
		log:            logflags.TracerLogger(),
		ptraceChan:     make(chan func()),
		ptraceDoneChan: make(chan interface{}),
	}
	go tp.handlePtraceFuncs()
	return tp
}

func initializeTracedProcess(tp *TracedProcess, attach bool) (*TracedProcess, error) {
	var err error
	tp.Symbols, err = loadSymbols(tp.Pid)
	if err != nil {
		return nil, err
	}
	if err := tp.updateThreadList(attach); err != nil {
		return nil, err
	}
	return tp, nil
}

func (tp *TracedProcess) handlePtraceFuncs() {
	// ptrace(2) expects all requests after PTRACE_ATTACH to come from the
	// same OS thread, and goroutines migrate between threads. Every ptrace
	// request is funneled through here.
	runtime.LockOSThread()

	for fn := range tp.ptraceChan {
		fn()
		tp.ptraceDoneChan <- nil
	}
}

func (tp *TracedProcess) execPtraceFunc(fn func()) {
	tp.ptraceChan <- fn
	<-tp.ptraceDoneChan
}

// stopPtraceRelay releases the locked ptrace thread. No ptrace request can
// be issued after this.
func (tp *TracedProcess) stopPtraceRelay() {
	if tp.relayStopped {
		return
	}
	tp.relayStopped = true
	close(tp.ptraceChan)
	close(tp.ptraceDoneChan)
}

// Exited returns whether the traced process has exited.
func (tp *TracedProcess) Exited() bool {
	return tp.exited
}

// Running returns whether the traced process is still alive.
func (tp *TracedProcess) Running() bool {
	return !tp.exited
}

// ExitStatus returns the 8-bit exit status of the traced process. Only
// valid after Exited reports true.
func (tp *TracedProcess) ExitStatus() int {
	return tp.exitStatus
}

// Continue resumes every traced thread and waits for the next trap. The
// thread that trapped becomes the current thread and is returned. When
// the process exits instead of trapping, the error is a
// ProcessExitedError carrying its exit status.
func (tp *TracedProcess) Continue() (*Thread, error) {
	if tp.exited {
		return nil, ProcessExitedError{Pid: tp.Pid, Status: tp.exitStatus}
	}
	for _, th := range tp.Threads {
		err := th.resume()
		if err == sys.ESRCH && th != tp.CurrentThread {
			// Threads other than the one that stopped may already be
			// running. The stopped thread reporting ESRCH is a real
			// failure.
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	tid, err := tp.trapWait(-1)
	if err != nil {
		return nil, err
	}
	th, ok := tp.Threads[tid]
	if !ok {
		return nil, fmt.Errorf("unknown thread %d", tid)
	}
	tp.CurrentThread = th
	return th, nil
}

// Registers returns the register state of the current thread.
func (tp *TracedProcess) Registers() (*Regs, error) {
	return tp.CurrentThread.Registers()
}

// CurrentPC returns the program counter of the current thread.
func (tp *TracedProcess) CurrentPC() (uint64, error) {
	regs, err := tp.Registers()
	if err != nil {
		return 0, err
	}
	return regs.PC(), nil
}

// Detach releases every traced thread and lets the process run free.
func (tp *TracedProcess) Detach() error {
	if tp.exited {
		return nil
	}
	var err error
	tp.execPtraceFunc(func() {
		for tid := range tp.Threads {
			if e := PtraceDetach(tid, 0); e != nil && e != sys.ESRCH {
				err = e
				return
			}
		}
	})
	if err != nil {
		return err
	}
	tp.stopPtraceRelay()
	return nil
}

// Kill terminates the traced process and reaps it.
func (tp *TracedProcess) Kill() error {
	if tp.exited {
		return nil
	}
	if err := tp.Process.Kill(); err != nil {
		return err
	}
	if _, _, err := wait(tp.Pid, 0); err != nil && err != sys.ECHILD {
		return err
	}
	tp.exited = true
	tp.stopPtraceRelay()
	return nil
}
