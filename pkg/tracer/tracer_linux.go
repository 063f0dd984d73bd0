package tracer

import (
	"fmt"
	"path/filepath"
	"strconv"

	sys "golang.org/x/sys/unix"
)

// addThread starts tracking a thread of the traced process. When attach is
// true the thread is also ptrace-attached, which is only needed for
// threads that existed before we took control.
func (tp *TracedProcess) addThread(tid int, attach bool) (*Thread, error) {
	if th, ok := tp.Threads[tid]; ok {
		return th, nil
	}

	if attach {
		var err error
		tp.execPtraceFunc(func() { err = sys.PtraceAttach(tid) })
		if err != nil && err != sys.EPERM {
			// EPERM may just mean we already trace this thread through
			// PTRACE_O_TRACECLONE. Anything else is fatal.
			return nil, fmt.Errorf("could not attach to thread %d: %s", tid, err)
		}
		if err == nil {
			if _, _, err := wait(tid, 0); err != nil {
				return nil, err
			}
		}
	}

	var err error
	tp.execPtraceFunc(func() { err = sys.PtraceSetOptions(tid, sys.PTRACE_O_TRACECLONE) })
	if err == sys.ESRCH {
		// The thread exists but has not stopped yet.
		if _, _, err := wait(tid, 0); err != nil {
			return nil, fmt.Errorf("error while waiting after adding thread %d: %s", tid, err)
		}
		tp.execPtraceFunc(func() { err = sys.PtraceSetOptions(tid, sys.PTRACE_O_TRACECLONE) })
	}
	if err != nil {
		return nil, fmt.Errorf("could not set options for traced thread %d: %s", tid, err)
	}

	th := &Thread{ID: tid, proc: tp}
	tp.Threads[tid] = th
	if tp.CurrentThread == nil || tid == tp.Pid {
		tp.CurrentThread = th
	}
	return th, nil
}

// updateThreadList seeds the thread table from /proc/<pid>/task. At launch
// this is just the main thread, the rest arrive through clone events.
func (tp *TracedProcess) updateThreadList(attach bool) error {
	tids, err := filepath.Glob(fmt.Sprintf("/proc/%d/task/*", tp.Pid))
	if err != nil {
		return err
	}
	for _, tidpath := range tids {
		tid, err := strconv.Atoi(filepath.Base(tidpath))
		if err != nil {
			continue
		}
		if _, err := tp.addThread(tid, attach && tid != tp.Pid); err != nil {
			return err
		}
	}
	return nil
}

// trapWait waits until a thread of the traced process stops with a genuine
// SIGTRAP and returns its tid. Clone events extend the thread table, other
// stop signals are forwarded to the thread they were meant for, and thread
// exits are pruned. Process exit surfaces as a ProcessExitedError.
func (tp *TracedProcess) trapWait(pid int) (int, error) {
	for {
		wpid, status, err := wait(pid, 0)
		if err != nil {
			return -1, fmt.Errorf("wait err %s %d", err, pid)
		}
		if wpid == 0 {
			continue
		}
		if th, ok := tp.Threads[wpid]; ok {
			th.Status = status
		}

		switch {
		case status.Exited():
			if wpid == tp.Pid {
				tp.exited = true
				tp.exitStatus = status.ExitStatus()
				tp.stopPtraceRelay()
				return -1, ProcessExitedError{Pid: wpid, Status: status.ExitStatus()}
			}
			delete(tp.Threads, wpid)

		case status.Signaled():
			if wpid == tp.Pid {
				tp.exited = true
				tp.stopPtraceRelay()
				return -1, fmt.Errorf("process %d terminated by signal %v", wpid, status.Signal())
			}
			delete(tp.Threads, wpid)

		case status.StopSignal() == sys.SIGTRAP && status.TrapCause() == sys.PTRACE_EVENT_CLONE:
			// A traced thread cloned a new thread. Track it and keep both
			// running.
			var (
				tid uint
				err error
			)
			tp.execPtraceFunc(func() { tid, err = sys.PtraceGetEventMsg(wpid) })
			if err != nil {
				return -1, fmt.Errorf("could not get event message: %s", err)
			}
			tp.log.Debugf("thread %d spawned new thread %d", wpid, tid)
			th, err := tp.addThread(int(tid), false)
			if err != nil {
				return -1, err
			}
			if err := th.resume(); err != nil {
				return -1, err
			}
			tp.execPtraceFunc(func() { err = PtraceCont(wpid, 0) })
			if err != nil {
				return -1, err
			}

		case status.StopSignal() == sys.SIGTRAP:
			return wpid, nil

		case status.Stopped():
			// The Go runtime relies on signal delivery (preemption uses
			// SIGURG), so forward whatever stopped the thread. SIGSTOP is
			// the initial stop of a cloned thread and is suppressed.
			sig := status.StopSignal()
			if sig == sys.SIGSTOP {
				sig = 0
			}
			tp.log.Debugf("thread %d stopped with %v, resuming", wpid, status.StopSignal())
			if _, ok := tp.Threads[wpid]; !ok {
				if _, err := tp.addThread(wpid, false); err != nil {
					return -1, err
				}
			}
			var err error
			tp.execPtraceFunc(func() { err = PtraceCont(wpid, int(sig)) })
			if err != nil {
				return -1, err
			}
		}
	}
}

func wait(pid, options int) (int, *sys.WaitStatus, error) {
	var status sys.WaitStatus
	wpid, err := sys.Wait4(pid, &status, sys.WALL|options, nil)
	return wpid, &status, err
}
