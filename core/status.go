package core

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// ExitStatus is how a child process finished: either it exited with a code
// or it was terminated by a signal.
type ExitStatus struct {
	Code     int
	Signal   syscall.Signal
	Signaled bool
}

// Exited creates the status of a process that exited normally.
func Exited(code int) *ExitStatus {
	return &ExitStatus{Code: code}
}

// Killed creates the status of a process terminated by sig.
func Killed(sig syscall.Signal) *ExitStatus {
	return &ExitStatus{Signal: sig, Signaled: true}
}

func exitStatusFromWait(ws unix.WaitStatus) *ExitStatus {
	if ws.Signaled() {
		return Killed(ws.Signal())
	}
	return Exited(ws.ExitStatus())
}

// Interrupted returns true if the process was killed by SIGINT.
func (e *ExitStatus) Interrupted() bool {
	return e.Signaled && e.Signal == syscall.SIGINT
}

// String uses the wording shared by status and background completion reports.
func (e *ExitStatus) String() string {
	if e.Signaled {
		return fmt.Sprintf("terminated by signal %d", int(e.Signal))
	}
	return fmt.Sprintf("Exit status was %d", e.Code)
}
