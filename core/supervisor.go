package core

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"

	"github.com/josephlewis42/smallsh/core/shell"
	"golang.org/x/sys/unix"
)

// ErrSpawn is returned when a child process can't be created. The shell can't
// continue after it.
var ErrSpawn = errors.New("couldn't create child process")

// Supervisor starts external commands and keeps track of the ones running in
// the background.
type Supervisor struct {
	// Executable is started as the child, normally the shell's own binary.
	Executable string

	// Standard streams handed down to children.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	Signals *SignalState
	Jobs    JobSet

	// NullDevice replaces stdin and stdout of background commands that don't
	// redirect them.
	NullDevice string
	// FileMode is used for files created by output redirection.
	FileMode os.FileMode

	Logger *log.Logger
}

// childSpec decides how cmd is run and whether it goes to the background.
func (s *Supervisor) childSpec(cmd *shell.Command) (spec *ChildSpec, background bool) {
	background = cmd.Background && !s.Signals.ForegroundOnly()

	spec = &ChildSpec{
		Args:       cmd.Args,
		Stdin:      cmd.Stdin,
		Stdout:     cmd.Stdout,
		Foreground: !background,
		FileMode:   s.FileMode,
	}

	if background {
		if spec.Stdin == "" {
			spec.Stdin = s.NullDevice
		}
		if spec.Stdout == "" {
			spec.Stdout = s.NullDevice
		}
	}

	return spec, background
}

// Spawn runs cmd as a child process. Foreground commands are waited on and
// their status returned, background commands return a nil status.
//
// Errors wrapping ErrSpawn are fatal to the shell.
func (s *Supervisor) Spawn(cmd *shell.Command) (*ExitStatus, error) {
	spec, background := s.childSpec(cmd)

	pid, err := s.start(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	if background {
		s.Jobs.Add(pid)
		fmt.Fprintf(s.Stdout, "Background pid is %d\n", pid)
		return nil, nil
	}

	return s.waitForeground(pid)
}

func (s *Supervisor) start(spec *ChildSpec) (int, error) {
	child := exec.Command(s.Executable)
	child.Args = append([]string{s.Executable}, spec.argv()...)
	child.Stdin = s.Stdin
	child.Stdout = s.Stdout
	child.Stderr = s.Stderr

	if err := child.Start(); err != nil {
		return 0, err
	}

	pid := child.Process.Pid
	// The child is collected with wait4 so the handle isn't needed.
	if err := child.Process.Release(); err != nil {
		s.logf("releasing %d: %v", pid, err)
	}
	return pid, nil
}

func (s *Supervisor) waitForeground(pid int) (*ExitStatus, error) {
	before := s.Signals.BeginForeground(pid)
	ws, err := s.waitExited(pid)
	after := s.Signals.EndForeground()

	if err != nil {
		return nil, fmt.Errorf("waiting for %d: %w", pid, err)
	}

	status := exitStatusFromWait(ws)
	if status.Interrupted() {
		fmt.Fprintln(s.Stdout, status)
	}

	// SIGTSTP arrived during the wait, the bridge left the message to us.
	if before != after {
		fmt.Fprintln(s.Stdout, modeMessage(after))
	}

	return status, nil
}

// waitExited blocks until pid exits. A child can be stopped by SIGTSTP before
// it gets to ignore it, such a child is continued.
func (s *Supervisor) waitExited(pid int) (unix.WaitStatus, error) {
	for {
		_, ws, err := wait4(pid, unix.WUNTRACED)
		if err != nil || !ws.Stopped() {
			return ws, err
		}

		s.logf("pid %d stopped by %v, continuing", pid, ws.StopSignal())
		if err := unix.Kill(pid, unix.SIGCONT); err != nil && !errors.Is(err, unix.ESRCH) {
			return ws, fmt.Errorf("continuing %d: %w", pid, err)
		}
	}
}

// ReapCompleted reports and forgets every background job that has finished.
// It never blocks.
func (s *Supervisor) ReapCompleted() {
	for i := 0; i < len(s.Jobs.pids); {
		pid := s.Jobs.pids[i]
		wpid, ws, err := wait4(pid, unix.WNOHANG)

		switch {
		case errors.Is(err, unix.ECHILD):
			s.logf("background pid %d disappeared", pid)
			s.Jobs.removeAt(i)
		case err != nil:
			s.logf("checking background pid %d: %v", pid, err)
			i++
		case wpid == pid:
			fmt.Fprintf(s.Stdout, "Background pid %d is done: %s\n", pid, exitStatusFromWait(ws))
			s.Jobs.removeAt(i)
		default:
			i++
		}
	}
}

// TerminateAll sends SIGTERM to every background job, then waits for each
// one in turn. Stopped jobs are continued so the signal gets delivered.
func (s *Supervisor) TerminateAll() {
	for _, pid := range s.Jobs.pids {
		if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
			s.logf("terminating %d: %v", pid, err)
		}
		if err := unix.Kill(pid, unix.SIGCONT); err != nil && !errors.Is(err, unix.ESRCH) {
			s.logf("continuing %d: %v", pid, err)
		}
		if _, _, err := wait4(pid, 0); err != nil && !errors.Is(err, unix.ECHILD) {
			s.logf("waiting for %d: %v", pid, err)
		}
	}
	s.Jobs.Clear()
}

func (s *Supervisor) logf(format string, v ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf(format, v...)
	}
}

func wait4(pid, options int) (wpid int, ws unix.WaitStatus, err error) {
	for {
		wpid, err = unix.Wait4(pid, &ws, options, nil)
		if !errors.Is(err, unix.EINTR) {
			return wpid, ws, err
		}
	}
}
