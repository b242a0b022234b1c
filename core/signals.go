package core

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

const (
	EnterForegroundOnlyMessage = "Entering foreground-only mode (& is now ignored)"
	ExitForegroundOnlyMessage  = "Exiting foreground-only mode"
)

// modeMessage describes the mode the shell is now in.
func modeMessage(foregroundOnly bool) string {
	if foregroundOnly {
		return EnterForegroundOnlyMessage
	}
	return ExitForegroundOnlyMessage
}

// SignalState is the session state shared between the main loop and the
// SIGTSTP bridge.
type SignalState struct {
	// mu orders toggles against the start and end of foreground waits.
	mu             sync.Mutex
	foregroundOnly atomic.Bool
	runningPID     int
}

// ForegroundOnly reports whether "&" is currently ignored.
func (s *SignalState) ForegroundOnly() bool {
	return s.foregroundOnly.Load()
}

// Toggle flips foreground-only mode. It returns the new mode and whether a
// foreground child is running, in which case announcing the change is left
// to whoever is waiting on that child.
func (s *SignalState) Toggle() (foregroundOnly, deferred bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	foregroundOnly = !s.foregroundOnly.Load()
	s.foregroundOnly.Store(foregroundOnly)
	return foregroundOnly, s.runningPID != 0
}

// BeginForeground records pid as the running foreground child and returns
// the mode at that moment.
func (s *SignalState) BeginForeground(pid int) (foregroundOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runningPID = pid
	return s.foregroundOnly.Load()
}

// EndForeground clears the running foreground child and returns the mode at
// that moment.
func (s *SignalState) EndForeground() (foregroundOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runningPID = 0
	return s.foregroundOnly.Load()
}

// RunningPID returns the foreground child being waited on, or 0.
func (s *SignalState) RunningPID() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.runningPID
}

// SignalBridge turns SIGTSTP into foreground-only mode toggles.
//
// Messages are written straight to a file descriptor with a single write(2)
// so they can't interleave with buffered output halfway through a line.
type SignalBridge struct {
	state *SignalState
	fd    int

	enterMsg []byte
	exitMsg  []byte

	signals chan os.Signal
	done    chan struct{}
}

// NewSignalBridge creates a bridge that announces mode changes on fd,
// followed by prompt because the interrupted read is still waiting.
func NewSignalBridge(state *SignalState, fd int, prompt string) *SignalBridge {
	return &SignalBridge{
		state:    state,
		fd:       fd,
		enterMsg: []byte(EnterForegroundOnlyMessage + "\n" + prompt),
		exitMsg:  []byte(ExitForegroundOnlyMessage + "\n" + prompt),
	}
}

// Start begins handling SIGTSTP.
func (b *SignalBridge) Start() {
	b.signals = make(chan os.Signal, 8)
	b.done = make(chan struct{})
	signal.Notify(b.signals, unix.SIGTSTP)

	go func() {
		defer close(b.done)
		for range b.signals {
			b.handle()
		}
	}()
}

func (b *SignalBridge) handle() {
	foregroundOnly, deferred := b.state.Toggle()
	if deferred {
		return
	}

	msg := b.exitMsg
	if foregroundOnly {
		msg = b.enterMsg
	}
	_, _ = unix.Write(b.fd, msg)
}

// Stop restores the default SIGTSTP behavior and waits for the bridge to exit.
func (b *SignalBridge) Stop() {
	signal.Stop(b.signals)
	close(b.signals)
	<-b.done
}

// ignoreInterrupts makes the calling process immune to SIGINT. The returned
// function undoes it.
func ignoreInterrupts() (restore func()) {
	signal.Ignore(unix.SIGINT)
	return func() {
		signal.Reset(unix.SIGINT)
	}
}

// configureChildSignals sets the dispositions a child keeps once it replaces
// its program image. execve resets caught signals to their default and keeps
// ignored ones ignored.
func configureChildSignals(foreground bool) {
	signal.Ignore(unix.SIGTSTP)

	if foreground {
		signal.Notify(make(chan os.Signal, 1), unix.SIGINT)
	} else {
		signal.Ignore(unix.SIGINT)
	}
}
