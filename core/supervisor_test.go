package core

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/josephlewis42/smallsh/core/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type supervisorFixture struct {
	*Supervisor
	dir string
}

func newSupervisorFixture(t *testing.T) *supervisorFixture {
	t.Helper()

	self, err := os.Executable()
	require.NoError(t, err)

	dir := t.TempDir()
	stdin, err := os.Open(os.DevNull)
	require.NoError(t, err)
	stdout, err := os.Create(filepath.Join(dir, "stdout"))
	require.NoError(t, err)
	stderr, err := os.Create(filepath.Join(dir, "stderr"))
	require.NoError(t, err)

	sup := &Supervisor{
		Executable: self,
		Stdin:      stdin,
		Stdout:     stdout,
		Stderr:     stderr,
		Signals:    &SignalState{},
		NullDevice: os.DevNull,
		FileMode:   0644,
		Logger:     log.New(stderr, "test: ", 0),
	}

	t.Cleanup(func() {
		sup.TerminateAll()
		stdin.Close()
		stdout.Close()
		stderr.Close()
	})

	return &supervisorFixture{Supervisor: sup, dir: dir}
}

func (f *supervisorFixture) path(name string) string {
	return filepath.Join(f.dir, name)
}

func (f *supervisorFixture) readFile(t *testing.T, name string) string {
	t.Helper()

	contents, err := os.ReadFile(f.path(name))
	require.NoError(t, err)
	return string(contents)
}

func (f *supervisorFixture) stdout(t *testing.T) string {
	return f.readFile(t, "stdout")
}

func (f *supervisorFixture) stderr(t *testing.T) string {
	return f.readFile(t, "stderr")
}

func TestSupervisor_childSpec(t *testing.T) {
	cases := map[string]struct {
		cmd            shell.Command
		foregroundOnly bool
		expected       ChildSpec
		background     bool
	}{
		"foreground": {
			cmd:      shell.Command{Args: []string{"ls"}},
			expected: ChildSpec{Args: []string{"ls"}, Foreground: true, FileMode: 0644},
		},
		"foreground-redirected": {
			cmd:      shell.Command{Args: []string{"sort"}, Stdin: "in", Stdout: "out"},
			expected: ChildSpec{Args: []string{"sort"}, Stdin: "in", Stdout: "out", Foreground: true, FileMode: 0644},
		},
		"background-defaults-to-null": {
			cmd:        shell.Command{Args: []string{"sleep", "5"}, Background: true},
			expected:   ChildSpec{Args: []string{"sleep", "5"}, Stdin: os.DevNull, Stdout: os.DevNull, FileMode: 0644},
			background: true,
		},
		"background-keeps-explicit": {
			cmd:        shell.Command{Args: []string{"sort"}, Stdin: "in", Background: true},
			expected:   ChildSpec{Args: []string{"sort"}, Stdin: "in", Stdout: os.DevNull, FileMode: 0644},
			background: true,
		},
		"foreground-only-overrides": {
			cmd:            shell.Command{Args: []string{"sleep", "5"}, Background: true},
			foregroundOnly: true,
			expected:       ChildSpec{Args: []string{"sleep", "5"}, Foreground: true, FileMode: 0644},
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			sup := &Supervisor{Signals: &SignalState{}, NullDevice: os.DevNull, FileMode: 0644}
			if tc.foregroundOnly {
				sup.Signals.Toggle()
			}

			spec, background := sup.childSpec(&tc.cmd)

			assert.Equal(t, tc.background, background)
			assert.Equal(t, tc.expected, *spec)
		})
	}
}

func TestSupervisor_foregroundExitCode(t *testing.T) {
	f := newSupervisorFixture(t)

	status, err := f.Spawn(&shell.Command{Args: []string{"sh", "-c", "exit 7"}})

	require.NoError(t, err)
	assert.Equal(t, Exited(7), status)
	assert.Equal(t, "Exit status was 7", status.String())
	assert.Equal(t, 0, f.Jobs.Len())
	assert.Equal(t, 0, f.Signals.RunningPID())
}

func TestSupervisor_foregroundInterrupted(t *testing.T) {
	f := newSupervisorFixture(t)

	status, err := f.Spawn(&shell.Command{Args: []string{"sh", "-c", "kill -INT $$"}})

	require.NoError(t, err)
	assert.Equal(t, Killed(syscall.SIGINT), status)
	assert.Equal(t, "terminated by signal 2\n", f.stdout(t))
}

func TestSupervisor_foregroundTerminated(t *testing.T) {
	f := newSupervisorFixture(t)

	status, err := f.Spawn(&shell.Command{Args: []string{"sh", "-c", "kill -TERM $$"}})

	require.NoError(t, err)
	assert.Equal(t, Killed(syscall.SIGTERM), status)
	// Only interrupts are announced right away.
	assert.Empty(t, f.stdout(t))
}

func TestSupervisor_modeChangedDuringForeground(t *testing.T) {
	f := newSupervisorFixture(t)

	toggled := make(chan struct{})
	go func() {
		defer close(toggled)
		for f.Signals.RunningPID() == 0 {
			time.Sleep(time.Millisecond)
		}
		f.Signals.Toggle()
	}()

	status, err := f.Spawn(&shell.Command{Args: []string{"sleep", "0.5"}})
	<-toggled

	require.NoError(t, err)
	assert.Equal(t, Exited(0), status)
	assert.Equal(t, "Entering foreground-only mode (& is now ignored)\n", f.stdout(t))
	assert.True(t, f.Signals.ForegroundOnly())
}

func TestSupervisor_background(t *testing.T) {
	f := newSupervisorFixture(t)

	status, err := f.Spawn(&shell.Command{Args: []string{"sh", "-c", "exit 3"}, Background: true})
	require.NoError(t, err)
	assert.Nil(t, status)

	require.Equal(t, 1, f.Jobs.Len())
	pid := f.Jobs.PIDs()[0]
	assert.Equal(t, fmt.Sprintf("Background pid is %d\n", pid), f.stdout(t))

	assert.Eventually(t, func() bool {
		f.ReapCompleted()
		return f.Jobs.Len() == 0
	}, 10*time.Second, 10*time.Millisecond)

	expected := fmt.Sprintf("Background pid is %d\nBackground pid %d is done: Exit status was 3\n", pid, pid)
	assert.Equal(t, expected, f.stdout(t))
}

func TestSupervisor_reapLeavesRunningJobs(t *testing.T) {
	f := newSupervisorFixture(t)

	_, err := f.Spawn(&shell.Command{Args: []string{"sleep", "30"}, Background: true})
	require.NoError(t, err)
	_, err = f.Spawn(&shell.Command{Args: []string{"true"}, Background: true})
	require.NoError(t, err)
	pids := f.Jobs.PIDs()
	sleeper, quick := pids[0], pids[1]

	assert.Eventually(t, func() bool {
		f.ReapCompleted()
		return !f.Jobs.Contains(quick)
	}, 10*time.Second, 10*time.Millisecond)

	assert.True(t, f.Jobs.Contains(sleeper))
	assert.NotContains(t, f.stdout(t), fmt.Sprintf("Background pid %d is done", sleeper))
	assert.Contains(t, f.stdout(t), fmt.Sprintf("Background pid %d is done: Exit status was 0\n", quick))
}

func TestSupervisor_backgroundUsesNullDevice(t *testing.T) {
	if _, err := os.Stat("/proc/self/fd"); err != nil {
		t.Skip("needs /proc")
	}
	f := newSupervisorFixture(t)

	_, err := f.Spawn(&shell.Command{
		// The trailing true keeps sh from exec'ing readlink in its own place.
		Args:       []string{"sh", "-c", "readlink /proc/$$/fd/0 >&2; readlink /proc/$$/fd/1 >&2; true"},
		Background: true,
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		f.ReapCompleted()
		return f.Jobs.Len() == 0
	}, 10*time.Second, 10*time.Millisecond)

	assert.Equal(t, "/dev/null\n/dev/null\n", f.stderr(t))
}

func TestSupervisor_backgroundIgnoresInterrupt(t *testing.T) {
	f := newSupervisorFixture(t)

	_, err := f.Spawn(&shell.Command{Args: []string{"sh", "-c", "kill -INT $$; exit 5"}, Background: true})
	require.NoError(t, err)
	pid := f.Jobs.PIDs()[0]

	assert.Eventually(t, func() bool {
		f.ReapCompleted()
		return f.Jobs.Len() == 0
	}, 10*time.Second, 10*time.Millisecond)

	assert.Contains(t, f.stdout(t), fmt.Sprintf("Background pid %d is done: Exit status was 5\n", pid))
}

func TestSupervisor_childIgnoresStop(t *testing.T) {
	f := newSupervisorFixture(t)

	for _, background := range []bool{false, true} {
		status, err := f.Spawn(&shell.Command{Args: []string{"sh", "-c", "kill -TSTP $$; exit 6"}, Background: background})
		require.NoError(t, err)

		if background {
			pid := f.Jobs.PIDs()[0]
			assert.Eventually(t, func() bool {
				f.ReapCompleted()
				return f.Jobs.Len() == 0
			}, 10*time.Second, 10*time.Millisecond)
			assert.Contains(t, f.stdout(t), fmt.Sprintf("Background pid %d is done: Exit status was 6\n", pid))
		} else {
			assert.Equal(t, Exited(6), status)
		}
	}
}

func TestSupervisor_foregroundStoppedIsContinued(t *testing.T) {
	f := newSupervisorFixture(t)

	status, err := f.Spawn(&shell.Command{Args: []string{"sh", "-c", "kill -STOP $$; exit 4"}})

	require.NoError(t, err)
	assert.Equal(t, Exited(4), status)
	assert.Equal(t, 0, f.Signals.RunningPID())
}

func TestSupervisor_scriptWithoutInterpreterLine(t *testing.T) {
	f := newSupervisorFixture(t)
	script := f.path("no-shebang")
	require.NoError(t, os.WriteFile(script, []byte("echo from script >&2\nexit 9\n"), 0755))

	status, err := f.Spawn(&shell.Command{Args: []string{script}})

	require.NoError(t, err)
	assert.Equal(t, Exited(9), status)
	assert.Equal(t, "from script\n", f.stderr(t))
}

func TestSupervisor_foregroundOnlyIgnoresBackground(t *testing.T) {
	f := newSupervisorFixture(t)
	f.Signals.Toggle()

	start := time.Now()
	status, err := f.Spawn(&shell.Command{Args: []string{"sleep", "0.3"}, Background: true})

	require.NoError(t, err)
	assert.Equal(t, Exited(0), status)
	assert.GreaterOrEqual(t, int64(time.Since(start)), int64(300*time.Millisecond))
	assert.Equal(t, 0, f.Jobs.Len())
	assert.NotContains(t, f.stdout(t), "Background pid")
}

func TestSupervisor_redirection(t *testing.T) {
	f := newSupervisorFixture(t)
	require.NoError(t, os.WriteFile(f.path("in"), []byte("banana\napple\n"), 0644))
	require.NoError(t, os.WriteFile(f.path("out"), []byte("old content that is longer than the new\n"), 0644))

	status, err := f.Spawn(&shell.Command{Args: []string{"sort"}, Stdin: f.path("in"), Stdout: f.path("out")})

	require.NoError(t, err)
	assert.Equal(t, Exited(0), status)
	assert.Equal(t, "apple\nbanana\n", f.readFile(t, "out"))
	assert.Empty(t, f.stdout(t))
}

func TestSupervisor_outputCreated(t *testing.T) {
	f := newSupervisorFixture(t)

	status, err := f.Spawn(&shell.Command{Args: []string{"echo", "hello"}, Stdout: f.path("created")})

	require.NoError(t, err)
	assert.Equal(t, Exited(0), status)
	assert.Equal(t, "hello\n", f.readFile(t, "created"))
}

func TestSupervisor_inputMissing(t *testing.T) {
	f := newSupervisorFixture(t)

	status, err := f.Spawn(&shell.Command{
		Args:   []string{"echo", "ran"},
		Stdin:  f.path("missing"),
		Stdout: f.path("out"),
	})

	require.NoError(t, err)
	assert.Equal(t, Exited(1), status)
	assert.Contains(t, f.stderr(t), "for input redirection")
	assert.NotContains(t, f.stderr(t), "output")

	// echo never ran and the output was never opened.
	_, err = os.Stat(f.path("out"))
	assert.True(t, os.IsNotExist(err))
}

func TestSupervisor_outputUnwritable(t *testing.T) {
	f := newSupervisorFixture(t)

	status, err := f.Spawn(&shell.Command{Args: []string{"echo", "ran"}, Stdout: f.path("no/such/dir")})

	require.NoError(t, err)
	assert.Equal(t, Exited(1), status)
	assert.Contains(t, f.stderr(t), "for output redirection")
	assert.Empty(t, f.stdout(t))
}

func TestSupervisor_unknownCommand(t *testing.T) {
	f := newSupervisorFixture(t)

	status, err := f.Spawn(&shell.Command{Args: []string{"smallsh-no-such-command"}})

	require.NoError(t, err)
	assert.Equal(t, Exited(1), status)
	assert.Contains(t, f.stderr(t), "smallsh-no-such-command: command not found")
}

func TestSupervisor_TerminateAll(t *testing.T) {
	f := newSupervisorFixture(t)

	for i := 0; i < 2; i++ {
		_, err := f.Spawn(&shell.Command{Args: []string{"sleep", "30"}, Background: true})
		require.NoError(t, err)
	}
	pids := f.Jobs.PIDs()
	require.Len(t, pids, 2)

	start := time.Now()
	f.TerminateAll()

	assert.Less(t, int64(time.Since(start)), int64(10*time.Second))
	assert.Equal(t, 0, f.Jobs.Len())
	for _, pid := range pids {
		// Reaped, so the PID no longer refers to anything of ours.
		var ws unix.WaitStatus
		_, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		assert.ErrorIs(t, err, unix.ECHILD)
	}
}

func TestSupervisor_TerminateAllStopped(t *testing.T) {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("needs /proc")
	}
	f := newSupervisorFixture(t)

	_, err := f.Spawn(&shell.Command{Args: []string{"sh", "-c", "kill -STOP $$; sleep 30"}, Background: true})
	require.NoError(t, err)
	pid := f.Jobs.PIDs()[0]

	// Wait until the job has stopped itself.
	assert.Eventually(t, func() bool {
		stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
		if err != nil {
			return true
		}
		fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
		return len(fields) > 0 && fields[0] == "T"
	}, 10*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.TerminateAll()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("TerminateAll hung on a stopped job")
	}
	assert.Equal(t, 0, f.Jobs.Len())
}

func TestSupervisor_spawnFailure(t *testing.T) {
	f := newSupervisorFixture(t)
	f.Executable = filepath.Join(f.dir, "no-such-binary")

	_, err := f.Spawn(&shell.Command{Args: []string{"true"}})

	assert.True(t, errors.Is(err, ErrSpawn), "got: %v", err)
	assert.True(t, strings.Contains(err.Error(), "no-such-binary"))
}
