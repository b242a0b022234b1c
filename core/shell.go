package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/josephlewis42/smallsh/core/config"
	"github.com/josephlewis42/smallsh/core/shell"
)

const (
	EnvHome = "HOME"
	EnvPWD  = "PWD"
	EnvPath = "PATH"
)

type Shell struct {
	Config     *config.Configuration
	Signals    *SignalState
	Supervisor *Supervisor
	Logger     *log.Logger

	stdin  *bufio.Reader
	stdout *os.File
	stderr *os.File

	pid        int
	lastStatus *ExitStatus

	// Set to true to quit the shell
	Quit bool
}

// NewShell creates a shell reading commands from stdin. Children are started
// by running executable with the child subcommand.
func NewShell(cfg *config.Configuration, executable string, stdin, stdout, stderr *os.File) *Shell {
	logger := log.New(stderr, "smallsh: ", 0)
	signals := &SignalState{}

	return &Shell{
		Config:  cfg,
		Signals: signals,
		Supervisor: &Supervisor{
			Executable: executable,
			Stdin:      stdin,
			Stdout:     stdout,
			Stderr:     stderr,
			Signals:    signals,
			NullDevice: cfg.NullDevice,
			FileMode:   cfg.FileMode(),
			Logger:     logger,
		},
		Logger: logger,
		stdin:  bufio.NewReader(stdin),
		stdout: stdout,
		stderr: stderr,
		pid:    os.Getpid(),
	}
}

// LastStatus returns the status of the last foreground command, nil if none
// has finished yet.
func (s *Shell) LastStatus() *ExitStatus {
	return s.lastStatus
}

// Run reads and executes commands until exit is called or input ends.
// A non-nil error means the shell couldn't keep going.
func (s *Shell) Run() error {
	restoreInterrupts := ignoreInterrupts()
	defer restoreInterrupts()

	bridge := NewSignalBridge(s.Signals, int(s.stdout.Fd()), s.Config.Prompt)
	bridge.Start()
	defer bridge.Stop()

	for !s.Quit {
		line, err := s.readLine()
		switch {
		case errors.Is(err, io.EOF):
			Exit(s, []string{"exit"})
			return nil
		case err != nil:
			Exit(s, []string{"exit"})
			return fmt.Errorf("reading input: %w", err)
		}

		if err := s.RunLine(line); err != nil {
			return err
		}
	}
	return nil
}

// readLine reaps finished jobs, prompts and returns the next line worth
// running.
func (s *Shell) readLine() (string, error) {
	for {
		s.Supervisor.ReapCompleted()
		fmt.Fprint(s.stdout, s.Config.Prompt)

		line, err := s.stdin.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			return "", err
		}
		// The limit counts the terminating newline.
		entered := len(line)
		line = strings.TrimSuffix(line, "\n")

		switch {
		case entered > s.Config.MaxLineLength:
			diag(s.stderr, "line too long, max %d characters", s.Config.MaxLineLength)
		case strings.TrimSpace(line) == "":
			// empty line
		case strings.HasPrefix(line, s.Config.CommentPrefix):
			// comment
		default:
			return line, nil
		}
	}
}

// RunLine executes a single command line.
func (s *Shell) RunLine(line string) error {
	cmd, err := shell.ParseLine(line, s.pid)
	if err != nil {
		diag(s.stderr, "smallsh: syntax error: %v", err)
		return nil
	}

	return s.dispatch(cmd)
}

func (s *Shell) dispatch(cmd *shell.Command) error {
	if cmd.Name() == "" {
		return nil
	}

	if builtin, ok := AllBuiltins[cmd.Name()]; ok {
		builtin.Main(s, cmd.Args)
		return nil
	}

	status, err := s.Supervisor.Spawn(cmd)
	switch {
	case errors.Is(err, ErrSpawn):
		return err
	case err != nil:
		s.Logger.Print(err)
	case status != nil:
		s.lastStatus = status
	}
	return nil
}
