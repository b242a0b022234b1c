package core

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	getopt "github.com/pborman/getopt/v2"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// ChildCommandName is the hidden subcommand a child runs before it becomes
// the requested program.
const ChildCommandName = "exec-child"

// ScriptInterpreter runs executable files the kernel can't load itself.
const ScriptInterpreter = "/bin/sh"

// ErrNotFound is the error resulting if a path search failed to find an executable file.
var ErrNotFound = exec.ErrNotFound

func findExecutable(fsys afero.Fs, file string) error {
	d, err := fsys.Stat(file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case err != nil:
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0111 != 0 {
		return nil
	}
	return fs.ErrPermission
}

// LookPath searches for an executable named file in the directories named by
// the PATH environment variable. If file contains a slash, it is tried directly
// and the PATH is not consulted. The result may be an absolute path or a path
// relative to the current directory.
func LookPath(fsys afero.Fs, file string) (string, error) {
	if strings.Contains(file, "/") {
		err := findExecutable(fsys, file)
		if err == nil {
			return file, nil
		}
		return "", err
	}
	path := os.Getenv("PATH")
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		path := filepath.Join(dir, file)
		if err := findExecutable(fsys, path); err == nil {
			return path, nil
		}
	}
	return "", ErrNotFound
}

// ChildSpec describes everything a child does between being created and
// becoming the requested program.
type ChildSpec struct {
	// Args holds the program name followed by its arguments.
	Args []string
	// Stdin and Stdout are files to bind over the standard streams, empty to
	// inherit the shell's.
	Stdin  string
	Stdout string
	// Foreground children can be interrupted with SIGINT.
	Foreground bool
	// FileMode is used when Stdout has to be created.
	FileMode os.FileMode
}

// argv encodes c as arguments to the child subcommand.
func (c *ChildSpec) argv() []string {
	out := []string{ChildCommandName}
	if c.Stdin != "" {
		out = append(out, "--stdin", c.Stdin)
	}
	if c.Stdout != "" {
		out = append(out, "--stdout", c.Stdout)
	}
	if c.Foreground {
		out = append(out, "--foreground")
	}
	out = append(out, "--mode", strconv.FormatUint(uint64(c.FileMode.Perm()), 8))
	out = append(out, "--")
	return append(out, c.Args...)
}

func parseChildArgs(args []string) (*ChildSpec, error) {
	opts := getopt.New()
	stdin := opts.StringLong("stdin", 'i', "", "file to bind to standard input", "FILE")
	stdout := opts.StringLong("stdout", 'o', "", "file to bind to standard output", "FILE")
	foreground := opts.BoolLong("foreground", 'f', "restore the default SIGINT action")
	mode := opts.StringLong("mode", 'm', "644", "octal permissions for created output files", "MODE")

	if err := opts.Getopt(args, nil); err != nil {
		return nil, err
	}

	perm, err := strconv.ParseUint(*mode, 8, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid mode %q: %w", *mode, err)
	}

	if opts.NArgs() == 0 {
		return nil, errors.New("no program given")
	}

	return &ChildSpec{
		Args:       opts.Args(),
		Stdin:      *stdin,
		Stdout:     *stdout,
		Foreground: *foreground,
		FileMode:   os.FileMode(perm).Perm(),
	}, nil
}

// ExecChild is the entry point of the child subcommand, args[0] is the
// subcommand name. On success it never returns because the process image is
// replaced, otherwise it returns the status the child should exit with.
func ExecChild(args []string, stderr io.Writer) int {
	spec, err := parseChildArgs(args)
	if err != nil {
		diag(stderr, "%s: %v", ChildCommandName, err)
		return 2
	}

	return spec.exec(afero.NewOsFs(), stderr)
}

func (c *ChildSpec) exec(fsys afero.Fs, stderr io.Writer) int {
	// Input is bound first so a bad input file never creates the output file.
	if c.Stdin != "" {
		if err := redirect(fsys, c.Stdin, Input, c.FileMode); err != nil {
			diag(stderr, "%v", err)
			return 1
		}
	}
	if c.Stdout != "" {
		if err := redirect(fsys, c.Stdout, Output, c.FileMode); err != nil {
			diag(stderr, "%v", err)
			return 1
		}
	}

	configureChildSignals(c.Foreground)

	name := c.Args[0]
	execPath, err := LookPath(fsys, name)
	switch {
	case errors.Is(err, ErrNotFound):
		diag(stderr, "%s: command not found", name)
		return 1
	case err != nil:
		diag(stderr, "%s: %v", name, err)
		return 1
	}

	err = unix.Exec(execPath, c.Args, os.Environ())
	if errors.Is(err, unix.ENOEXEC) {
		// No interpreter line, run it as a shell script like execvp does.
		argv := append([]string{ScriptInterpreter, execPath}, c.Args[1:]...)
		err = unix.Exec(ScriptInterpreter, argv, os.Environ())
	}
	diag(stderr, "%s: %v", name, err)
	return 1
}
