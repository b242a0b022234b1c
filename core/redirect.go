package core

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// Direction is the standard stream a redirection replaces.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

func (d Direction) fd() int {
	if d == Output {
		return unix.Stdout
	}
	return unix.Stdin
}

// RedirectError is returned when a redirection target can't be opened.
type RedirectError struct {
	Name      string
	Direction Direction
	Err       error
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("cannot open %s for %s redirection: %v", e.Name, e.Direction, e.Err)
}

func (e *RedirectError) Unwrap() error {
	return e.Err
}

// openRedirect opens name for reading, or for output by creating or
// truncating it with the given permissions.
func openRedirect(fs afero.Fs, name string, dir Direction, mode os.FileMode) (afero.File, error) {
	var (
		fd  afero.File
		err error
	)
	if dir == Output {
		fd, err = fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	} else {
		fd, err = fs.OpenFile(name, os.O_RDONLY, 0)
	}

	if err != nil {
		return nil, &RedirectError{Name: name, Direction: dir, Err: err}
	}
	return fd, nil
}

// boundFiles holds files that became a standard stream so they aren't closed
// when collected.
var boundFiles []afero.File

type fdFile interface {
	Fd() uintptr
}

// redirect replaces the process's stdin or stdout with name.
func redirect(fs afero.Fs, name string, dir Direction, mode os.FileMode) error {
	file, err := openRedirect(fs, name, dir, mode)
	if err != nil {
		return err
	}

	osFile, ok := file.(fdFile)
	if !ok {
		file.Close()
		return fmt.Errorf("%s: not backed by a file descriptor", name)
	}

	fd := int(osFile.Fd())
	if fd == dir.fd() {
		// Opened straight into the slot it's meant for, so the descriptor only
		// has to survive exec.
		boundFiles = append(boundFiles, file)
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, 0); err != nil {
			return fmt.Errorf("fcntl %s: %w", name, err)
		}
		return nil
	}
	defer file.Close()

	if err := unix.Dup2(fd, dir.fd()); err != nil {
		return fmt.Errorf("dup2 %s: %w", name, err)
	}
	return nil
}
