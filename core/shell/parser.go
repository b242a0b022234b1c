// Package shell turns raw command lines into commands ready for dispatch.
//
// Lines go through three steps, in order:
//
//  1. Every "$$" in the line is replaced with the shell's PID.
//  2. The line is split into whitespace delimited tokens. There is no quoting
//     or escaping.
//  3. A trailing "&" marks the command for the background, then the first "<"
//     and the first ">" are removed along with the filename following each.
package shell

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	PIDMarker        = "$$"
	BackgroundMarker = "&"
	RedirectIn       = "<"
	RedirectOut      = ">"
)

var (
	// ErrMissingRedirectTarget is returned when a redirection symbol isn't
	// followed by a filename.
	ErrMissingRedirectTarget = errors.New("missing filename after redirection")
)

// Command is a single parsed command line. It's never modified after Parse
// returns it.
type Command struct {
	// Args holds the program name followed by its arguments, with the
	// background marker and redirections removed.
	Args []string
	// Stdin is the input redirection target, empty if there is none.
	Stdin string
	// Stdout is the output redirection target, empty if there is none.
	Stdout string
	// Background is set if the line ended with "&".
	Background bool
}

// Name returns the name of the program or builtin to run.
func (c *Command) Name() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

// ExpandPID replaces every occurrence of "$$" in line with pid.
func ExpandPID(line string, pid int) string {
	return strings.ReplaceAll(line, PIDMarker, strconv.Itoa(pid))
}

// Tokenize splits the line on whitespace.
func Tokenize(line string) []string {
	return strings.Fields(line)
}

// ResolveRedirection looks for the first token equal to symbol. If found, the
// token after it is returned as the target and both are left out of the
// returned argument list. The input slice is not modified.
func ResolveRedirection(args []string, symbol string) (target string, rest []string, err error) {
	for i, arg := range args {
		if arg != symbol {
			continue
		}

		if i+1 >= len(args) || isOperator(args[i+1]) {
			return "", nil, fmt.Errorf("%w %q", ErrMissingRedirectTarget, symbol)
		}

		rest = make([]string, 0, len(args)-2)
		rest = append(rest, args[:i]...)
		rest = append(rest, args[i+2:]...)
		return args[i+1], rest, nil
	}

	return "", append([]string(nil), args...), nil
}

// Parse builds a Command from the tokens of a line.
func Parse(tokens []string) (*Command, error) {
	out := &Command{}

	if n := len(tokens); n > 0 && tokens[n-1] == BackgroundMarker {
		out.Background = true
		tokens = tokens[:n-1]
	}

	var err error
	if out.Stdin, tokens, err = ResolveRedirection(tokens, RedirectIn); err != nil {
		return nil, err
	}
	if out.Stdout, tokens, err = ResolveRedirection(tokens, RedirectOut); err != nil {
		return nil, err
	}
	out.Args = tokens

	return out, nil
}

// ParseLine expands, tokenizes and parses a raw line.
func ParseLine(line string, pid int) (*Command, error) {
	return Parse(Tokenize(ExpandPID(line, pid)))
}

func isOperator(tok string) bool {
	switch tok {
	case RedirectIn, RedirectOut:
		return true
	}
	return false
}
