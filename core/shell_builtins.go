package core

import (
	"fmt"
	"os"
	"sort"
)

// NoStatusMessage is reported by status before any foreground command ran.
const NoStatusMessage = "No foreground command has been run yet, exit status 0"

// AllBuiltins holds a list of all registered shell builtins
var AllBuiltins = make(map[string]ShellBuiltin)

type ShellBuiltin interface {
	Main(s *Shell, args []string) int
}

type ShellBuiltinFunc func(s *Shell, args []string) int

func (f ShellBuiltinFunc) Main(s *Shell, args []string) int {
	return f(s, args)
}

var _ ShellBuiltin = (ShellBuiltinFunc)(nil)

// BuiltinNames returns the sorted names of all builtins.
func BuiltinNames() []string {
	var out []string
	for name := range AllBuiltins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Cd is the cd shell builtin
func Cd(s *Shell, args []string) int {
	switch len(args) {
	case 1:
		args = []string{args[0], os.Getenv(EnvHome)}
		fallthrough
	case 2:
		if err := os.Chdir(args[1]); err != nil {
			diag(s.stderr, "%s: %v", args[0], err)
			return 1
		}
		if wd, err := os.Getwd(); err == nil {
			os.Setenv(EnvPWD, wd)
		}
	default:
		diag(s.stderr, "%s: too many arguments", args[0])
		return 1
	}
	return 0
}

// Status reports how the last foreground command finished.
func Status(s *Shell, args []string) int {
	if s.lastStatus == nil {
		fmt.Fprintln(s.stdout, NoStatusMessage)
		return 0
	}

	fmt.Fprintln(s.stdout, s.lastStatus)
	return 0
}

// Exit terminates background jobs and quits the shell
func Exit(s *Shell, args []string) int {
	s.Supervisor.TerminateAll()
	s.Quit = true
	return 0
}

func init() {
	AllBuiltins["cd"] = ShellBuiltinFunc(Cd)
	AllBuiltins["status"] = ShellBuiltinFunc(Status)
	AllBuiltins["exit"] = ShellBuiltinFunc(Exit)
}
