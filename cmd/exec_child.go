package cmd

import (
	"os"

	"github.com/josephlewis42/smallsh/core"
	"github.com/spf13/cobra"
)

// execChildCmd runs inside every child the shell creates. It binds
// redirections and signal dispositions, then replaces itself with the
// requested program.
var execChildCmd = &cobra.Command{
	Use:                core.ChildCommandName + " [options] -- program [args...]",
	Short:              "Set up a child process and exec the program (internal).",
	Hidden:             true,
	DisableFlagParsing: true,
	Run: func(cmd *cobra.Command, args []string) {
		argv := append([]string{core.ChildCommandName}, args...)
		os.Exit(core.ExecChild(argv, cmd.ErrOrStderr()))
	},
}

func init() {
	rootCmd.AddCommand(execChildCmd)
}
