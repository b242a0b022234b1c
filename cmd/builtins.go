package cmd

import (
	"fmt"

	"github.com/josephlewis42/smallsh/core"
	"github.com/spf13/cobra"
)

// builtinsCmd lists the commands the shell runs in its own process.
var builtinsCmd = &cobra.Command{
	Use:   "builtins",
	Short: "Show the builtin commands of the shell.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range core.BuiltinNames() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(builtinsCmd)
}
