package cmd

import (
	"fmt"
	"os"

	"github.com/josephlewis42/smallsh/core"
	"github.com/josephlewis42/smallsh/core/config"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "smallsh",
	Short: "A small interactive shell",
	Long: `smallsh runs the builtins cd, status and exit itself and everything else as
a child process. It supports < and > redirection, background jobs with a
trailing &, $$ expansion and a foreground-only mode toggled with Ctrl-Z.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locating smallsh binary: %w", err)
		}

		shell := core.NewShell(config.Default(), self, os.Stdin, os.Stdout, os.Stderr)
		return shell.Run()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
