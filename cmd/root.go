// Package cmd wires the command line interface: an interactive chat
// REPL (the default command), the HTTP server, and handbook indexing.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "maisa",
	Short: "Maísa - course tutoring agent for PHP and HTML5",
	Long: `Maísa is a conversational tutoring agent for an introductory
PHP and HTML5 course. It answers from the indexed course handbook when
a question needs it, and directly otherwise.

Running maisa without a subcommand starts an interactive chat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
