// Package cmd implements the denbot command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "denbot",
	Short: "denbot — personal assistant runtime",
	Long:  "denbot runs a group-aware personal assistant: a router agent, specialist agents, scheduled tasks, and long-term memory.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
}
