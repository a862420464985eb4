// Package commands implements the chunkcachectl CLI.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "chunkcachectl",
	Short: "Exercise and inspect a block chunk cache",
	Long: `chunkcachectl drives a standalone chunk cache against a reference
backing store, for demos and manual verification of cache behavior outside
of the test suite.

Use "chunkcachectl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/chunkcache/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(demoCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// Exit prints an error to stderr and exits with code 1.
func Exit(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
	os.Exit(1)
}
