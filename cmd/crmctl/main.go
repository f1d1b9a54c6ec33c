package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var version = "dev"

type rootOptions struct {
	configPath string
	verbose    bool
}

func main() {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "crmctl",
		Short: "Career Services CRM client",
		Long: `crmctl signs advisors in to the Career Services CRM and keeps the
session alive between runs.

The session is persisted locally (or in Redis), re-validated against the
backend on every start, and dropped after 60 minutes of inactivity unless
you logged in with --stay.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/crmctl/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	rootCmd.AddCommand(
		loginCmd(opts),
		logoutCmd(opts),
		statusCmd(opts),
		whoamiCmd(opts),
		apiCmd(opts),
		serveCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		errorMsg("%s", err)
		os.Exit(1)
	}
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
