// Command integrations runs SOAR integration commands and scripts, either
// once per process (run) or behind an HTTP API (serve).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	instancesFile string
	logLevel      string
)

var rootCmd = &cobra.Command{
	Use:   "integrations",
	Short: "SOAR integration runner",
	Long: `Runs vendor integration commands and automation scripts against the
instances configured in the instances file.

Service settings come from the environment (and a .env file when present);
instance parameters come from the YAML instances file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&instancesFile, "instances", "", "instances file (overrides INSTANCES_FILE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(runCmd, commandsCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
