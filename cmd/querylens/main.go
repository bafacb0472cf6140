// Command querylens collects query telemetry from a Dremio engine and
// loads it into PostgreSQL.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// set via -ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFile string
	envFile string
)

func main() {
	root := &cobra.Command{
		Use:   "querylens",
		Short: "Query telemetry collector for Dremio engines",
		Long: `querylens pulls query history, execution profiles, reflection
metadata, and dataset metadata from a Dremio engine (software or cloud)
and loads them idempotently into PostgreSQL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("loading env file %s: %w", envFile, err)
				}
			} else {
				// Best effort; a missing .env is fine.
				_ = godotenv.Load()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to env file (default .env)")

	root.AddCommand(
		newVersionCmd(),
		newCheckCmd(),
		newMigrateCmd(),
		newCollectCmd(),
		newReportCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("querylens %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
