// Command gostm-bench drives the stm package's bench scenarios from the
// shell: a thin runner over the transactional core, not part of it.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	logJSON  bool
	logger   zerolog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gostm-bench",
	Short: "Run transactional-memory benchmark scenarios",
	Long: `gostm-bench drives bank-ledger scenarios (non-conflicting
stores, fully-conflicting writes, conservation under read/write
conflict) against a configurable versioning/conflict-detection pair,
reporting abort counts and elapsed time.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var writer zerolog.ConsoleWriter
	if !logJSON {
		writer = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	if logJSON {
		logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(writer).Level(level).With().Timestamp().Logger()
	}
}
