package main

import (
	"context"
	"fmt"

	"github.com/nivenly/gostm/bench"
	"github.com/nivenly/gostm/stm"
	"github.com/spf13/cobra"
)

var scenarios = map[string]func() bench.Scenario{
	"non-conflicting-stores":      bench.NonConflictingStores,
	"fully-conflicting-write-only": bench.FullyConflictingWriteOnly,
	"conservation-under-rw-conflict": bench.ConservationUnderRWConflict,
}

var runCmd = &cobra.Command{
	Use:   "run [scenario]",
	Short: "Run one benchmark scenario",
	Long: `Run a named scenario against a TransactionManager configured by
--lazy/--pessimistic, printing the run's abort count and elapsed time.

Examples:
  # Run the conservation scenario under lazy+optimistic
  gostm-bench run conservation-under-rw-conflict --lazy --pessimistic=false

  # Run the default pessimistic, eager-versioning configuration
  gostm-bench run non-conflicting-stores

  # Start from a ledger loaded from a YAML or msgpack file instead of
  # the scenario's built-in starting balances
  gostm-bench run non-conflicting-stores --ledger accounts.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runScenario,
}

var (
	flagLazy        bool
	flagPessimistic bool
	flagLedgerFile  string
)

func init() {
	runCmd.Flags().BoolVar(&flagLazy, "lazy", false, "use lazy (write-buffer) versioning instead of eager (write-through + undo log)")
	runCmd.Flags().BoolVar(&flagPessimistic, "pessimistic", true, "use pessimistic conflict detection instead of optimistic")
	runCmd.Flags().StringVar(&flagLedgerFile, "ledger", "", "load starting account balances from a YAML or msgpack ledger file instead of the scenario's default")
}

func runScenario(cmd *cobra.Command, args []string) error {
	name := args[0]
	build, ok := scenarios[name]
	if !ok {
		return fmt.Errorf("unknown scenario %q", name)
	}

	mgr, err := stm.NewTransactionManager(flagLazy, flagPessimistic, stm.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("configure transaction manager: %w", err)
	}

	scenario := build()
	if flagLedgerFile != "" {
		l, err := bench.LoadLedger(flagLedgerFile)
		if err != nil {
			return fmt.Errorf("load ledger %q: %w", flagLedgerFile, err)
		}
		scenario.Ledger = func() *bench.Ledger { return l }
	}

	report, err := bench.Run(context.Background(), mgr, scenario)
	if err != nil {
		return fmt.Errorf("run scenario %q: %w", name, err)
	}

	logger.Info().
		Str("scenario", name).
		Str("run_id", report.RunID.String()).
		Int("aborts", report.Aborts).
		Dur("elapsed", report.Elapsed).
		Msg("scenario completed")

	fmt.Printf("scenario=%s run_id=%s aborts=%d elapsed=%s\n", name, report.RunID, report.Aborts, report.Elapsed)
	return nil
}
