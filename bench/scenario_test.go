package bench_test

import (
	"context"
	"testing"

	"github.com/nivenly/gostm/bench"
	"github.com/nivenly/gostm/stm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var legalConfigs = []struct {
	name        string
	lazy        bool
	pessimistic bool
}{
	{name: "eager+pessimistic", lazy: false, pessimistic: true},
	{name: "lazy+pessimistic", lazy: true, pessimistic: true},
	{name: "lazy+optimistic", lazy: true, pessimistic: false},
}

func TestNonConflictingStores_ZeroAbortsUnderPessimistic(t *testing.T) {
	for _, cfg := range legalConfigs {
		if !cfg.pessimistic {
			continue
		}
		t.Run(cfg.name, func(t *testing.T) {
			mgr, err := stm.NewTransactionManager(cfg.lazy, cfg.pessimistic)
			require.NoError(t, err)

			report, err := bench.Run(context.Background(), mgr, bench.NonConflictingStores())
			require.NoError(t, err)
			assert.Equal(t, 0, report.Aborts)
			assert.NotEqual(t, report.RunID.String(), "")
		})
	}
}

func TestFullyConflictingWriteOnly_AllAccountsAgree(t *testing.T) {
	for _, cfg := range legalConfigs {
		t.Run(cfg.name, func(t *testing.T) {
			mgr, err := stm.NewTransactionManager(cfg.lazy, cfg.pessimistic)
			require.NoError(t, err)

			scenario := bench.FullyConflictingWriteOnly()
			l := bench.DefaultLedger()
			scenario.Ledger = func() *bench.Ledger { return l }

			_, err = bench.Run(context.Background(), mgr, scenario)
			require.NoError(t, err)

			want := l.Addr("Joe")
			for _, name := range []string{"Aparna", "Nana", "Mike", "Sam", "Popo"} {
				assert.Equal(t, *want, *l.Addr(name))
			}
			assert.Contains(t, []float64{10, 20, 30}, *want)
		})
	}
}

func TestConservationUnderRWConflict_PreservesTotal(t *testing.T) {
	for _, cfg := range legalConfigs {
		t.Run(cfg.name, func(t *testing.T) {
			mgr, err := stm.NewTransactionManager(cfg.lazy, cfg.pessimistic)
			require.NoError(t, err)

			scenario := bench.ConservationUnderRWConflict()
			l := bench.DefaultLedger()
			initial := l.Sum()
			scenario.Ledger = func() *bench.Ledger { return l }

			_, err = bench.Run(context.Background(), mgr, scenario)
			require.NoError(t, err)
			assert.InDelta(t, initial, l.Sum(), 0.01)
		})
	}
}
