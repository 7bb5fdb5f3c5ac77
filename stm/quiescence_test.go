package stm_test

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/nivenly/gostm/stm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConservationLaw_ConcurrentRandomTransfers checks the conservation
// law: any number of concurrent `store(a, load(a)-d);
// store(b, load(b)+d)` transactions leave the total balance unchanged
// once every caller retry loop completes.
func TestConservationLaw_ConcurrentRandomTransfers(t *testing.T) {
	for _, cfg := range legalConfigs {
		t.Run(cfg.name, func(t *testing.T) {
			mgr, err := stm.NewTransactionManager(cfg.lazy, cfg.pessimistic)
			require.NoError(t, err)

			accounts := [6]float64{666.42, 52.37, 100.32, 33.21, 20.14, 500.68}
			var initial float64
			for _, v := range accounts {
				initial += v
			}

			const workers = 12
			const transfersPerWorker = 25
			var wg sync.WaitGroup
			wg.Add(workers)
			for w := 0; w < workers; w++ {
				seed := int64(w + 1)
				go func(seed int64) {
					defer wg.Done()
					rnd := rand.New(rand.NewSource(seed))
					for i := 0; i < transfersPerWorker; i++ {
						from := rnd.Intn(len(accounts))
						to := rnd.Intn(len(accounts))
						if from == to {
							continue
						}
						amount := rnd.Float64() * 10

						retry(mgr, func(tx *stm.Transaction) error {
							fromVal, err := stm.Load(tx, &accounts[from])
							if err != nil {
								return err
							}
							toVal, err := stm.Load(tx, &accounts[to])
							if err != nil {
								return err
							}
							if err := stm.Store(tx, &accounts[from], fromVal-amount); err != nil {
								return err
							}
							return stm.Store(tx, &accounts[to], toVal+amount)
						})
					}
				}(seed)
			}
			wg.Wait()

			var final float64
			for _, v := range accounts {
				final += v
			}
			assert.InDelta(t, initial, final, 0.01)
		})
	}
}

// TestNoLeaksAtQuiescence checks that once every transaction has
// committed or aborted, the conflict detector's address sets are
// empty. It is exercised indirectly through the fact that a fresh
// transaction touching a previously-contended address never observes a
// stale conflict from committed/aborted peers.
func TestNoLeaksAtQuiescence(t *testing.T) {
	for _, cfg := range legalConfigs {
		t.Run(cfg.name, func(t *testing.T) {
			mgr, err := stm.NewTransactionManager(cfg.lazy, cfg.pessimistic)
			require.NoError(t, err)

			var x int
			for i := 0; i < 200; i++ {
				retry(mgr, func(tx *stm.Transaction) error {
					return stm.Store(tx, &x, i)
				})
			}

			// If address-set entries leaked, a fresh pessimistic store would
			// see a phantom conflicting owner and abort spuriously; under
			// optimistic detection resolveAtCommit would kill a phantom
			// peer. Neither should ever happen once every prior transaction
			// has reached a terminal state.
			tx := mgr.Begin()
			require.NoError(t, stm.Store(tx, &x, 999))
			require.NoError(t, tx.End())
			assert.Equal(t, 999, x)
		})
	}
}

// TestAbortDiscardsWritesWithoutLeakingBuffers exercises both versioning
// engines' abort path across repeated abort cycles, matching spec.md
// §4.1's "no memory leak on every path, no double-free" requirement —
// in Go this is "no panic, no corrupted buffer reuse across cycles".
func TestAbortDiscardsWritesWithoutLeakingBuffers(t *testing.T) {
	for _, cfg := range legalConfigs {
		t.Run(cfg.name, func(t *testing.T) {
			mgr, err := stm.NewTransactionManager(cfg.lazy, cfg.pessimistic)
			require.NoError(t, err)

			x := 7
			for i := 0; i < 50; i++ {
				tx := mgr.Begin()
				require.NoError(t, stm.Store(tx, &x, i*2))
				tx.Abort()
			}
			assert.Equal(t, 7, x, "every aborted transaction must leave memory untouched")
		})
	}
}
