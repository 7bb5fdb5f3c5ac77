package bench

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nivenly/gostm/stm"
	"golang.org/x/sync/errgroup"
)

// Worker is one concurrent participant in a Scenario: a function run
// against its own Transaction retry loop, against the shared Ledger. It returns the number of aborted
// attempts it absorbed before its work committed.
type Worker func(ctx context.Context, mgr *stm.TransactionManager, l *Ledger) (aborts int, err error)

// Scenario is a named, reproducible goroutine workload against a fresh
// Ledger.
type Scenario struct {
	Name    string
	Ledger  func() *Ledger
	Workers []Worker
}

// Report is the result of running a Scenario once.
type Report struct {
	RunID   uuid.UUID
	Aborts  int
	Elapsed time.Duration
}

// transfer runs the canonical retry loop for a single
// store(a, load(a)-d); store(b, load(b)+d) transfer, returning the
// number of aborted attempts before the transfer committed.
func transfer(mgr *stm.TransactionManager, from, to *float64, amount float64) int {
	aborts := 0
	for {
		tx := mgr.Begin()
		err := func() error {
			fromVal, err := stm.Load(tx, from)
			if err != nil {
				return err
			}
			toVal, err := stm.Load(tx, to)
			if err != nil {
				return err
			}
			if err := stm.Store(tx, from, fromVal-amount); err != nil {
				return err
			}
			return stm.Store(tx, to, toVal+amount)
		}()
		if err != nil {
			aborts++
			continue
		}
		if err := tx.End(); err != nil {
			aborts++
			continue
		}
		return aborts
	}
}

// storeAll runs the canonical retry loop for a sequence of unconditional
// stores against a single transaction.
func storeAll(mgr *stm.TransactionManager, addrs []*float64, values []float64) int {
	aborts := 0
	for {
		tx := mgr.Begin()
		err := func() error {
			for i, addr := range addrs {
				if err := stm.Store(tx, addr, values[i]); err != nil {
					return err
				}
			}
			return nil
		}()
		if err != nil {
			aborts++
			continue
		}
		if err := tx.End(); err != nil {
			aborts++
			continue
		}
		return aborts
	}
}

// NonConflictingStores runs three address-disjoint transactions; zero
// aborts are expected under any configuration.
func NonConflictingStores() Scenario {
	return Scenario{
		Name:   "non-conflicting-stores",
		Ledger: DefaultLedger,
		Workers: []Worker{
			func(_ context.Context, mgr *stm.TransactionManager, l *Ledger) (int, error) {
				return storeAll(mgr, []*float64{l.Addr("Joe"), l.Addr("Aparna")}, []float64{2345.12, 203.53}), nil
			},
			func(_ context.Context, mgr *stm.TransactionManager, l *Ledger) (int, error) {
				return storeAll(mgr, []*float64{l.Addr("Nana"), l.Addr("Mike")}, []float64{435.23, 104.21}), nil
			},
			func(_ context.Context, mgr *stm.TransactionManager, l *Ledger) (int, error) {
				return storeAll(mgr, []*float64{l.Addr("Sam"), l.Addr("Popo")}, []float64{123.43, 2394.56}), nil
			},
		},
	}
}

// FullyConflictingWriteOnly runs three transactions, each storing the
// same six addresses with a different value.
func FullyConflictingWriteOnly() Scenario {
	addrsOf := func(l *Ledger) []*float64 {
		return []*float64{l.Addr("Joe"), l.Addr("Aparna"), l.Addr("Nana"), l.Addr("Mike"), l.Addr("Sam"), l.Addr("Popo")}
	}
	mk := func(value float64) Worker {
		return func(_ context.Context, mgr *stm.TransactionManager, l *Ledger) (int, error) {
			addrs := addrsOf(l)
			values := make([]float64, len(addrs))
			for i := range values {
				values[i] = value
			}
			return storeAll(mgr, addrs, values), nil
		}
	}
	return Scenario{
		Name:    "fully-conflicting-write-only",
		Ledger:  DefaultLedger,
		Workers: []Worker{mk(10), mk(20), mk(30)},
	}
}

// ConservationUnderRWConflict runs three transactions, each performing
// a fixed transfer between Joe and Mike.
func ConservationUnderRWConflict() Scenario {
	amounts := []float64{20.05, 16.73, 5.42}
	mk := func(amount float64) Worker {
		return func(_ context.Context, mgr *stm.TransactionManager, l *Ledger) (int, error) {
			return transfer(mgr, l.Addr("Joe"), l.Addr("Mike"), amount), nil
		}
	}
	workers := make([]Worker, len(amounts))
	for i, a := range amounts {
		workers[i] = mk(a)
	}
	return Scenario{Name: "conservation-under-rw-conflict", Ledger: DefaultLedger, Workers: workers}
}

// Run executes every Worker in a Scenario concurrently against mgr,
// using an errgroup.Group for fan-out, and returns a Report carrying a
// correlation UUID for log lines.
func Run(ctx context.Context, mgr *stm.TransactionManager, scenario Scenario) (Report, error) {
	l := scenario.Ledger()
	runID := uuid.New()

	var totalAborts atomic.Int64
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range scenario.Workers {
		w := w
		g.Go(func() error {
			aborts, err := w(gctx, mgr, l)
			totalAborts.Add(int64(aborts))
			return err
		})
	}
	err := g.Wait()

	return Report{
		RunID:   runID,
		Aborts:  int(totalAborts.Load()),
		Elapsed: time.Since(start),
	}, err
}
