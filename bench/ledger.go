// Package bench is a companion driver for the stm package: a
// benchmark/simulator layer kept out of the transactional core,
// reproducing a bank-transfer workload as a reusable Go API and a CLI
// front-end.
package bench

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Account is one named balance in a Ledger, addressable by stm.Store and
// stm.Load like any other transactional memory location.
type Account struct {
	Name    string  `yaml:"name" msgpack:"name"`
	Balance float64 `yaml:"balance" msgpack:"balance"`
}

// Ledger is the six-account bank used by the bench scenarios, keyed by
// name for scenario authoring and addressed by pointer once loaded.
type Ledger struct {
	Accounts []Account `yaml:"accounts" msgpack:"accounts"`

	byName map[string]*float64
}

// DefaultLedger reproduces the starting balances used by the
// non-conflicting-stores scenario.
func DefaultLedger() *Ledger {
	l := &Ledger{Accounts: []Account{
		{Name: "Joe", Balance: 666.42},
		{Name: "Aparna", Balance: 52.37},
		{Name: "Nana", Balance: 100.32},
		{Name: "Mike", Balance: 33.21},
		{Name: "Sam", Balance: 20.14},
		{Name: "Popo", Balance: 500.68},
	}}
	l.index()
	return l
}

func (l *Ledger) index() {
	l.byName = make(map[string]*float64, len(l.Accounts))
	for i := range l.Accounts {
		l.byName[l.Accounts[i].Name] = &l.Accounts[i].Balance
	}
}

// Addr returns the transactional memory address of a named account,
// panicking if the name is unknown — scenario authors are expected to
// reference accounts that exist in the loaded ledger.
func (l *Ledger) Addr(name string) *float64 {
	addr, ok := l.byName[name]
	if !ok {
		panic(fmt.Sprintf("bench: unknown account %q", name))
	}
	return addr
}

// Sum returns the total of every account balance, the conservation-law
// invariant the conflict scenarios check.
func (l *Ledger) Sum() float64 {
	var total float64
	for _, a := range l.Accounts {
		total += a.Balance
	}
	return total
}

// LoadLedger reads a Ledger from a YAML or msgpack scenario file,
// dispatching on file extension.
func LoadLedger(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bench: read ledger file: %w", err)
	}

	var l Ledger
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("bench: parse YAML ledger: %w", err)
		}
	case ".msgpack", ".mp":
		if err := msgpack.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("bench: parse msgpack ledger: %w", err)
		}
	default:
		return nil, fmt.Errorf("bench: unrecognized ledger file extension %q", ext)
	}

	l.index()
	return &l, nil
}
