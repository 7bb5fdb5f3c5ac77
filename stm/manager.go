package stm

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// TransactionManager owns the conflict-detector state and the id counter
// for a single region of transactional memory. One manager is shared by
// every Transaction it begins.
type TransactionManager struct {
	nextID atomic.Uint64

	useLazyVersioning bool
	detector          conflictDetector

	logger zerolog.Logger
}

// NewTransactionManager constructs a manager for one of the three legal
// configurations: eager+pessimistic, lazy+pessimistic, or
// lazy+optimistic. eager+optimistic is rejected with
// ErrInvalidConfiguration, since an in-place undo log offers no way to let
// a committer "win" after conflicting peers have already observed its
// in-progress writes.
func NewTransactionManager(useLazyVersioning, usePessimisticConflictDetection bool, opts ...Option) (*TransactionManager, error) {
	if !useLazyVersioning && !usePessimisticConflictDetection {
		return nil, ErrInvalidConfiguration
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &TransactionManager{
		useLazyVersioning: useLazyVersioning,
		logger:            componentLogger(cfg.logger, "manager"),
	}

	if usePessimisticConflictDetection {
		m.detector = newPessimisticDetector(componentLogger(cfg.logger, "conflict-pessimistic"))
	} else {
		m.detector = newOptimisticDetector(componentLogger(cfg.logger, "conflict-optimistic"))
	}

	return m, nil
}

// Begin starts a new transaction against this manager. Each transaction
// gets a fresh versioning engine instance and a strictly increasing id
// that never repeats, so "older" (lower id) is always well defined. The
// greedy arbiter does not consult the id; it decides by running/stalled
// status only.
func (m *TransactionManager) Begin() *Transaction {
	id := m.nextID.Add(1)

	var version versionManager
	versionLogger := componentLogger(m.logger, "version")
	if m.useLazyVersioning {
		version = newLazyVersionManager(versionLogger)
	} else {
		version = newEagerVersionManager(versionLogger)
	}

	t := newTransaction(id, m, version, componentLogger(m.logger, "transaction"))
	m.logger.Debug().Uint64("txn_id", id).Bool("lazy", m.useLazyVersioning).Msg("transaction started")
	return t
}

// store dispatches a write to the conflict detector.
func (m *TransactionManager) store(t *Transaction, a Addr) error {
	return m.detector.store(t, a)
}

// load dispatches a read to the conflict detector.
func (m *TransactionManager) load(t *Transaction, a Addr) error {
	return m.detector.load(t, a)
}

// resolveConflictsAtCommit runs the commit-time conflict resolution pass;
// a no-op under pessimistic detection.
func (m *TransactionManager) resolveConflictsAtCommit(t *Transaction) error {
	return m.detector.resolveAtCommit(t)
}

// cleanup removes t from every address set it belongs to and wakes any
// stalled peers waiting on those addresses.
func (m *TransactionManager) cleanup(t *Transaction) {
	m.detector.cleanup(t)
}
