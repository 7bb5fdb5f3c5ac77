package stm

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog"
)

// txState is the transaction lifecycle state machine: valid
// transitions are RUNNING→COMMITTING, RUNNING→ABORTED, RUNNING→STALLED,
// STALLED→RUNNING, STALLED→ABORTED. All transitions are CAS on a single
// atomic value — no per-transaction lock guards state itself.
type txState uint32

const (
	stateRunning txState = iota
	stateCommitting
	stateAborted
	stateStalled
)

// Transaction is a group of loads/stores executed atomically against
// shared memory. A Transaction belongs to the goroutine that
// called TransactionManager.Begin and is not meant to be driven
// concurrently from multiple goroutines, though its state and address
// sets are synchronized because peers (the conflict detector, acting
// for another transaction) may reach into a stalled or committing
// transaction to abort or clean it up.
type Transaction struct {
	id    uint64
	mgr   *TransactionManager
	state atomic.Uint32

	version versionManager

	setsMu   sync.Mutex
	writeSet map[Addr]struct{}
	readSet  map[Addr]struct{}

	// abortMu/abortCond back mark_stalled_transaction_aborted's brief
	// hand-off to whichever goroutine is finalizing this transaction's
	// removal from the global address maps.
	abortMu        sync.Mutex
	abortCond      *sync.Cond
	abortFinalized bool

	logger zerolog.Logger
}

func newTransaction(id uint64, mgr *TransactionManager, version versionManager, logger zerolog.Logger) *Transaction {
	t := &Transaction{
		id:       id,
		mgr:      mgr,
		version:  version,
		writeSet: make(map[Addr]struct{}),
		readSet:  make(map[Addr]struct{}),
		logger:   logger,
	}
	t.abortCond = sync.NewCond(&t.abortMu)
	t.state.Store(uint32(stateRunning))
	return t
}

// ID returns the transaction's id: a monotonically increasing, process-
// lifetime-unique integer that also defines priority (lower id = older =
// higher priority). The greedy arbiter does not use it: arbitrate decides
// by running/stalled status only.
func (t *Transaction) ID() uint64 { return t.id }

func (t *Transaction) loadState() txState { return txState(t.state.Load()) }

func (t *Transaction) isAborted() bool { return t.loadState() == stateAborted }
func (t *Transaction) isStalled() bool { return t.loadState() == stateStalled }

// markAborted is the CAS RUNNING→ABORTED used by peers to kill this
// transaction remotely. It returns true if the CAS succeeded OR the
// state was already ABORTED.
func (t *Transaction) markAborted() bool {
	if t.state.CompareAndSwap(uint32(stateRunning), uint32(stateAborted)) {
		return true
	}
	return txState(t.state.Load()) == stateAborted
}

// markStalled is the CAS RUNNING→STALLED used when a pessimistic load
// finds a running conflicting writer and must wait it out.
func (t *Transaction) markStalled() bool {
	return t.state.CompareAndSwap(uint32(stateRunning), uint32(stateStalled))
}

// markUnstalled is the CAS STALLED→RUNNING used after a stalled reader
// wakes and the conflict has cleared.
func (t *Transaction) markUnstalled() bool {
	return t.state.CompareAndSwap(uint32(stateStalled), uint32(stateRunning))
}

// markStalledTransactionAborted is the greedy arbiter's "abort the
// stalled victim" move: CAS STALLED→ABORTED only. It never
// blocks itself — the killer (who holds the manager's exclusive
// address-set locks) is expected to follow a successful call with the
// victim's removal from every address set, then call
// signalAbortFinalized. waitAbortFinalized lets any goroutine that needs
// to observe the victim fully torn down — including, potentially, the
// victim's own goroutine resuming from its stall wait — block until
// that finalization has happened, so nobody ever sees half-removed
// address-set entries.
func (t *Transaction) markStalledTransactionAborted() bool {
	return t.state.CompareAndSwap(uint32(stateStalled), uint32(stateAborted))
}

// signalAbortFinalized marks that this transaction has been fully
// removed from the global address sets after being killed, releasing
// any goroutine blocked in waitAbortFinalized.
func (t *Transaction) signalAbortFinalized() {
	t.abortMu.Lock()
	t.abortFinalized = true
	t.abortCond.Broadcast()
	t.abortMu.Unlock()
}

// waitAbortFinalized blocks until signalAbortFinalized has been called
// for this transaction.
func (t *Transaction) waitAbortFinalized() {
	t.abortMu.Lock()
	for !t.abortFinalized {
		t.abortCond.Wait()
	}
	t.abortMu.Unlock()
}

func (t *Transaction) addWrite(a Addr) {
	t.setsMu.Lock()
	t.writeSet[a] = struct{}{}
	t.setsMu.Unlock()
}

func (t *Transaction) addRead(a Addr) {
	t.setsMu.Lock()
	t.readSet[a] = struct{}{}
	t.setsMu.Unlock()
}

func (t *Transaction) writeAddrs() []Addr {
	t.setsMu.Lock()
	defer t.setsMu.Unlock()
	addrs := make([]Addr, 0, len(t.writeSet))
	for a := range t.writeSet {
		addrs = append(addrs, a)
	}
	return addrs
}

func (t *Transaction) readAddrs() []Addr {
	t.setsMu.Lock()
	defer t.setsMu.Unlock()
	addrs := make([]Addr, 0, len(t.readSet))
	for a := range t.readSet {
		addrs = append(addrs, a)
	}
	return addrs
}

// setAbortedAndUnwind sets state to ABORTED unconditionally and unwinds
// the versioning engine's speculative state. Shared by the public Abort
// and by conflict-detector paths that abort this transaction from
// within an already-held exclusive lock.
func (t *Transaction) setAbortedAndUnwind() {
	t.state.Store(uint32(stateAborted))
	t.version.abort()
}

// Abort aborts the transaction: state becomes ABORTED, the
// versioning engine discards its speculative state, and the manager
// removes the transaction from every address set and wakes any stalled
// peers.
func (t *Transaction) Abort() {
	t.setAbortedAndUnwind()
	t.mgr.cleanup(t)
}

// End attempts to commit the transaction. It returns
// ErrAborted if the transaction had already been aborted by a peer, or
// ErrAlreadyCommitting if End was already called once successfully.
func (t *Transaction) End() error {
	if !t.state.CompareAndSwap(uint32(stateRunning), uint32(stateCommitting)) {
		switch t.loadState() {
		case stateAborted:
			// Route through the manager's cleanup path: the
			// transaction is already gone, but any stragglers in the
			// global maps (or a version manager that never got to
			// abort()) are swept here too.
			t.version.abort()
			t.mgr.cleanup(t)
			return ErrAborted
		case stateCommitting:
			t.logger.Warn().Uint64("txn_id", t.id).Msg("End called on an already-committing transaction")
			return ErrAlreadyCommitting
		default:
			return ErrAlreadyCommitting
		}
	}

	if err := t.mgr.resolveConflictsAtCommit(t); err != nil {
		return err
	}

	t.version.end()
	t.mgr.cleanup(t)
	return nil
}

// Store writes value at addr within the transaction. Go
// cannot express a generic method, so Store is a free function
// parameterized over T, taking the transaction as its first argument —
// the same shape used by the STM reference implementations in the
// example pack (e.g. the tiancaiamao-stm and Orizon stm packages).
func Store[T any](t *Transaction, addr *T, value T) error {
	if t.isAborted() {
		return ErrAborted
	}

	a := AddrOf(addr)
	if err := t.mgr.store(t, a); err != nil {
		return err
	}
	t.addWrite(a)
	t.version.store(a, unsafe.Pointer(addr), unsafe.Pointer(&value), unsafe.Sizeof(value))
	return nil
}

// Load reads the value at addr within the transaction. The
// zero value of T is always paired with a non-nil error, so a caller can
// never observe a half-read value after Abort.
func Load[T any](t *Transaction, addr *T) (T, error) {
	var zero T
	if t.isAborted() {
		return zero, ErrAborted
	}

	a := AddrOf(addr)
	if err := t.mgr.load(t, a); err != nil {
		return zero, err
	}
	t.addRead(a)

	var result T
	if t.version.getValue(a, unsafe.Pointer(&result), unsafe.Sizeof(result)) {
		return result, nil
	}
	return *addr, nil
}
