package stm

import (
	"sync"

	"github.com/rs/zerolog"
)

// pessimisticDetector checks for conflicts eagerly: a store that finds
// any other transaction already reading or writing the same address
// aborts immediately ("writer loses"), while a load that finds a
// conflicting writer stalls and waits on the greedy arbiter instead of
// aborting outright. Lock order, when both writersMu and readersMu are
// held, is always writersMu first — every path below respects this.
type pessimisticDetector struct {
	writersMu sync.RWMutex
	writers   addrSet

	readersMu sync.RWMutex
	readers   addrSet

	// stallMu/stallCond realize a process-wide condition variable,
	// signaled whenever either address set may have shrunk (commit,
	// abort, or transition out of stalled). Kept separate from
	// writersMu/readersMu since a stdlib sync.Cond needs its own Locker
	// and the map locks must be released while a reader actually blocks.
	stallMu   sync.Mutex
	stallCond *sync.Cond

	logger zerolog.Logger
}

func newPessimisticDetector(logger zerolog.Logger) *pessimisticDetector {
	d := &pessimisticDetector{
		writers: make(addrSet),
		readers: make(addrSet),
		logger:  logger,
	}
	d.stallCond = sync.NewCond(&d.stallMu)
	return d
}

func (d *pessimisticDetector) broadcastStallChange() {
	d.stallMu.Lock()
	d.stallCond.Broadcast()
	d.stallMu.Unlock()
}

// store acquires writersMu exclusively, and if any other transaction is
// in writers[A] or readers[A], the writer loses and t is aborted.
func (d *pessimisticDetector) store(t *Transaction, a Addr) error {
	d.writersMu.Lock()
	d.readersMu.Lock()

	if d.writers.hasConflict(a, t) || d.readers.hasConflict(a, t) {
		d.abortWithoutLocks(t)
		d.readersMu.Unlock()
		d.writersMu.Unlock()
		d.broadcastStallChange()
		return ErrAborted
	}

	d.writers.add(a, t)
	d.readersMu.Unlock()
	d.writersMu.Unlock()
	return nil
}

// load repeatedly checks writers[A] under writersMu, applying the
// greedy arbiter to any conflicting writer found, until either no
// conflict remains or t is aborted; then registers t in readers[A].
func (d *pessimisticDetector) load(t *Transaction, a Addr) error {
	d.writersMu.Lock()
	for {
		conflicting, ok := d.writers.conflictingOwner(a, t)
		if !ok {
			break
		}

		switch arbitrate(conflicting) {
		case decisionAbortConflicting:
			if d.killPeerLocked(conflicting) {
				d.broadcastStallChange()
				continue
			}
			// The peer raced us out of STALLED before our CAS landed;
			// we lose the race and abort ourselves instead.
			d.readersMu.Lock()
			d.abortWithoutLocks(t)
			d.readersMu.Unlock()
			d.writersMu.Unlock()
			d.broadcastStallChange()
			return ErrAborted

		case decisionStallSelf:
			if !t.markStalled() {
				d.readersMu.Lock()
				d.abortWithoutLocks(t)
				d.readersMu.Unlock()
				d.writersMu.Unlock()
				d.broadcastStallChange()
				return ErrAborted
			}
			d.writersMu.Unlock()
			d.waitForStallRelease(a, t)
			d.writersMu.Lock()

			if t.isAborted() {
				d.writersMu.Unlock()
				// A peer killed us while we were stalled; wait until its
				// cleanup of our address-set entries has fully landed
				// before we let the caller retry.
				t.waitAbortFinalized()
				return ErrAborted
			}
			if !t.markUnstalled() {
				d.readersMu.Lock()
				d.abortWithoutLocks(t)
				d.readersMu.Unlock()
				d.writersMu.Unlock()
				d.broadcastStallChange()
				return ErrAborted
			}
			// Leaving STALLED is signaled like any other shrink; writersMu
			// is released for the broadcast, as on the other paths.
			d.writersMu.Unlock()
			d.broadcastStallChange()
			d.writersMu.Lock()
			// Loop: re-check writers[A], the conflict may have changed.
		}
	}

	d.writersMu.Unlock()

	d.readersMu.Lock()
	d.readers.add(a, t)
	d.readersMu.Unlock()
	return nil
}

// killPeerLocked marks a stalled conflicting transaction ABORTED and
// removes it from every address set it belongs to. Caller must hold
// writersMu exclusively; killPeerLocked additionally takes readersMu for
// the duration of the cleanup.
func (d *pessimisticDetector) killPeerLocked(peer *Transaction) bool {
	if !peer.markStalledTransactionAborted() {
		return false
	}

	d.readersMu.Lock()
	peer.setAbortedAndUnwind() // idempotent if the peer already unwound
	d.removeFromSetsLocked(peer)
	d.readersMu.Unlock()

	peer.signalAbortFinalized()
	return true
}

// waitForStallRelease blocks the calling goroutine until writers[a] no
// longer holds a conflicting transaction or t has been aborted by a
// peer. writersMu must NOT be held by the caller while this runs.
func (d *pessimisticDetector) waitForStallRelease(a Addr, t *Transaction) {
	d.stallMu.Lock()
	for d.stillConflicting(a, t) {
		d.stallCond.Wait()
	}
	d.stallMu.Unlock()
}

func (d *pessimisticDetector) stillConflicting(a Addr, t *Transaction) bool {
	if t.isAborted() {
		return false
	}
	d.writersMu.RLock()
	defer d.writersMu.RUnlock()
	return d.writers.hasConflict(a, t)
}

// resolveAtCommit is a no-op under pessimistic detection: conflicts were
// already resolved on every access.
func (d *pessimisticDetector) resolveAtCommit(t *Transaction) error {
	return nil
}

func (d *pessimisticDetector) cleanup(t *Transaction) {
	d.writersMu.Lock()
	d.readersMu.Lock()
	d.removeFromSetsLocked(t)
	d.readersMu.Unlock()
	d.writersMu.Unlock()
	d.broadcastStallChange()
}

// abortWithoutLocks aborts t and removes it from both address sets,
// assuming the caller already holds writersMu and readersMu exclusively.
func (d *pessimisticDetector) abortWithoutLocks(t *Transaction) {
	t.setAbortedAndUnwind()
	d.removeFromSetsLocked(t)
}

// removeFromSetsLocked assumes writersMu and readersMu are both held
// exclusively by the caller.
func (d *pessimisticDetector) removeFromSetsLocked(t *Transaction) {
	for _, a := range t.writeAddrs() {
		d.writers.remove(a, t)
	}
	for _, a := range t.readAddrs() {
		d.readers.remove(a, t)
	}
}
