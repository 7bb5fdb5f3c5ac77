package stm

import (
	"sync"

	"github.com/rs/zerolog"
)

// optimisticDetector checks for conflicts lazily: store and load simply
// register membership, with no conflict check during execution;
// conflicts are resolved only at commit, where the committer wins and
// every other transaction recorded against one of its written addresses
// is killed.
type optimisticDetector struct {
	writersMu sync.RWMutex
	writers   addrSet

	readersMu sync.RWMutex
	readers   addrSet

	stallMu   sync.Mutex
	stallCond *sync.Cond

	logger zerolog.Logger
}

func newOptimisticDetector(logger zerolog.Logger) *optimisticDetector {
	d := &optimisticDetector{
		writers: make(addrSet),
		readers: make(addrSet),
		logger:  logger,
	}
	d.stallCond = sync.NewCond(&d.stallMu)
	return d
}

func (d *optimisticDetector) broadcastStallChange() {
	d.stallMu.Lock()
	d.stallCond.Broadcast()
	d.stallMu.Unlock()
}

func (d *optimisticDetector) store(t *Transaction, a Addr) error {
	d.writersMu.Lock()
	d.writers.add(a, t)
	d.writersMu.Unlock()
	return nil
}

func (d *optimisticDetector) load(t *Transaction, a Addr) error {
	d.readersMu.Lock()
	d.readers.add(a, t)
	d.readersMu.Unlock()
	return nil
}

// resolveAtCommit applies a "committer wins, others die" policy:
// for each address t wrote, every other transaction recorded as a
// reader or writer there must be killed. If any such kill fails because
// the peer is already COMMITTING, t itself aborts instead — a
// committing peer cannot be rolled back out from under.
func (d *optimisticDetector) resolveAtCommit(t *Transaction) error {
	d.writersMu.Lock()
	d.readersMu.Lock()

	killed := make(map[*Transaction]struct{})
	for _, a := range t.writeAddrs() {
		for _, bucket := range [2]addrSet{d.writers, d.readers} {
			for other := range bucket[a] {
				if other == t {
					continue
				}
				if _, already := killed[other]; already {
					continue
				}
				if !other.markAborted() {
					// other was neither RUNNING nor already ABORTED: it
					// is COMMITTING. t cannot kill a committer, so t
					// aborts instead. Every peer already killed earlier
					// in this same call is finalized first — each was
					// CAS'd into ABORTED and must not be left stranded
					// in the address sets, since a victim that observes
					// isAborted() short-circuits before ever reaching
					// the manager's cleanup path itself.
					for already := range killed {
						d.removeFromSetsLocked(already)
						already.signalAbortFinalized()
					}
					d.abortWithoutLocks(t)
					d.readersMu.Unlock()
					d.writersMu.Unlock()
					d.broadcastStallChange()
					return ErrAborted
				}
				killed[other] = struct{}{}
				d.removeFromSetsLocked(other)
				other.signalAbortFinalized()
			}
		}
	}

	d.readersMu.Unlock()
	d.writersMu.Unlock()
	if len(killed) > 0 {
		d.broadcastStallChange()
	}
	return nil
}

func (d *optimisticDetector) cleanup(t *Transaction) {
	d.writersMu.Lock()
	d.readersMu.Lock()
	d.removeFromSetsLocked(t)
	d.readersMu.Unlock()
	d.writersMu.Unlock()
	d.broadcastStallChange()
}

func (d *optimisticDetector) abortWithoutLocks(t *Transaction) {
	t.setAbortedAndUnwind()
	d.removeFromSetsLocked(t)
}

func (d *optimisticDetector) removeFromSetsLocked(t *Transaction) {
	for _, a := range t.writeAddrs() {
		d.writers.remove(a, t)
	}
	for _, a := range t.readAddrs() {
		d.readers.remove(a, t)
	}
}
