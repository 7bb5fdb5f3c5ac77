package stm

// conflictDetector mediates every Store and Load and is
// consulted again at commit for the optimistic variant. Exactly one
// instance is owned by the TransactionManager, shared by all
// transactions it creates.
type conflictDetector interface {
	// store registers a write to a, possibly aborting t.
	store(t *Transaction, a Addr) error

	// load registers a read of a, possibly stalling or aborting t.
	load(t *Transaction, a Addr) error

	// resolveAtCommit runs at the point t has already CAS'd into
	// COMMITTING. It is a no-op under pessimistic detection.
	resolveAtCommit(t *Transaction) error

	// cleanup removes t from every writers[A]/readers[A] it belongs to,
	// erasing empty address entries, and wakes any stalled peers.
	cleanup(t *Transaction)
}

// addrSet is the global conflict-detector state: writers[A] or
// readers[A], a set of transactions currently holding A in their write
// or read set respectively.
type addrSet map[Addr]map[*Transaction]struct{}

func (s addrSet) add(a Addr, t *Transaction) {
	bucket, ok := s[a]
	if !ok {
		bucket = make(map[*Transaction]struct{}, 1)
		s[a] = bucket
	}
	bucket[t] = struct{}{}
}

func (s addrSet) remove(a Addr, t *Transaction) {
	bucket, ok := s[a]
	if !ok {
		return
	}
	delete(bucket, t)
	if len(bucket) == 0 {
		delete(s, a)
	}
}

// conflictingOwner returns another transaction present at a, if any.
func (s addrSet) conflictingOwner(a Addr, self *Transaction) (*Transaction, bool) {
	for other := range s[a] {
		if other != self {
			return other, true
		}
	}
	return nil, false
}

// hasConflict reports whether any transaction other than self is
// present at a.
func (s addrSet) hasConflict(a Addr, self *Transaction) bool {
	_, ok := s.conflictingOwner(a, self)
	return ok
}
