package stm

import (
	"sync"
	"unsafe"

	"github.com/rs/zerolog"
)

// undoEntry holds the bytes at an address before the first write this
// transaction made there. At most one entry exists per address — the
// earliest pre-image — so only the first store to a given address
// records an undo.
type undoEntry struct {
	target unsafe.Pointer
	saved  []byte
}

// eagerVersionManager writes through to memory immediately and keeps an
// undo log for rollback.
type eagerVersionManager struct {
	mu     sync.Mutex
	undo   map[Addr]undoEntry
	logger zerolog.Logger
}

func newEagerVersionManager(logger zerolog.Logger) *eagerVersionManager {
	return &eagerVersionManager{
		undo:   make(map[Addr]undoEntry),
		logger: logger,
	}
}

func (e *eagerVersionManager) store(a Addr, target, newValue unsafe.Pointer, size uintptr) {
	e.mu.Lock()
	if _, exists := e.undo[a]; !exists {
		saved := make([]byte, size)
		copy(saved, bytesAt(target, size))
		e.undo[a] = undoEntry{target: target, saved: saved}
	}
	e.mu.Unlock()

	// Only after the pre-image is safely recorded do we mutate memory in
	// place — other concurrent transactions are excluded by the
	// pessimistic conflict detector (eager+optimistic is disallowed at
	// construction), so this is the only writer touching target.
	copy(bytesAt(target, size), bytesAt(newValue, size))
}

// getValue always returns false: the eager engine keeps no buffered
// reads, reads see the mutated memory directly.
func (e *eagerVersionManager) getValue(a Addr, dest unsafe.Pointer, size uintptr) bool {
	return false
}

func (e *eagerVersionManager) abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for a, u := range e.undo {
		copy(bytesAt(u.target, uintptr(len(u.saved))), u.saved)
		delete(e.undo, a)
	}
}

func (e *eagerVersionManager) end() {
	e.mu.Lock()
	defer e.mu.Unlock()
	// Writes are already in memory; just drop the undo log so it can be
	// collected. There is nothing to free explicitly in Go, but clearing
	// the map is the direct analogue of undo_logs_.erase(transaction_id)
	// in eager_version_manager.cpp — no entry outlives this call.
	clear(e.undo)
}
