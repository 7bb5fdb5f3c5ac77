package stm

import (
	"sync"
	"unsafe"

	"github.com/rs/zerolog"
)

// writeEntry holds the bytes a transaction would write at commit.
// Exactly one entry per address — successive stores replace the
// earlier bytes (last-store-wins), unlike the undo log's
// first-store-wins.
type writeEntry struct {
	target unsafe.Pointer
	data   []byte
}

// lazyVersionManager buffers writes locally and applies them to memory
// only at commit.
type lazyVersionManager struct {
	mu     sync.Mutex
	writes map[Addr]writeEntry
	logger zerolog.Logger
}

func newLazyVersionManager(logger zerolog.Logger) *lazyVersionManager {
	return &lazyVersionManager{
		writes: make(map[Addr]writeEntry),
		logger: logger,
	}
}

func (l *lazyVersionManager) store(a Addr, target, newValue unsafe.Pointer, size uintptr) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// A prior buffered write to the same address is superseded; its
	// backing slice becomes unreachable and the GC reclaims it, the
	// equivalent of the free()+erase() pair in lazy_version_manager.cpp.
	delete(l.writes, a)

	data := make([]byte, size)
	copy(data, bytesAt(newValue, size))
	l.writes[a] = writeEntry{target: target, data: data}
}

func (l *lazyVersionManager) getValue(a Addr, dest unsafe.Pointer, size uintptr) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.writes[a]
	if !ok {
		return false
	}
	copy(bytesAt(dest, size), w.data)
	return true
}

func (l *lazyVersionManager) abort() {
	l.mu.Lock()
	defer l.mu.Unlock()
	// Memory at the target addresses was never touched; dropping the
	// buffer is all that is required.
	clear(l.writes)
}

func (l *lazyVersionManager) end() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for a, w := range l.writes {
		copy(bytesAt(w.target, uintptr(len(w.data))), w.data)
		delete(l.writes, a)
	}
}
