package stm

import "unsafe"

// Addr is the opaque, identity-keyed handle the transactional core uses for
// every memory location it tracks. It carries the caller-owned pointer
// itself (so the garbage collector keeps the target alive for as long as
// any transaction still references it) but the core never dereferences it
// directly — only AddrOf's caller, and Store/Load which hold the typed
// *T the Addr was built from, ever touch the underlying bytes.
type Addr struct {
	p unsafe.Pointer
}

// AddrOf returns the identity of a caller-owned memory location.
func AddrOf[T any](p *T) Addr {
	return Addr{p: unsafe.Pointer(p)}
}

func bytesAt(p unsafe.Pointer, size uintptr) []byte {
	return unsafe.Slice((*byte)(p), size)
}
