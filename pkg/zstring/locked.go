package zstring

// Locked is a Fixed string whose backing memory is pinned against swapping
// where the host platform supports it (see mlock/munlock in
// locked_unix.go/locked_other.go), and which always zeroes its contents on
// Destroy regardless of whether locking succeeded.
//
// Use Locked for IUK, MK, ILK, password, rescue-code, and scratch buffers —
// anything named in §3's "Invariants" as memory that MAY be locked and MUST
// be zeroized on release.
type Locked struct {
	Fixed
	locked bool
}

// NewLocked allocates a Locked string with the given capacity and attempts
// to lock its backing memory.
func NewLocked(capacity int) *Locked {
	l := &Locked{}
	l.capacity = capacity
	l.buf = make([]byte, 0, capacity)
	l.locked = mlock(l.buf[:cap(l.buf)])
	return l
}

// IsLocked reports whether the backing memory is pinned against swapping.
func (l *Locked) IsLocked() bool { return l.locked }

// Destroy zeroes and unlocks the backing memory.
func (l *Locked) Destroy() {
	full := l.buf[:cap(l.buf)]
	zero(full)
	if l.locked {
		munlock(full)
		l.locked = false
	}
	l.buf = nil
	l.cursor = 0
}
