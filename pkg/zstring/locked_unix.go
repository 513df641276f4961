//go:build linux || darwin || freebsd

package zstring

import "golang.org/x/sys/unix"

// mlock pins b's pages against swapping. Best-effort: failures are not
// fatal, they just mean Locked degrades to zero-on-destroy only, as
// described in §9's memory-locking design note.
func mlock(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	return unix.Mlock(b) == nil
}

func munlock(b []byte) {
	if len(b) == 0 {
		return
	}
	_ = unix.Munlock(b)
}
