package action

import (
	"testing"
)

func TestLockHidesKeyMaterialUntilUnlock(t *testing.T) {
	u := freshReadyUser(t)

	l := NewLock(u, []byte("corr"), Callbacks{}, nil)
	l.NFactor = 1
	l.Iterations = 2
	runToCompletion(t, l, 5)

	if l.Status() != StatusSuccess {
		t.Fatalf("Status() = %v, want StatusSuccess", l.Status())
	}
	if !u.KeySet().Locked() {
		t.Fatal("expected KeySet to report locked")
	}
	if _, err := u.KeySet().IUK(); err == nil {
		t.Fatal("expected IUK() to fail while hint-locked")
	}

	if err := u.KeySet().Unlock([]byte("corr")); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if u.KeySet().Locked() {
		t.Fatal("expected KeySet to report unlocked after Unlock")
	}
	if _, err := u.KeySet().IUK(); err != nil {
		t.Fatalf("IUK() after unlock: %v", err)
	}
}

func TestLockUnlockRejectsWrongHint(t *testing.T) {
	u := freshReadyUser(t)

	l := NewLock(u, []byte("corr"), Callbacks{}, nil)
	l.NFactor = 1
	l.Iterations = 2
	runToCompletion(t, l, 5)
	if l.Status() != StatusSuccess {
		t.Fatalf("Status() = %v, want StatusSuccess", l.Status())
	}

	if err := u.KeySet().Unlock([]byte("wrng")); err == nil {
		t.Fatal("expected Unlock with the wrong hint to fail")
	}
}
