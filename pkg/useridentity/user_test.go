package useridentity

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/sqrl-go/sqrl/pkg/crypto"
	"github.com/sqrl-go/sqrl/pkg/storage"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, crypto.KeySize)
	if _, err := rand.Read(k); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return k
}

func TestNewUserIsEmptyWithOneReference(t *testing.T) {
	u := New()
	if u.State() != StateEmpty {
		t.Fatalf("State() = %v, want StateEmpty", u.State())
	}
	u.Release()
	if u.State() != StateDestroyed {
		t.Fatalf("State() after last release = %v, want StateDestroyed", u.State())
	}
}

func TestAcquireReleaseKeepsUserAliveUntilLastRelease(t *testing.T) {
	u := New()
	u.Acquire()
	u.Release()
	if u.State() != StateEmpty {
		t.Fatalf("State() after one of two releases = %v, want StateEmpty", u.State())
	}
	u.Release()
	if u.State() != StateDestroyed {
		t.Fatalf("State() after final release = %v, want StateDestroyed", u.State())
	}
}

func TestRekeyMarksBothBlocksDirty(t *testing.T) {
	u := New()
	defer u.Release()

	if err := u.Rekey(randomKey(t)); err != nil {
		t.Fatalf("Rekey: %v", err)
	}
	if u.State() != StateReady {
		t.Fatalf("State() = %v, want StateReady", u.State())
	}
	if !u.IsDirty(storage.BlockTypePassword) || !u.IsDirty(storage.BlockTypeRescue) {
		t.Fatal("expected both type-1 and type-2 dirty after rekey")
	}

	u.ClearDirty(storage.BlockTypePassword)
	u.ClearDirty(storage.BlockTypeRescue)
	if u.IsDirty(storage.BlockTypePassword) || u.IsDirty(storage.BlockTypeRescue) {
		t.Fatal("expected dirty flags cleared")
	}
}

func TestDecryptPasswordRoundtrip(t *testing.T) {
	mk := randomKey(t)
	ilk := randomKey(t)
	password := []byte("save-action password")

	block, err := storage.EncodeType1(mk, ilk, password, storage.Type1Options{EnscryptSeconds: 0}, 4, rand.Reader)
	if err != nil {
		t.Fatalf("EncodeType1: %v", err)
	}
	s := storage.New()
	s.PutBlock(block)

	u := New()
	defer u.Release()
	if err := u.AttachStorage(s); err != nil {
		t.Fatalf("AttachStorage: %v", err)
	}

	calls := 0
	cb := func(kind CredentialKind) ([]byte, bool) {
		calls++
		if kind != CredentialPassword {
			t.Fatalf("unexpected credential kind %v", kind)
		}
		return password, true
	}
	if err := u.DecryptPassword(cb); err != nil {
		t.Fatalf("DecryptPassword: %v", err)
	}
	if calls != 1 {
		t.Fatalf("credential callback called %d times, want 1", calls)
	}
	if u.State() != StateReady {
		t.Fatalf("State() = %v, want StateReady", u.State())
	}

	gotMK, err := u.KeySet().MK()
	if err != nil || !bytes.Equal(gotMK, mk) {
		t.Fatalf("MK() = %x, %v; want %x", gotMK, err, mk)
	}

	// A second decrypt should be a no-op and not re-prompt.
	if err := u.DecryptPassword(cb); err != nil {
		t.Fatalf("second DecryptPassword: %v", err)
	}
	if calls != 1 {
		t.Fatalf("credential callback called %d times after cached decrypt, want 1", calls)
	}
}

func TestDecryptPasswordRetriesOnceOnWrongPassword(t *testing.T) {
	mk := randomKey(t)
	ilk := randomKey(t)
	password := []byte("correct password")

	block, err := storage.EncodeType1(mk, ilk, password, storage.Type1Options{EnscryptSeconds: 0}, 4, rand.Reader)
	if err != nil {
		t.Fatalf("EncodeType1: %v", err)
	}
	s := storage.New()
	s.PutBlock(block)

	u := New()
	defer u.Release()
	if err := u.AttachStorage(s); err != nil {
		t.Fatalf("AttachStorage: %v", err)
	}

	calls := 0
	cb := func(kind CredentialKind) ([]byte, bool) {
		calls++
		if calls == 1 {
			return []byte("wrong password"), true
		}
		return password, true
	}
	if err := u.DecryptPassword(cb); err != nil {
		t.Fatalf("DecryptPassword: %v", err)
	}
	if calls != 2 {
		t.Fatalf("credential callback called %d times, want 2 (one retry)", calls)
	}
	if u.State() != StateReady {
		t.Fatalf("State() = %v, want StateReady", u.State())
	}
}

func TestDecryptPasswordFailsAfterOneRetry(t *testing.T) {
	mk := randomKey(t)
	ilk := randomKey(t)
	block, err := storage.EncodeType1(mk, ilk, []byte("correct password"), storage.Type1Options{EnscryptSeconds: 0}, 4, rand.Reader)
	if err != nil {
		t.Fatalf("EncodeType1: %v", err)
	}
	s := storage.New()
	s.PutBlock(block)

	u := New()
	defer u.Release()
	_ = u.AttachStorage(s)

	calls := 0
	cb := func(kind CredentialKind) ([]byte, bool) {
		calls++
		return []byte("still wrong"), true
	}
	if err := u.DecryptPassword(cb); err == nil {
		t.Fatal("expected DecryptPassword to fail after a second wrong password")
	}
	if calls != 2 {
		t.Fatalf("credential callback called %d times, want 2 (no further retries)", calls)
	}
}

func TestDecryptPasswordDeniedCredential(t *testing.T) {
	mk := randomKey(t)
	ilk := randomKey(t)
	block, err := storage.EncodeType1(mk, ilk, []byte("pw"), storage.Type1Options{EnscryptSeconds: 0}, 4, rand.Reader)
	if err != nil {
		t.Fatalf("EncodeType1: %v", err)
	}
	s := storage.New()
	s.PutBlock(block)

	u := New()
	defer u.Release()
	_ = u.AttachStorage(s)

	err = u.DecryptPassword(func(CredentialKind) ([]byte, bool) { return nil, false })
	if err != ErrCredentialDenied {
		t.Fatalf("DecryptPassword with denied callback = %v, want ErrCredentialDenied", err)
	}
}

func TestDecryptRescueRoundtrip(t *testing.T) {
	iuk := randomKey(t)
	code := []byte("123456789012345678901234")
	block, err := storage.EncodeType2(iuk, code, 4, rand.Reader)
	if err != nil {
		t.Fatalf("EncodeType2: %v", err)
	}
	s := storage.New()
	s.PutBlock(block)

	u := New()
	defer u.Release()
	_ = u.AttachStorage(s)

	got, err := u.DecryptRescue(func(CredentialKind) ([]byte, bool) { return code, true })
	if err != nil {
		t.Fatalf("DecryptRescue: %v", err)
	}
	if !bytes.Equal(got, iuk) {
		t.Fatalf("DecryptRescue() = %x, want %x", got, iuk)
	}
}

func TestDecryptRescueRetriesOnceOnWrongCode(t *testing.T) {
	iuk := randomKey(t)
	code := []byte("123456789012345678901234")
	block, err := storage.EncodeType2(iuk, code, 4, rand.Reader)
	if err != nil {
		t.Fatalf("EncodeType2: %v", err)
	}
	s := storage.New()
	s.PutBlock(block)

	u := New()
	defer u.Release()
	_ = u.AttachStorage(s)

	calls := 0
	got, err := u.DecryptRescue(func(CredentialKind) ([]byte, bool) {
		calls++
		if calls == 1 {
			return []byte("000000000000000000000000"), true
		}
		return code, true
	})
	if err != nil {
		t.Fatalf("DecryptRescue: %v", err)
	}
	if !bytes.Equal(got, iuk) {
		t.Fatalf("DecryptRescue() = %x, want %x", got, iuk)
	}
	if calls != 2 {
		t.Fatalf("credential callback called %d times, want 2 (one retry)", calls)
	}
}

func TestRequireSavePasswordRejectsEmpty(t *testing.T) {
	u := New()
	defer u.Release()
	_, err := u.RequireSavePassword(func(CredentialKind) ([]byte, bool) { return nil, true })
	if err != ErrEmptyPassword {
		t.Fatalf("RequireSavePassword with empty secret = %v, want ErrEmptyPassword", err)
	}
}
