package action

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sqrl-go/sqrl/pkg/storage"
	"github.com/sqrl-go/sqrl/pkg/useridentity"
)

// runUntilDone drives a over however many ticks it needs, bounded only by a
// generous safety cap, for actions whose completion depends on wall-clock
// time (the Save action's EnScrypt passes) rather than a small fixed number
// of states.
func runUntilDone(t *testing.T, a Action) {
	t.Helper()
	for i := 0; i < 50_000_000; i++ {
		if a.Exec() {
			return
		}
	}
	t.Fatalf("%s action did not complete", a.Kind())
}

func freshReadyUser(t *testing.T) *useridentity.User {
	t.Helper()
	g := NewGenerate(nil, Callbacks{RequestCredential: alwaysPassword}, nil)
	g.Entropy = &sequentialEntropy{}
	runToCompletion(t, g, 10)
	if g.Status() != StatusSuccess {
		t.Fatalf("generate failed: %v", g.Status())
	}
	return g.user
}

func TestSaveFirstSaveWritesAllThreeBlocks(t *testing.T) {
	u := freshReadyUser(t)

	var progressCalls int
	s := NewSave(u, 0, Callbacks{OnProgress: func(int) { progressCalls++ }}, nil)
	s.NFactor = 1
	s.Entropy = &sequentialEntropy{next: 0xA0}
	runUntilDone(t, s)

	if s.Status() != StatusSuccess {
		t.Fatalf("Status() = %v, want StatusSuccess", s.Status())
	}
	if !u.Storage().HasBlock(storage.BlockTypePassword) {
		t.Fatal("expected a type-1 block after save")
	}
	if !u.Storage().HasBlock(storage.BlockTypeRescue) {
		t.Fatal("expected a type-2 block after save")
	}
	if !u.Storage().HasBlock(storage.BlockTypePrevious) {
		t.Fatal("expected a type-3 block after save")
	}
	if u.IsDirty(storage.BlockTypePassword) || u.IsDirty(storage.BlockTypeRescue) {
		t.Fatal("blocks should no longer be dirty after a successful save")
	}
	if len(s.Bytes()) == 0 {
		t.Fatal("Bytes() should return the serialized container when no URI is set")
	}
	if progressCalls == 0 {
		t.Fatal("expected at least one OnProgress callback during the EnScrypt passes")
	}
}

func TestSaveSkipsUnchangedBlocks(t *testing.T) {
	u := freshReadyUser(t)

	first := NewSave(u, 0, Callbacks{}, nil)
	first.NFactor = 1
	first.Entropy = &sequentialEntropy{next: 0xB0}
	runUntilDone(t, first)
	if first.Status() != StatusSuccess {
		t.Fatalf("first save failed: %v", first.Status())
	}
	t2Before, _ := u.Storage().GetBlock(storage.BlockTypeRescue)

	u.MarkDirty(storage.BlockTypePassword)
	second := NewSave(u, 0, Callbacks{}, nil)
	second.NFactor = 1
	second.Entropy = &sequentialEntropy{next: 0xC0}
	runUntilDone(t, second)
	if second.Status() != StatusSuccess {
		t.Fatalf("second save failed: %v", second.Status())
	}

	t2After, _ := u.Storage().GetBlock(storage.BlockTypeRescue)
	if string(t2Before.Bytes()) != string(t2After.Bytes()) {
		t.Fatal("type-2 block was rewritten even though it was never marked dirty")
	}
}

func TestSaveWritesToFileURI(t *testing.T) {
	u := freshReadyUser(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.sqrl")

	s := NewSave(u, 0, Callbacks{}, nil)
	s.NFactor = 1
	s.TargetURI = "file://" + path
	s.Entropy = &sequentialEntropy{next: 0xD0}
	runUntilDone(t, s)

	if s.Status() != StatusSuccess {
		t.Fatalf("Status() = %v, want StatusSuccess", s.Status())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected identity file at %s: %v", path, err)
	}
}

func TestSaveFailsOnNonFileURI(t *testing.T) {
	u := freshReadyUser(t)
	s := NewSave(u, 0, Callbacks{}, nil)
	s.TargetURI = "sqrl://example.com/login?sfn=U1FSTGlk"
	runUntilDone(t, s)

	if s.Status() != StatusFailURI {
		t.Fatalf("Status() = %v, want StatusFailURI", s.Status())
	}
}
