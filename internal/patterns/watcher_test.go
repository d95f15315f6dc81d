package patterns

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestNewWatcher_RequiresStore(t *testing.T) {
	reg, err := Load(Options{RulesPath: writeFile(t, t.TempDir(), "rules.yaml", testRules)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewWatcher(reg); !errors.Is(err, ErrNoStore) {
		t.Errorf("expected ErrNoStore, got %v", err)
	}
}

func TestWatcher_MergesExternalWrites(t *testing.T) {
	dir := t.TempDir()
	learned := filepath.Join(dir, "learned.yaml")
	reg, err := Load(Options{
		RulesPath:   writeFile(t, dir, "rules.yaml", testRules),
		LearnedPath: learned,
	})
	if err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(reg)
	if err != nil {
		t.Fatal(err)
	}
	w.debounce = 10 * time.Millisecond
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Another process (the learner) appends to the store.
	if _, err := NewStore(learned).Append(Record{Pattern: "masscan"}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for reg.Len() != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected merged pattern, registry has %d", reg.Len())
		}
		time.Sleep(20 * time.Millisecond)
	}
}
