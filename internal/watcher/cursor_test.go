package watcher

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCursorRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "cursor.json")
	store := NewCursorStore(path)

	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("first run: ok=%v err=%v", ok, err)
	}

	if err := store.Save(12345678); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// A fresh store over the same path sees the identical block.
	cursor, ok, err := NewCursorStore(path).Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a persisted cursor")
	}
	if cursor.LastBlock != 12345678 {
		t.Fatalf("last block = %d", cursor.LastBlock)
	}
}

func TestCursorOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor.json")
	store := NewCursorStore(path)

	if err := store.Save(100); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Save(200); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	cursor, _, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cursor.LastBlock != 200 {
		t.Fatalf("last block = %d", cursor.LastBlock)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != `{"last_block":200}` {
		t.Fatalf("file contents = %s", data)
	}
}

func TestCursorCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, _, err := NewCursorStore(path).Load(); err == nil {
		t.Fatal("expected an error for a corrupt cursor")
	}
}
