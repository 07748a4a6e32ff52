package watcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Cursor is the sole durable state: the last safely processed block.
type Cursor struct {
	LastBlock uint64 `json:"last_block"`
}

// CursorStore persists the cursor to a JSON file. Saves are atomic with
// respect to crashes: a crash between processing and saving only ever causes
// re-processing of an already confirmed range.
type CursorStore struct {
	path string
}

// NewCursorStore builds a store for the given file path.
func NewCursorStore(path string) *CursorStore {
	return &CursorStore{path: path}
}

// Load reads the persisted cursor. The second return is false on first run.
func (c *CursorStore) Load() (Cursor, bool, error) {
	stat, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Cursor{}, false, nil
		}
		return Cursor{}, false, fmt.Errorf("stat cursor: %w", err)
	}
	if stat.IsDir() {
		return Cursor{}, false, fmt.Errorf("cursor path is a directory")
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return Cursor{}, false, fmt.Errorf("read cursor: %w", err)
	}

	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return Cursor{}, false, fmt.Errorf("parse cursor: %w", err)
	}

	return cursor, true, nil
}

// Save overwrites the cursor file via a temp file and rename.
func (c *CursorStore) Save(lastBlock uint64) error {
	dir := filepath.Dir(c.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cursor dir: %w", err)
		}
	}

	data, err := json.Marshal(Cursor{LastBlock: lastBlock})
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write cursor tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename cursor: %w", err)
	}

	return nil
}
