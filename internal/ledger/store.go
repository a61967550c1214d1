package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store loads and saves the ledger document. Implementations assume a single
// process owns the document; concurrent writers from several processes are
// last-writer-wins.
type Store interface {
	Load() (State, error)
	Save(State) error
}

// FileStore keeps the ledger as a JSON document at Path.
type FileStore struct {
	Path string
}

func (f FileStore) Load() (State, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return State{}, err
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("parsing ledger %s: %w", f.Path, err)
	}
	return s, nil
}

// Save writes to a temporary file and renames it over Path so a crash never
// leaves a half-written document.
func (f FileStore) Save(s State) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating ledger dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".budget-*.json")
	if err != nil {
		return fmt.Errorf("writing ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("replacing ledger: %w", err)
	}
	return nil
}
