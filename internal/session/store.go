package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SnapshotStore persists session metrics keyed by item id.
type SnapshotStore interface {
	Load(itemID string) (Snapshot, bool, error)
	Save(snap Snapshot) error
	Delete(itemID string) error
	All() (map[string]Snapshot, error)
}

// FileStore keeps every snapshot in a single JSON object on disk. Each write
// rereads the whole file, applies the change and replaces the file, all under
// one lock, so saves for different items never clobber each other.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the JSON file at path. The file and
// its directory are created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the snapshot file.
func (f *FileStore) Path() string {
	return f.path
}

// Load returns the snapshot for itemID, if one exists.
func (f *FileStore) Load(itemID string) (Snapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.read()
	if err != nil {
		return Snapshot{}, false, err
	}
	snap, ok := all[itemID]
	return snap, ok, nil
}

// Save writes snap, replacing any previous snapshot for the same item.
func (f *FileStore) Save(snap Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.read()
	if err != nil {
		return err
	}
	all[snap.ItemID] = snap
	return f.write(all)
}

// Delete removes the snapshot for itemID. Deleting a missing id is not an error.
func (f *FileStore) Delete(itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := all[itemID]; !ok {
		return nil
	}
	delete(all, itemID)
	return f.write(all)
}

// All returns every stored snapshot.
func (f *FileStore) All() (map[string]Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

func (f *FileStore) read() (map[string]Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]Snapshot), nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read snapshot file: %w", err)
	}
	all := make(map[string]Snapshot)
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("session: decode snapshot file: %w", err)
	}
	return all, nil
}

func (f *FileStore) write(all map[string]Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("session: ensure snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode snapshots: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".sessions-*.json")
	if err != nil {
		return fmt.Errorf("session: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("session: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("session: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("session: replace snapshot file: %w", err)
	}
	return nil
}
