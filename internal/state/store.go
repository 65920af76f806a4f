// Package state persists the matchmaking state as a single JSON snapshot on
// disk. Writes go through a write-temp-then-rename sequence so a crash
// mid-write can never corrupt the last committed snapshot, and a missing or
// unreadable file loads as an empty state: losing matchmaking state is
// always preferable to refusing to start.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/pairline/pairline/internal/directory"
)

// Snapshot is the full durable state, written as one document.
type Snapshot struct {
	Users       map[string]directory.User `json:"users"`
	Queues      map[string][]string       `json:"queues"`
	Active      map[string]string         `json:"active"`
	LastPartner map[string]string         `json:"last_partner"`
}

// Empty returns a Snapshot with all maps allocated.
func Empty() *Snapshot {
	return &Snapshot{
		Users:       make(map[string]directory.User),
		Queues:      make(map[string][]string),
		Active:      make(map[string]string),
		LastPartner: make(map[string]string),
	}
}

// Store writes snapshots to a file path. Saves are serialized by the store's
// own mutex, separate from the matching lock, so slow disk I/O never blocks
// matching throughput.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store writing to path. The parent directory is created
// if missing.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("state: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("state: create dir: %w", err)
		}
	}
	return &Store{path: path}, nil
}

// Save writes the snapshot durably. The data is written to a temporary file
// in the same directory and renamed over the target, which is atomic on
// POSIX filesystems.
func (s *Store) Save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("state: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("state: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("state: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: close temp: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: rename: %w", err)
	}
	return nil
}

// Load returns the last durable snapshot. A missing file is a normal first
// start; an unreadable or corrupt file is logged and treated the same way.
// Load never fails startup.
func (s *Store) Load() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[state] read %s: %v (starting empty)", s.path, err)
		}
		return Empty()
	}

	snap := Empty()
	if err := json.Unmarshal(data, snap); err != nil {
		log.Printf("[state] corrupt snapshot %s: %v (starting empty)", s.path, err)
		return Empty()
	}

	// Re-allocate any maps the document omitted so callers never see nil.
	if snap.Users == nil {
		snap.Users = make(map[string]directory.User)
	}
	if snap.Queues == nil {
		snap.Queues = make(map[string][]string)
	}
	if snap.Active == nil {
		snap.Active = make(map[string]string)
	}
	if snap.LastPartner == nil {
		snap.LastPartner = make(map[string]string)
	}
	return snap
}
