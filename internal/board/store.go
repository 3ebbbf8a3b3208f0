package board

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Store persists a whole Collection as a single JSON document.
type Store struct {
	path  string
	games int
}

func NewStore(path string, games int) *Store {
	return &Store{path: path, games: games}
}

// Load reads the persisted collection. When the file is absent or unreadable
// it returns a fresh collection with one empty board per game and persists it
// immediately, so a first run or a corrupt file heals itself.
func (s *Store) Load() (Collection, error) {
	b, err := os.ReadFile(s.path)
	if err == nil {
		var c Collection
		if err = json.Unmarshal(b, &c); err == nil {
			return c, nil
		}
	}

	slog.Warn("store: starting from a fresh collection", "path", s.path, "error", err)

	c := NewCollection(s.games)
	for i := range c {
		c[i] = Board{}
	}
	if err := s.Save(c); err != nil {
		return nil, fmt.Errorf("store: persist fresh collection: %w", err)
	}

	return c, nil
}

// Save overwrites the persisted document. The document is written to a temp
// file in the same directory and renamed over the target, so a reader never
// observes a half-written collection. A failed save leaves the previous file
// intact.
func (s *Store) Save(c Collection) error {
	b, err := json.MarshalIndent(c, "", "\t")
	if err != nil {
		return fmt.Errorf("store: marshal collection: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: replace %s: %w", s.path, err)
	}

	return nil
}
