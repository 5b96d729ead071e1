// Package filestore persists the incident to message mapping as a single
// JSON document on disk.
//
// The document is read in full before every lookup and rewritten in full
// after every mutation, so the file on disk always reflects the last
// confirmed send.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrCorrupt is returned when the mapping file is not a JSON object of strings.
var ErrCorrupt = errors.New("mapping file is corrupt")

// Store is a JSON file backed mapping store.
type Store struct {
	path string
	mu   sync.Mutex
}

// New opens the mapping file at path, creating an empty document if it does
// not exist yet. It fails if the existing file cannot be read or parsed.
func New(path string) (*Store, error) {
	s := &Store{path: path}

	if err := s.ensure(); err != nil {
		return nil, err
	}
	if _, err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

// Path returns the location of the mapping file.
func (s *Store) Path() string {
	return s.path
}

// Get returns the message id recorded for incidentID.
func (s *Store) Get(_ context.Context, incidentID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return "", false, err
	}

	messageID, ok := entries[incidentID]
	return messageID, ok, nil
}

// Put records messageID for incidentID and flushes the document.
func (s *Store) Put(_ context.Context, incidentID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	entries[incidentID] = messageID
	return s.write(entries)
}

// Entries returns a copy of every recorded mapping.
func (s *Store) Entries() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}

func (s *Store) ensure() error {
	_, err := os.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat mapping file: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create mapping directory: %w", err)
		}
	}
	return s.write(map[string]string{})
}

func (s *Store) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}

	entries := make(map[string]string)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	// A literal "null" decodes into a nil map.
	if entries == nil {
		entries = make(map[string]string)
	}
	return entries, nil
}

// write replaces the mapping file atomically.
func (s *Store) write(entries map[string]string) error {
	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp mapping file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write mapping file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync mapping file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close mapping file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace mapping file: %w", err)
	}
	return nil
}
