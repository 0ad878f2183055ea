package jsonstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// CorruptDataError reports a collection file that exists but could not be
// parsed. The collection is still served as empty so callers keep working;
// the error lets them tell silent data loss apart from a legitimately empty
// collection.
type CorruptDataError struct {
	Collection string
	Path       string
	Err        error
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("collection %q corrupt at %s: %v", e.Collection, e.Path, e.Err)
}

func (e *CorruptDataError) Unwrap() error { return e.Err }

// Store persists collections as one JSON array file each under a directory.
// Replace is atomic (write-to-temp-then-rename), so a reader never observes
// a collection mixing pre- and post-update records. Lock hands out a named
// mutex per collection so a load-modify-replace sequence from one request
// excludes concurrent writers of the same collection.
type Store struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates the store, ensuring the database directory exists
func New(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database dir: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger,
		locks:  map[string]*sync.Mutex{},
	}, nil
}

// Lock acquires the collection's mutex and returns the unlock function.
// Hold it across a Load..Replace sequence.
func (s *Store) Lock(collection string) func() {
	s.mu.Lock()
	m, ok := s.locks[collection]
	if !ok {
		m = &sync.Mutex{}
		s.locks[collection] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (s *Store) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// Load reads all records of a collection. A missing file is an empty
// collection. An unparseable file is also served as empty, with a
// *CorruptDataError alongside so the caller can surface the condition.
func Load[T any](s *Store, collection string) ([]T, error) {
	path := s.path(collection)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []T{}, nil
		}
		return []T{}, &CorruptDataError{Collection: collection, Path: path, Err: err}
	}

	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return []T{}, &CorruptDataError{Collection: collection, Path: path, Err: err}
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

// Replace overwrites the whole collection atomically
func Replace[T any](s *Store, collection string, records []T) error {
	if records == nil {
		records = []T{}
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal collection %q: %w", collection, err)
	}

	tmp, err := os.CreateTemp(s.dir, collection+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %q: %w", collection, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write collection %q: %w", collection, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync collection %q: %w", collection, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file for %q: %w", collection, err)
	}

	if err := os.Rename(tmpPath, s.path(collection)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace collection %q: %w", collection, err)
	}

	s.logger.Debug("collection replaced",
		slog.String("collection", collection),
		slog.Int("records", len(records)),
	)
	return nil
}
