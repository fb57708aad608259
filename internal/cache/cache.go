// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache stores resolved papers and their summaries in a single
// JSON mapping file. The cache is the system's only durable paper store:
// a paper resolved once is never searched again, and a summarized paper
// is never re-summarized.
// Implements: prd001-cache (R1-R4); docs/ARCHITECTURE § Cache.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paperdex/pkg/types"
)

// CorruptionError reports an unreadable cache file. The store recovers by
// starting empty; the error is surfaced through the logger, never fatal
// (R4.2).
type CorruptionError struct {
	Path string
	Err  error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("cache file %s is corrupted: %v", e.Path, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// cacheFile is the on-disk layout of the mapping file.
type cacheFile struct {
	// Entries maps primary key → entry.
	Entries map[string]*types.CacheEntry `json:"entries"`

	// Aliases maps secondary keys (title hashes) to primary keys, so a
	// title lookup hits an entry stored under its arXiv key (R1.3).
	Aliases map[string]string `json:"aliases,omitempty"`
}

// Store is a concurrency-safe paper cache backed by one JSON file.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries map[string]*types.CacheEntry
	aliases map[string]string
	log     *zap.Logger
}

// Open loads the cache at path. A missing file yields an empty cache; a
// corrupted file yields an empty cache and a warning (R4.1, R4.2).
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		path:    path,
		entries: make(map[string]*types.CacheEntry),
		aliases: make(map[string]string),
		log:     log,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads the mapping file into memory.
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading cache file: %w", err)
	}

	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		cerr := &CorruptionError{Path: s.path, Err: err}
		s.log.Warn("starting with empty cache", zap.Error(cerr))
		return nil
	}

	if file.Entries != nil {
		s.entries = file.Entries
	}
	if file.Aliases != nil {
		s.aliases = file.Aliases
	}
	return nil
}

// Reload re-reads the mapping file from disk, replacing the in-memory
// state. Used by the refresh endpoint (prd006-api R2.4).
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*types.CacheEntry)
	s.aliases = make(map[string]string)
	return s.load()
}

// Get returns the entry stored under key, following one alias hop.
func (s *Store) Get(key string) (types.CacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if entry, ok := s.entries[key]; ok {
		return *entry, true
	}
	if primary, ok := s.aliases[key]; ok {
		if entry, ok := s.entries[primary]; ok {
			return *entry, true
		}
	}
	return types.CacheEntry{}, false
}

// Exists reports whether key resolves to an entry.
func (s *Store) Exists(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Put upserts an entry under its primary key, registers the given alias
// keys, and persists the file. Writing the same entry twice is a no-op
// apart from the rewrite (R1.2).
func (s *Store) Put(entry types.CacheEntry, aliasKeys ...string) error {
	if entry.Key == "" {
		return fmt.Errorf("cache entry has no key")
	}
	if entry.CollectedAt.IsZero() {
		entry.CollectedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[entry.Key]; ok {
		// Preserve the original collection time across updates.
		entry.CollectedAt = existing.CollectedAt
	}
	s.entries[entry.Key] = &entry
	for _, alias := range aliasKeys {
		if alias != "" && alias != entry.Key {
			s.aliases[alias] = entry.Key
		}
	}

	return s.save()
}

// List returns all entries sorted by collection time, newest first.
func (s *Store) List() []types.CacheEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.CacheEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CollectedAt.Equal(out[j].CollectedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].CollectedAt.After(out[j].CollectedAt)
	})
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// save writes the mapping file atomically: marshal to a temp file in the
// same directory, then rename over the target (R3.1). Callers hold mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(cacheFile{Entries: s.entries, Aliases: s.aliases}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".papers-*.json")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp cache file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing cache file: %w", err)
	}
	return nil
}
