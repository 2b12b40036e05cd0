// Package prefs persists feature flags and free-form feature settings.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Store is a durable map from string keys to JSON-serializable values.
type Store interface {
	// Load returns the stored value for key, or def when nothing is stored.
	Load(ctx context.Context, key string, def any) (any, error)

	// Save stores value under key.
	Save(ctx context.Context, key string, value any) error
}

// Merge overlays stored values on defaults. Defaults define the key set;
// a stored value wins per key.
func Merge(ctx context.Context, s Store, defaults map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(defaults))
	for key, def := range defaults {
		v, err := s.Load(ctx, key, def)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

// FileStore implements Store with a JSON file. Every Save rewrites the file
// atomically.
type FileStore struct {
	path    string
	mu      sync.RWMutex
	data    map[string]any
	version string
}

// FileVersion is written into new preference files.
const FileVersion = "1"

// DefaultPath returns ~/.tubeforge/preferences.json.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".tubeforge", "preferences.json"), nil
}

// NewFileStore opens the store at path, defaulting to DefaultPath. A missing
// file is an empty store.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	s := &FileStore{
		path:    path,
		data:    make(map[string]any),
		version: FileVersion,
	}
	if err := s.reload(); err != nil {
		return nil, fmt.Errorf("failed to load preferences from %s: %w", path, err)
	}
	return s, nil
}

type fileFormat struct {
	Version string         `json:"version"`
	Values  map[string]any `json:"values"`
}

func (s *FileStore) reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.data = make(map[string]any)
			return nil
		}
		return fmt.Errorf("failed to open preferences file: %w", err)
	}
	defer file.Close()

	var f fileFormat
	if err := json.NewDecoder(file).Decode(&f); err != nil {
		return fmt.Errorf("failed to decode preferences file: %w", err)
	}
	if f.Version != "" {
		s.version = f.Version
	}
	s.data = f.Values
	if s.data == nil {
		s.data = make(map[string]any)
	}
	return nil
}

// Load returns the stored value for key or def.
func (s *FileStore) Load(ctx context.Context, key string, def any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return def, nil
}

// Save stores value and flushes the file.
func (s *FileStore) Save(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.data[key]
	s.data[key] = value
	if err := s.flush(); err != nil {
		if had {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

// flush writes the file; callers hold s.mu.
func (s *FileStore) flush() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp preferences file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(fileFormat{Version: s.version, Values: s.data}); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *FileStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Path returns the file path of the store.
func (s *FileStore) Path() string {
	return s.path
}

// MemoryStore is a Store kept in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]any
	err  error
}

// NewMemoryStore returns a store seeded with a copy of values.
func NewMemoryStore(values map[string]any) *MemoryStore {
	data := make(map[string]any, len(values))
	for k, v := range values {
		data[k] = v
	}
	return &MemoryStore{data: data}
}

// FailSaves makes every Save return err. Pass nil to clear.
func (m *MemoryStore) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Load returns the stored value for key or def.
func (m *MemoryStore) Load(_ context.Context, key string, def any) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return def, nil
}

// Save stores value under key.
func (m *MemoryStore) Save(_ context.Context, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

// Snapshot returns a copy of everything stored.
func (m *MemoryStore) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]any, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}
