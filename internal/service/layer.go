package service

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// LayerService keeps the layer definitions of the data directory in
// memory and rewrites layers.json after every change.
type LayerService struct {
	path string

	mu     sync.RWMutex
	layers map[string]LayerConfig
}

// NewLayerService reads <dataDir>/layers.json. A missing or unreadable
// file starts an empty set; entries that no longer validate are dropped.
func NewLayerService(dataDir string) *LayerService {
	s := &LayerService{
		path:   filepath.Join(dataDir, "layers.json"),
		layers: make(map[string]LayerConfig),
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return s
	}
	var stored map[string]LayerConfig
	if json.Unmarshal(data, &stored) != nil {
		return s
	}
	for id, def := range stored {
		if def.Validate() == nil {
			def.ID = id
			s.layers[id] = def
		}
	}
	return s
}

func (s *LayerService) List() map[string]LayerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.layers)
}

// Sorted returns the definitions ordered by name, then ID.
func (s *LayerService) Sorted() []LayerConfig {
	s.mu.RLock()
	defs := slices.Collect(maps.Values(s.layers))
	s.mu.RUnlock()

	slices.SortFunc(defs, func(a, b LayerConfig) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return defs
}

func (s *LayerService) Get(id string) (LayerConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.layers[id]
	return def, ok
}

// Create stores def under its ID, deriving one from the name when empty.
func (s *LayerService) Create(def LayerConfig) (LayerConfig, error) {
	if err := def.Validate(); err != nil {
		return LayerConfig{}, err
	}
	if def.ID == "" {
		def.ID = generateID(def.Name)
	}
	if def.ID == "" {
		return LayerConfig{}, fmt.Errorf("%w: name %q yields an empty id", ErrInvalidLayer, def.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.layers[def.ID]; ok {
		return LayerConfig{}, fmt.Errorf("layer %q: %w", def.ID, ErrExists)
	}
	return def, s.commit(def.ID, &def)
}

func (s *LayerService) Update(id string, def LayerConfig) (LayerConfig, error) {
	if err := def.Validate(); err != nil {
		return LayerConfig{}, err
	}
	def.ID = id

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.layers[id]; !ok {
		return LayerConfig{}, fmt.Errorf("layer %q: %w", id, ErrNotFound)
	}
	return def, s.commit(id, &def)
}

func (s *LayerService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.layers[id]; !ok {
		return fmt.Errorf("layer %q: %w", id, ErrNotFound)
	}
	return s.commit(id, nil)
}

// commit applies a change (nil def deletes) and persists it, rolling the
// map back when the write fails. Callers hold mu.
func (s *LayerService) commit(id string, def *LayerConfig) error {
	prev, had := s.layers[id]
	if def == nil {
		delete(s.layers, id)
	} else {
		s.layers[id] = *def
	}
	if err := s.write(); err != nil {
		if had {
			s.layers[id] = prev
		} else {
			delete(s.layers, id)
		}
		return err
	}
	return nil
}

// write replaces layers.json through a temp file in the same directory.
func (s *LayerService) write() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.layers, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".layers-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// generateID lowercases name and joins its alphanumeric runs with
// underscores.
func generateID(name string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	return strings.Join(words, "_")
}
