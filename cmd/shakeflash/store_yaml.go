package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// YAMLStore persists parameters as a flat key: value YAML map. The whole
// file is rewritten on every save through a temp file and rename, so a
// crash never leaves a half-written file behind.
type YAMLStore struct {
	path string

	mu     sync.Mutex
	values map[string]float64
}

// OpenYAMLStore loads path if it exists. A missing file is an empty store.
func OpenYAMLStore(path string) (*YAMLStore, error) {
	s := &YAMLStore{path: path, values: make(map[string]float64)}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err := yaml.Unmarshal(b, &s.values); err != nil {
		return nil, fmt.Errorf("decode settings %s: %w", path, err)
	}
	if s.values == nil {
		s.values = make(map[string]float64)
	}
	return s, nil
}

func (s *YAMLStore) Load(key string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *YAMLStore) Save(key string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value

	b, err := yaml.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

func (s *YAMLStore) Close() error { return nil }
