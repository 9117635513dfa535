package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists the settings record.
type Store interface {
	Load() (map[string]any, error)
	Save(record map[string]any) error
	Path() string
}

// JSONStore keeps the settings record in one JSON document.
type JSONStore struct {
	path     string
	fallback string
}

// NewJSONStore creates a JSON-backed settings store at path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// WithFallback makes Load read path when the primary document does not
// exist yet. Save always writes the primary document.
func (s *JSONStore) WithFallback(path string) *JSONStore {
	s.fallback = path
	return s
}

// Path returns the document location.
func (s *JSONStore) Path() string { return s.path }

// Load reads the record, trying the fallback document when the primary one
// is missing. A missing file is an empty record.
func (s *JSONStore) Load() (map[string]any, error) {
	path := s.path
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && s.fallback != "" {
		path = s.fallback
		data, err = os.ReadFile(path)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	record := map[string]any{}
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("malformed settings %s: %w", path, err)
	}
	if record == nil {
		record = map[string]any{}
	}
	return record, nil
}

// Save rewrites the whole document through a temp file and rename.
func (s *JSONStore) Save(record map[string]any) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close settings: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}
