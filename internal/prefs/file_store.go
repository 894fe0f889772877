package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists the preference document as a JSON file next to the
// binary, the single-user default. Writes go through a temp file and
// rename so a crash never leaves a half-written table.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore at the given path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("prefs: file store path must not be empty")
	}
	return &FileStore{path: path}, nil
}

// Load reads the document. A missing file yields (nil, nil) so the caller
// falls back to defaults.
func (s *FileStore) Load(_ context.Context) (*Preferences, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("prefs: read %s: %w", s.path, err)
	}
	var p Preferences
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("prefs: decode %s: %w", s.path, err)
	}
	return &p, nil
}

// Save writes the whole document atomically.
func (s *FileStore) Save(_ context.Context, p *Preferences) error {
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("prefs: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".prefs-*")
	if err != nil {
		return fmt.Errorf("prefs: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("prefs: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("prefs: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("prefs: replace %s: %w", s.path, err)
	}
	return nil
}
