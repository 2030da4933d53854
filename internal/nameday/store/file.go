// Package store persists the name-day calendar: a JSON file, an Upstash
// Redis REST key, or a SQLite database.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"nameday/internal/nameday"
)

// DefaultFileName is the calendar file written by `nameday fetch`.
const DefaultFileName = "svenska_namnsdagar.json"

// FileStore keeps the calendar in an indented JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Name() string { return "file" }

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the calendar. A missing file yields an empty calendar.
func (s *FileStore) Load(_ context.Context) (nameday.Calendar, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nameday.Calendar{}, nil
		}
		return nil, err
	}
	return decodeCalendar(data)
}

// Save writes the calendar atomically.
func (s *FileStore) Save(_ context.Context, cal nameday.Calendar) error {
	data, err := EncodeCalendar(cal, true)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, s.path)
}

// EncodeCalendar renders the calendar as JSON with dates in order and
// non-ASCII names left unescaped.
func EncodeCalendar(cal nameday.Calendar, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if cal == nil {
		cal = nameday.Calendar{}
	}
	if err := enc.Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeCalendar(data []byte) (nameday.Calendar, error) {
	cal := nameday.Calendar{}
	if len(bytes.TrimSpace(data)) == 0 {
		return cal, nil
	}
	if err := json.Unmarshal(data, &cal); err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}
	return cal, nil
}
