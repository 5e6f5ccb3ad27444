package baseline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const fileFormatVersion = 1

type fileDocument struct {
	Version int     `yaml:"version"`
	Entries []Entry `yaml:"entries"`
}

// FileStore keeps the baseline in a YAML document. A missing file is an
// empty baseline.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) List(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) Accept(ctx context.Context, entries []Entry) (int, error) {
	for _, e := range entries {
		if err := validateEntry(e); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read()
	if err != nil {
		return 0, err
	}
	set := NewSet(existing)
	added := 0
	for _, e := range entries {
		if set.Contains(e.Hash) {
			continue
		}
		set[e.Hash] = e
		existing = append(existing, e)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sortEntries(existing)
	if err := s.write(existing); err != nil {
		return 0, err
	}
	return added, nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) read() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read baseline %s: %w", s.path, err)
	}

	var doc fileDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse baseline %s: %w", s.path, err)
	}
	if doc.Version != 0 && doc.Version != fileFormatVersion {
		return nil, fmt.Errorf("baseline %s: unsupported version %d", s.path, doc.Version)
	}
	for _, e := range doc.Entries {
		if err := validateEntry(e); err != nil {
			return nil, fmt.Errorf("baseline %s: %w", s.path, err)
		}
	}
	return doc.Entries, nil
}

// write replaces the file atomically via a temporary file in the same directory.
func (s *FileStore) write(entries []Entry) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fileDocument{Version: fileFormatVersion, Entries: entries}); err != nil {
		return fmt.Errorf("encode baseline: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode baseline: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create baseline directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".baseline-*.yaml")
	if err != nil {
		return fmt.Errorf("write baseline: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write baseline: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write baseline: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write baseline: %w", err)
	}
	return nil
}
