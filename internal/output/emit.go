package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Format selects how a structured sink renders its input.
type Format string

const (
	// FormatJSON aggregates everything into one Document written on Close.
	FormatJSON Format = "json"
	// FormatNDJSON streams one Event per line as it arrives.
	FormatNDJSON Format = "ndjson"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatNDJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// InferFormat picks a format from the file extension of path.
func InferFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return FormatJSON, nil
	case ".ndjson", ".jsonl":
		return FormatNDJSON, nil
	default:
		return "", fmt.Errorf("cannot infer output format from file extension %q", ext)
	}
}

// structuredSink is the JSON/NDJSON rendering shared by EmitSink and FileSink.
type structuredSink struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	format Format
	doc    Document
}

func (s *structuredSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == FormatJSON {
		s.doc.add(v)
		return nil
	}
	return encodeEvent(s.w, v)
}

func (s *structuredSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.format == FormatJSON {
		err = encodeDocument(s.w, s.doc)
	}
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
	}
	return err
}

// EmitSink writes structured output to a caller-owned writer, usually stdout.
type EmitSink struct {
	structuredSink
}

func NewEmitSink(w io.Writer, format string) (*EmitSink, error) {
	if w == nil {
		return nil, errors.New("emit sink writer must not be nil")
	}
	f, err := ParseFormat(format)
	if err != nil {
		return nil, fmt.Errorf("emit: %w", err)
	}
	return &EmitSink{structuredSink{w: w, format: f}}, nil
}

// FileSink writes structured output to a file it owns. An empty format is
// inferred from the file extension.
type FileSink struct {
	structuredSink
	path string
}

func NewFileSink(path string, format string) (*FileSink, error) {
	if path == "" {
		return nil, errors.New("output path required")
	}

	var (
		f   Format
		err error
	)
	if format == "" {
		f, err = InferFormat(path)
	} else {
		f, err = ParseFormat(format)
	}
	if err != nil {
		return nil, err
	}

	file, err := createFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return &FileSink{structuredSink: structuredSink{w: file, closer: file, format: f}, path: path}, nil
}

func (s *FileSink) Close() error {
	if err := s.structuredSink.Close(); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// createFile creates path, making parent directories as needed.
func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}
