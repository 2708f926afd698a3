// Package evallog provides append-only per-query telemetry sinks for
// offline evaluation. Records are written once per query, only after the
// full response is assembled; sinks are never read back at runtime.
package evallog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fairyhunter13/cv-rag/internal/domain"
)

// FileSink appends one JSON object per line to a local file.
type FileSink struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// NewFileSink opens (creating directories as needed) the JSONL file.
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: eval log path required", domain.ErrInvalidArgument)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("op=evallog.NewFileSink mkdir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) // #nosec G304 -- operator-provided log path
	if err != nil {
		return nil, fmt.Errorf("op=evallog.NewFileSink open: %w", err)
	}
	return &FileSink{f: f, path: path}, nil
}

// Append writes one record. Serialized under a mutex so concurrent
// queries never interleave lines.
func (s *FileSink) Append(_ domain.Context, rec domain.EvalRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("op=evallog.Append marshal: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("op=evallog.Append write: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// MultiSink fans one record out to several sinks. Append returns the
// first error but still attempts every sink.
type MultiSink struct {
	sinks []domain.EvalSink
}

// NewMultiSink combines sinks; nil entries are skipped.
func NewMultiSink(sinks ...domain.EvalSink) *MultiSink {
	out := make([]domain.EvalSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiSink{sinks: out}
}

// Append fans out to all sinks.
func (m *MultiSink) Append(ctx domain.Context, rec domain.EvalRecord) error {
	var first error
	for _, s := range m.sinks {
		if err := s.Append(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes all sinks.
func (m *MultiSink) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
