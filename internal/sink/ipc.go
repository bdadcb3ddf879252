package sink

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"trino-ingest/internal/domain"
	"trino-ingest/internal/schema"
)

// IPCSink writes rows to an Arrow IPC (Feather v2) file.
type IPCSink struct {
	*ArrowSink
	path    string
	tmpPath string
	file    *os.File
	writer  *ipc.FileWriter
	done    bool
}

var _ domain.Sink = (*IPCSink)(nil)

// NewIPCSink creates the output file and its writer.
func NewIPCSink(s schema.Schema, path string, mem memory.Allocator, batchSize int) (*IPCSink, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath) //nolint:gosec // output path is operator-controlled
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", tmpPath, err)
	}
	is := &IPCSink{path: path, tmpPath: tmpPath, file: f}
	is.ArrowSink = NewArrowSink(s, mem, batchSize, is.writeRecord)

	w, err := ipc.NewFileWriter(writerOnly{f}, ipc.WithSchema(is.ArrowSink.Schema()), ipc.WithAllocator(mem))
	if err != nil {
		_ = is.ArrowSink.Close()
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("create arrow ipc writer: %w", err)
	}
	is.writer = w
	return is, nil
}

func (s *IPCSink) writeRecord(rec arrow.Record) error {
	return s.writer.Write(rec)
}

// Finish writes the footer and moves the file into place.
func (s *IPCSink) Finish() error {
	if err := s.ArrowSink.Finish(); err != nil {
		return err
	}
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("close arrow ipc writer: %w", err)
	}
	s.writer = nil
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.tmpPath, err)
	}
	s.file = nil
	if err := os.Rename(s.tmpPath, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", s.tmpPath, err)
	}
	s.done = true
	return nil
}

// Close releases the writer and removes the temporary file of an unfinished run.
func (s *IPCSink) Close() error {
	_ = s.ArrowSink.Close()
	if s.writer != nil {
		_ = s.writer.Close()
		s.writer = nil
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if !s.done {
		if err := os.Remove(s.tmpPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", s.tmpPath, err)
		}
	}
	return nil
}
