package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"trino-ingest/internal/domain"
	"trino-ingest/internal/schema"
)

// Uploader publishes a finished local file. Implemented by objectstore.Router.
type Uploader interface {
	Upload(ctx context.Context, localPath, destURI string) error
}

// ParquetOptions configures a ParquetSink.
type ParquetOptions struct {
	Compression string // snappy (default), zstd, gzip, none
	BatchSize   int
	Allocator   memory.Allocator
	// Upload, when set, is the object store URI the finished file is copied to.
	Upload   string
	Uploader Uploader
}

// ParquetSink writes rows to a Parquet file. The file is written under a
// temporary name and renamed into place by Finish, so a failed run never
// leaves a partial file at path.
type ParquetSink struct {
	*ArrowSink
	ctx     context.Context
	path    string
	tmpPath string
	file    *os.File
	writer  *pqarrow.FileWriter
	opts    ParquetOptions
	done    bool
}

var _ domain.Sink = (*ParquetSink)(nil)

// writerOnly hides Close so the Parquet writer cannot close the file.
type writerOnly struct{ io.Writer }

// NewParquetSink creates the output file and its writer.
func NewParquetSink(ctx context.Context, s schema.Schema, path string, opts ParquetOptions) (*ParquetSink, error) {
	codec, err := compressionCodec(opts.Compression)
	if err != nil {
		return nil, err
	}
	if opts.Upload != "" && opts.Uploader == nil {
		return nil, domain.ErrValidation("parquet sink: upload to %s requires an uploader", opts.Upload)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath) //nolint:gosec // output path is operator-controlled
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", tmpPath, err)
	}

	ps := &ParquetSink{ctx: ctx, path: path, tmpPath: tmpPath, file: f, opts: opts}
	mem := opts.Allocator
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	ps.ArrowSink = NewArrowSink(s, mem, opts.BatchSize, ps.writeRecord)

	props := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithAllocator(mem),
		parquet.WithCreatedBy("trino-ingest"),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema(), pqarrow.WithAllocator(mem))
	w, err := pqarrow.NewFileWriter(ps.ArrowSink.Schema(), writerOnly{f}, props, arrowProps)
	if err != nil {
		_ = ps.ArrowSink.Close()
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	ps.writer = w
	return ps, nil
}

func (p *ParquetSink) writeRecord(rec arrow.Record) error {
	return p.writer.Write(rec)
}

// Path returns the final output path.
func (p *ParquetSink) Path() string { return p.path }

// Finish flushes the last batch, writes the footer, moves the file into
// place and uploads it when configured.
func (p *ParquetSink) Finish() error {
	if err := p.ArrowSink.Finish(); err != nil {
		return err
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	p.writer = nil
	if err := p.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", p.tmpPath, err)
	}
	p.file = nil
	if err := os.Rename(p.tmpPath, p.path); err != nil {
		return fmt.Errorf("rename %s: %w", p.tmpPath, err)
	}
	p.done = true

	if p.opts.Upload != "" {
		if err := p.opts.Uploader.Upload(p.ctx, p.path, p.opts.Upload); err != nil {
			return fmt.Errorf("upload %s: %w", p.path, err)
		}
	}
	return nil
}

// Close releases the writer. Without a successful Finish the temporary file
// is removed.
func (p *ParquetSink) Close() error {
	_ = p.ArrowSink.Close()
	if p.writer != nil {
		_ = p.writer.Close()
		p.writer = nil
	}
	if p.file != nil {
		_ = p.file.Close()
		p.file = nil
	}
	if !p.done {
		if err := os.Remove(p.tmpPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", p.tmpPath, err)
		}
	}
	return nil
}

func compressionCodec(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, domain.ErrValidation("unknown parquet compression %q", name)
	}
}
