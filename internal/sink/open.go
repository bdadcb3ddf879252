package sink

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"trino-ingest/internal/config"
	"trino-ingest/internal/domain"
	"trino-ingest/internal/schema"
)

// Options carries dependencies shared by all sinks.
type Options struct {
	Uploader  Uploader
	Allocator memory.Allocator
}

// Open creates the sink described by out for schema s.
func Open(ctx context.Context, out config.OutputConfig, s schema.Schema, opts Options) (domain.Sink, error) {
	switch out.Type {
	case config.OutputParquet:
		ps, err := NewParquetSink(ctx, s, out.Path, ParquetOptions{
			Compression: out.Compression,
			BatchSize:   out.BatchSize,
			Allocator:   opts.Allocator,
			Upload:      out.Upload,
			Uploader:    opts.Uploader,
		})
		if err != nil {
			return nil, err
		}
		return ps, nil
	case config.OutputArrow:
		is, err := NewIPCSink(s, out.Path, opts.Allocator, out.BatchSize)
		if err != nil {
			return nil, err
		}
		return is, nil
	case config.OutputDuckDB:
		ds, err := NewDuckDBSink(ctx, s, out.Path, out.Table, out.Mode)
		if err != nil {
			return nil, err
		}
		return ds, nil
	case "":
		return nil, domain.ErrValidation("no output configured")
	default:
		return nil, domain.ErrValidation("unknown output type %q", out.Type)
	}
}
