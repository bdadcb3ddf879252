// Package objectstore publishes finished output files to S3, GCS, or Azure Blob Storage.
package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"trino-ingest/internal/config"
	"trino-ingest/internal/domain"
)

// Store copies a local file to an object in one bucket or container.
type Store interface {
	Put(ctx context.Context, localPath, bucket, key string) error
}

// Router implements sink.Uploader by dispatching on the destination URI scheme.
// Stores are created on first use so that credentials are only required for
// the clouds a run actually publishes to.
type Router struct {
	cfg    config.StorageConfig
	logger *slog.Logger

	mu     sync.Mutex
	stores map[string]Store
}

// NewRouter creates a router using the given storage credentials.
func NewRouter(cfg config.StorageConfig, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{cfg: cfg, logger: logger, stores: make(map[string]Store)}
}

// Register installs a store for a scheme, replacing the lazily built default.
func (r *Router) Register(scheme string, s Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[scheme] = s
}

// Upload copies localPath to destURI.
func (r *Router) Upload(ctx context.Context, localPath, destURI string) error {
	u, err := url.Parse(destURI)
	if err != nil {
		return domain.ErrValidation("invalid upload destination %q: %v", destURI, err)
	}

	var bucket, key string
	switch u.Scheme {
	case "s3":
		bucket, key, err = ParseS3Path(destURI)
	case "gs":
		bucket, key, err = parseGCSPath(destURI)
	case "az", "abfss", "https":
		bucket, key, err = parseAzurePath(destURI)
	default:
		return domain.ErrValidation("unsupported upload scheme %q in %q", u.Scheme, destURI)
	}
	if err != nil {
		return domain.ErrValidation("%v", err)
	}
	if key == "" {
		return domain.ErrValidation("empty object key in %q", destURI)
	}

	store, err := r.store(u.Scheme)
	if err != nil {
		return err
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}

	start := time.Now()
	if err := store.Put(ctx, localPath, bucket, key); err != nil {
		return fmt.Errorf("upload to %s: %w", destURI, err)
	}
	r.logger.Info("uploaded output",
		"dest", destURI, "bytes", info.Size(), "duration", time.Since(start))
	return nil
}

func (r *Router) store(scheme string) (Store, error) {
	kind := scheme
	if scheme == "abfss" || scheme == "https" {
		kind = "az"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[kind]; ok {
		return s, nil
	}

	var (
		s   Store
		err error
	)
	switch kind {
	case "s3":
		s, err = NewS3Store(r.cfg)
	case "gs":
		s, err = NewGCSStore(context.Background(), r.cfg)
	case "az":
		s, err = NewAzureStore(r.cfg)
	}
	if err != nil {
		return nil, err
	}
	r.stores[kind] = s
	return s, nil
}
