package objectstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trino-ingest/internal/config"
	"trino-ingest/internal/domain"
)

func TestParseS3Path(t *testing.T) {
	tests := []struct {
		path        string
		bucket, key string
		wantErr     bool
	}{
		{path: "s3://lake/exports/orders.parquet", bucket: "lake", key: "exports/orders.parquet"},
		{path: "s3://lake/a.parquet", bucket: "lake", key: "a.parquet"},
		{path: "s3://lake/", wantErr: true},
		{path: "s3:///key", wantErr: true},
		{path: "gs://lake/key", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			bucket, key, err := ParseS3Path(tc.path)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.bucket, bucket)
			assert.Equal(t, tc.key, key)
		})
	}
}

func TestParseGCSPath(t *testing.T) {
	bucket, key, err := parseGCSPath("gs://warehouse/daily/2024-01-01.parquet")
	require.NoError(t, err)
	assert.Equal(t, "warehouse", bucket)
	assert.Equal(t, "daily/2024-01-01.parquet", key)

	_, _, err = parseGCSPath("gs://warehouse")
	require.Error(t, err)
	_, _, err = parseGCSPath("s3://warehouse/x")
	require.Error(t, err)
}

func TestParseAzurePath(t *testing.T) {
	tests := []struct {
		path           string
		container, key string
		wantErr        bool
	}{
		{path: "abfss://raw@acct.dfs.core.windows.net/orders/o.parquet", container: "raw", key: "orders/o.parquet"},
		{path: "az://raw/orders/o.parquet", container: "raw", key: "orders/o.parquet"},
		{path: "https://acct.blob.core.windows.net/raw/o.parquet", container: "raw", key: "o.parquet"},
		{path: "https://example.com/raw/o.parquet", wantErr: true},
		{path: "abfss://acct.dfs.core.windows.net/o.parquet", wantErr: true},
		{path: "ftp://raw/o.parquet", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			container, key, err := parseAzurePath(tc.path)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.container, container)
			assert.Equal(t, tc.key, key)
		})
	}
}

type put struct {
	local, bucket, key string
}

type fakeStore struct {
	mu   sync.Mutex
	puts []put
	err  error
}

func (s *fakeStore) Put(_ context.Context, localPath, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, put{localPath, bucket, key})
	return s.err
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.parquet")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRouter_Dispatch(t *testing.T) {
	local := writeFile(t, "PAR1")
	s3Store, azStore := &fakeStore{}, &fakeStore{}
	r := NewRouter(config.StorageConfig{}, nil)
	r.Register("s3", s3Store)
	r.Register("az", azStore)

	ctx := context.Background()
	require.NoError(t, r.Upload(ctx, local, "s3://lake/orders.parquet"))
	require.NoError(t, r.Upload(ctx, local, "abfss://raw@acct.dfs.core.windows.net/o.parquet"))
	require.NoError(t, r.Upload(ctx, local, "az://raw/p.parquet"))

	assert.Equal(t, []put{{local, "lake", "orders.parquet"}}, s3Store.puts)
	assert.Equal(t, []put{{local, "raw", "o.parquet"}, {local, "raw", "p.parquet"}}, azStore.puts)
}

func TestRouter_Errors(t *testing.T) {
	local := writeFile(t, "PAR1")
	r := NewRouter(config.StorageConfig{}, nil)
	ctx := context.Background()
	var verr *domain.ValidationError

	require.ErrorAs(t, r.Upload(ctx, local, "ftp://host/file"), &verr)
	require.ErrorAs(t, r.Upload(ctx, local, "s3://lake/"), &verr)
	require.ErrorAs(t, r.Upload(ctx, local, "az://raw/"), &verr)

	// No credentials configured for the lazily built stores.
	require.ErrorAs(t, r.Upload(ctx, local, "s3://lake/key"), &verr)
	require.ErrorAs(t, r.Upload(ctx, local, "az://raw/key"), &verr)

	failing := &fakeStore{err: errors.New("access denied")}
	r.Register("s3", failing)
	require.ErrorContains(t, r.Upload(ctx, local, "s3://lake/key"), "access denied")
	require.Error(t, r.Upload(ctx, filepath.Join(t.TempDir(), "missing"), "s3://lake/key"))
}

func TestS3Store_PutObject(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   []byte
		auth   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method, path, auth = r.Method, r.URL.Path, r.Header.Get("Authorization")
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store, err := NewS3Store(config.StorageConfig{
		S3KeyID:    "AKID",
		S3Secret:   "secret",
		S3Endpoint: srv.URL,
	})
	require.NoError(t, err)

	local := writeFile(t, "PAR1 data PAR1")
	require.NoError(t, store.Put(context.Background(), local, "lake", "exports/orders.parquet"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/lake/exports/orders.parquet", path)
	assert.Equal(t, "PAR1 data PAR1", string(body))
	assert.Contains(t, auth, "Credential=AKID/")
}

func TestNewS3Store_RequiresCredentials(t *testing.T) {
	_, err := NewS3Store(config.StorageConfig{S3KeyID: "only-id"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}
