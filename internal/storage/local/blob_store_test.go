package local_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ccslice/internal/storage/local"
)

func TestNewValidatesBaseDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	file := filepath.Join(root, "summary.yaml")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	tests := []struct {
		name    string
		dir     string
		wantErr string
	}{
		{name: "existing dir", dir: root},
		{name: "created on demand", dir: filepath.Join(root, "filtered_data", "CC-MAIN-2024-10")},
		{name: "blank", dir: "  ", wantErr: "base directory is required"},
		{name: "file instead of dir", dir: file, wantErr: "not a directory"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store, err := local.New(local.Config{BaseDir: tt.dir})
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, store)
			entries, err := os.ReadDir(tt.dir)
			require.NoError(t, err)
			for _, e := range entries {
				require.NotEqual(t, ".ccslice_writable", e.Name())
			}
		})
	}
}

func TestNewRejectsReadOnlyDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	// #nosec G302 -- read-only directory is the condition under test.
	require.NoError(t, os.Chmod(dir, 0o500))
	// #nosec G302 -- restore so t.TempDir cleanup succeeds.
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	_, err := local.New(local.Config{BaseDir: dir})
	require.ErrorContains(t, err, "not writable")
}

func TestPutObjectLaysOutSessionFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	for _, path := range []string{"doc_0000.txt", "runs/1/doc_0003.txt", "runs/1/summary.yaml"} {
		uri, err := store.PutObject(ctx, path, "text/plain", strings.NewReader("URL: https://example.com/"+path))
		require.NoError(t, err, path)
		require.Equal(t, "file://"+filepath.Join(dir, path), uri)

		// #nosec G304 -- reads back from the test's temp directory.
		got, err := os.ReadFile(filepath.Join(dir, path))
		require.NoError(t, err)
		require.Equal(t, "URL: https://example.com/"+path, string(got))
	}

	for _, bad := range []string{"", "../escape.txt", "runs/../../escape.txt"} {
		_, err := store.PutObject(ctx, bad, "text/plain", strings.NewReader("x"))
		require.Error(t, err, bad)
	}
}

func TestPutObjectReplacesAtomically(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	for _, body := range []string{"first run", "second run"} {
		_, err := store.PutObject(context.Background(), "doc_0000.txt", "text/plain", strings.NewReader(body))
		require.NoError(t, err)
	}
	// #nosec G304 -- reads back from the test's temp directory.
	got, err := os.ReadFile(filepath.Join(dir, "doc_0000.txt"))
	require.NoError(t, err)
	require.Equal(t, "second run", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestGetObjectAcceptsPathForms(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := store.PutObject(ctx, "index/CC-MAIN-2024-10.parquet", "application/octet-stream", bytes.NewReader([]byte("PAR1")))
	require.NoError(t, err)

	for _, path := range []string{"index/CC-MAIN-2024-10.parquet", uri, filepath.Join(dir, "index/CC-MAIN-2024-10.parquet")} {
		rc, err := store.GetObject(ctx, path)
		require.NoError(t, err, path)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		require.Equal(t, "PAR1", string(data))
	}

	_, err = store.GetObject(ctx, "index/missing.parquet")
	require.Error(t, err)
	_, err = store.GetObject(ctx, "../outside")
	require.Error(t, err)
}
