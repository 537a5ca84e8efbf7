package csv

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stageflow/pkg/connector/core"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

var (
	_ core.FileExtractor = (*Connector)(nil)
	_ core.Publisher     = (*Connector)(nil)
)

func newConnector(t *testing.T, attrs map[string]interface{}) *Connector {
	t.Helper()
	c, err := New(context.Background(), pipeline.NewEndpoint(Kind, pipeline.CategoryFile, attrs))
	require.NoError(t, err)
	return c
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func TestExtractFiles(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{
		"orders_10.csv": "id\n10\n",
		"orders_2.csv":  "id\n2\n",
		"readme.txt":    "skip",
	})
	dest := t.TempDir()
	c := newConnector(t, nil)

	staged, err := c.ExtractFiles(context.Background(), core.FileSet{Object: "orders", SourceDir: src}, dest)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dest, "orders_2.csv"), filepath.Join(dest, "orders_10.csv")}, staged)

	data, err := os.ReadFile(staged[1])
	require.NoError(t, err)
	assert.Equal(t, "id\n10\n", string(data))
}

func TestExtractFilesErrors(t *testing.T) {
	c := newConnector(t, nil)
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"a.csv": "x"})

	tests := []struct {
		name string
		set  core.FileSet
	}{
		{"missing dir", core.FileSet{Object: "a", SourceDir: filepath.Join(src, "nope")}},
		{"missing literal file", core.FileSet{Object: "a", SourceDir: src, FileNames: []string{"b.csv"}}},
		{"pattern without match", core.FileSet{Object: "a", SourceDir: src, FileNames: []string{"*.tsv"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.ExtractFiles(context.Background(), tt.set, t.TempDir())
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
		})
	}
}

func TestPublishToDestinationDir(t *testing.T) {
	root := t.TempDir()
	c := newConnector(t, map[string]interface{}{"destination_dir_path": root})

	staging := t.TempDir()
	writeFiles(t, staging, map[string]string{"orders.csv": "id\n1\n"})
	writeFiles(t, root, map[string]string{"orders_copy/stale.csv": "old"})

	err := c.Publish(context.Background(), core.Publication{
		Object:      "orders",
		Destination: "orders_copy",
		Files:       []string{filepath.Join(staging, "orders.csv")},
		Recreate:    true,
		Compression: pipeline.CompressionGzip,
	})
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(root, "orders_copy", "stale.csv"))
	raw, err := os.ReadFile(filepath.Join(root, "orders_copy", "orders.csv.gz"))
	require.NoError(t, err)
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n", string(plain))
}

func TestPublishToObjectDirectory(t *testing.T) {
	target := t.TempDir()
	staging := t.TempDir()
	writeFiles(t, staging, map[string]string{"orders.csv": "id\n1\n"})
	writeFiles(t, target, map[string]string{"other.csv": "keep"})

	c := newConnector(t, nil)
	err := c.Publish(context.Background(), core.Publication{
		Object:    "orders",
		Files:     []string{filepath.Join(staging, "orders.csv")},
		Directory: target,
		Recreate:  true,
	})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(target, "orders.csv"))
	assert.FileExists(t, filepath.Join(target, "other.csv"))
}

func TestPublishMissingTargetDirIsFatal(t *testing.T) {
	c := newConnector(t, map[string]interface{}{"destination_dir_path": filepath.Join(t.TempDir(), "missing")})
	err := c.Publish(context.Background(), core.Publication{Object: "orders", Destination: "orders"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	err = newConnector(t, nil).Publish(context.Background(), core.Publication{Object: "orders", Destination: "orders"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
