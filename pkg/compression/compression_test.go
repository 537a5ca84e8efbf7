package compression

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = "id,total\n1,10.50\n2,99.99\n"

func TestRoundTripAlgorithms(t *testing.T) {
	for _, alg := range []Algorithm{None, Gzip, Zstd, Snappy, LZ4} {
		t.Run(string(alg), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, alg, Default)
			require.NoError(t, err)
			_, err = io.Copy(w, strings.NewReader(strings.Repeat(sample, 50)))
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := NewReader(&buf, alg)
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			assert.Equal(t, strings.Repeat(sample, 50), string(got))
		})
	}
}

func TestCompressAndDecompressFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "orders.csv")
	require.NoError(t, os.WriteFile(src, []byte(sample), 0o600))

	gz, err := CompressFile(src, Gzip)
	require.NoError(t, err)
	assert.Equal(t, src+".gz", gz)
	assert.Equal(t, Gzip, Detect(gz))

	require.NoError(t, os.Remove(src))
	restored, err := DecompressAll(dir)
	require.NoError(t, err)
	require.Equal(t, []string{src}, restored)

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, sample, string(data))
	assert.NoFileExists(t, gz)
}

func TestDecompressPlainFileIsNoop(t *testing.T) {
	src := filepath.Join(t.TempDir(), "orders.csv")
	require.NoError(t, os.WriteFile(src, []byte(sample), 0o600))

	got, err := DecompressFile(src)
	require.NoError(t, err)
	assert.Equal(t, src, got)

	same, err := CompressFile(src, None)
	require.NoError(t, err)
	assert.Equal(t, src, same)
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Algorithm
		err  bool
	}{
		{"", None, false},
		{"GZIP", Gzip, false},
		{"gz", Gzip, false},
		{"zstd", Zstd, false},
		{"brotli", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
