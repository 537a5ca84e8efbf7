// Package compression compresses and decompresses staged data files.
//
// Staged files are compressed before they are uploaded to object storage
// and decompressed before a database target bulk-loads them. The algorithm
// of an existing file is detected from its extension.
//
// # Basic Usage
//
//	dst, err := compression.CompressFile("orders.csv", compression.Gzip)
//	// dst == "orders.csv.gz"
//
//	restored, err := compression.DecompressFile(dst)
//	// restored == "orders.csv"
package compression

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression, written in parallel blocks
	Gzip Algorithm = "gzip"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
)

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Best maximizes compression ratio.
	Best Level = 9
)

var extensions = map[Algorithm]string{
	Gzip:   ".gz",
	Zstd:   ".zst",
	Snappy: ".sz",
	LZ4:    ".lz4",
}

// Parse validates an algorithm name. The empty string means None.
func Parse(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case "", None:
		return None, nil
	case Gzip, Zstd, Snappy, LZ4:
		return a, nil
	case "gz":
		return Gzip, nil
	}
	return "", fmt.Errorf("unsupported compression algorithm: %s", s)
}

// Extension returns the file extension of the algorithm, "" for None.
func (a Algorithm) Extension() string {
	return extensions[a]
}

// Detect returns the algorithm implied by the file extension of path.
func Detect(path string) Algorithm {
	ext := strings.ToLower(filepath.Ext(path))
	for alg, e := range extensions {
		if e == ext {
			return alg
		}
	}
	return None
}

// NewWriter wraps w in a compressing writer. Closing the returned writer
// flushes the compressed stream but does not close w.
func NewWriter(w io.Writer, alg Algorithm, level Level) (io.WriteCloser, error) {
	switch alg {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return pgzip.NewWriterLevel(w, mapGzipLevel(level))
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(mapZstdLevel(level)))
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case LZ4:
		zw := lz4.NewWriter(w)
		if err := zw.Apply(lz4.CompressionLevelOption(mapLZ4Level(level))); err != nil {
			return nil, fmt.Errorf("failed to configure lz4 writer: %w", err)
		}
		return zw, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

// NewReader wraps r in a decompressing reader.
func NewReader(r io.Reader, alg Algorithm) (io.ReadCloser, error) {
	switch alg {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		return pgzip.NewReader(r)
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

// Open opens path for reading, transparently decompressing it according to
// its extension.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path) //nolint:gosec // G304: staged file path
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f, Detect(path))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileReadCloser{ReadCloser: r, file: f}, nil
}

// CompressFile writes src compressed with alg next to it and returns the new
// path. The source file is left in place.
func CompressFile(src string, alg Algorithm) (string, error) {
	if alg == None {
		return src, nil
	}
	dst := src + alg.Extension()

	in, err := os.Open(src) //nolint:gosec // G304: staged file path
	if err != nil {
		return "", err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) //nolint:gosec // G304: staged file path
	if err != nil {
		return "", err
	}

	zw, err := NewWriter(out, alg, Default)
	if err != nil {
		_ = out.Close()
		return "", err
	}
	if _, err := io.Copy(zw, in); err != nil {
		_ = zw.Close()
		_ = out.Close()
		return "", fmt.Errorf("failed to compress %s: %w", src, err)
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return "", err
	}
	return dst, out.Close()
}

// DecompressFile replaces a compressed file by its decompressed content and
// returns the new path. Uncompressed files are returned unchanged.
func DecompressFile(path string) (string, error) {
	alg := Detect(path)
	if alg == None {
		return path, nil
	}
	dst := strings.TrimSuffix(path, filepath.Ext(path))

	r, err := Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = r.Close() }()

	out, err := os.Create(dst) //nolint:gosec // G304: staged file path
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("failed to decompress %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dst, os.Remove(path)
}

// DecompressAll decompresses every compressed regular file directly inside dir.
func DecompressAll(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || Detect(e.Name()) == None {
			continue
		}
		p, err := DecompressFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type fileReadCloser struct {
	io.ReadCloser
	file *os.File
}

func (f *fileReadCloser) Close() error {
	err := f.ReadCloser.Close()
	if cerr := f.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func mapGzipLevel(level Level) int {
	switch {
	case level <= Fastest:
		return pgzip.BestSpeed
	case level >= Best:
		return pgzip.BestCompression
	default:
		return pgzip.DefaultCompression
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch {
	case level <= Fastest:
		return zstd.SpeedFastest
	case level >= Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch {
	case level <= Fastest:
		return lz4.Fast
	case level >= Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}
