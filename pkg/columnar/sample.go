package columnar

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/google/renameio/v2"

	"github.com/ajitpratap0/stageflow/pkg/compression"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/metadata"
)

const (
	// DefaultSampleRows bounds how many data rows are parsed for inference.
	DefaultSampleRows = 10000
	// SampleFileName is the Parquet sample written next to object metadata.
	SampleFileName = "sample.parquet"
)

// Options control CSV parsing for inference.
type Options struct {
	// Delimiter separates fields. Zero means comma.
	Delimiter rune
	// SampleRows bounds the rows read. Zero means DefaultSampleRows.
	SampleRows int
	// LazyQuotes tolerates bare quotes inside unquoted fields.
	LazyQuotes bool
	// SamplePath is where the Parquet sample is written. Empty keeps the
	// sample in memory only.
	SamplePath string
}

// Sampler infers column types from CSV files.
type Sampler struct {
	mem memory.Allocator
}

// NewSampler creates a sampler. A nil allocator uses the Go allocator.
func NewSampler(mem memory.Allocator) *Sampler {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &Sampler{mem: mem}
}

// Infer reads the header and up to opts.SampleRows rows of the CSV file at
// path (gzip and the other supported codecs are detected by extension) and
// returns its columns in file order.
func (s *Sampler) Infer(path string, opts Options) ([]metadata.SampleColumn, error) {
	rc, err := compression.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open sample file").WithDetail("path", path)
	}
	defer rc.Close()

	return s.InferReader(rc, path, opts)
}

// InferReader is Infer over an already opened stream. name is only used in
// error details.
func (s *Sampler) InferReader(r io.Reader, name string, opts Options) ([]metadata.SampleColumn, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if opts.SampleRows <= 0 {
		opts.SampleRows = DefaultSampleRows
	}

	reader := csv.NewInferringReader(r,
		csv.WithAllocator(s.mem),
		csv.WithComma(opts.Delimiter),
		csv.WithHeader(true),
		csv.WithChunk(opts.SampleRows),
		csv.WithLazyQuotes(opts.LazyQuotes),
		csv.WithNullReader(true, ""),
	)
	defer reader.Release()

	if !reader.Next() {
		if err := reader.Err(); err != nil && err != io.EOF {
			return nil, errors.Wrap(err, errors.ErrorTypeDiscovery,
				"failed to parse sample; check columns_delimiter and quote_char of the object").
				WithDetail("path", name)
		}
		if reader.Schema() == nil {
			return nil, errors.New(errors.ErrorTypeDiscovery, "sample file has no data rows").WithDetail("path", name)
		}
	}

	rec := reader.Record()
	if rec != nil {
		rec.Retain()
		defer rec.Release()
	}

	schema, err := s.roundTrip(reader.Schema(), rec, opts.SamplePath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDiscovery, "failed to write parquet sample").WithDetail("path", name)
	}
	return Columns(schema), nil
}

// roundTrip writes the sample through Parquet and returns the schema read
// back from it.
func (s *Sampler) roundTrip(schema *arrow.Schema, rec arrow.Record, samplePath string) (*arrow.Schema, error) {
	var buf bytes.Buffer

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithAllocator(s.mem),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(s.mem))

	fw, err := pqarrow.NewFileWriter(schema, &buf, props, arrowProps)
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.NumRows() > 0 {
		if err := fw.Write(rec); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}

	if samplePath != "" {
		if err := os.MkdirAll(filepath.Dir(samplePath), 0o755); err != nil {
			return nil, err
		}
		if err := renameio.WriteFile(samplePath, buf.Bytes(), 0o644); err != nil {
			return nil, err
		}
	}

	return ReadSchema(bytes.NewReader(buf.Bytes()), s.mem)
}

// ReadSchema returns the Arrow schema of a Parquet file.
func ReadSchema(r parquet.ReaderAtSeeker, mem memory.Allocator) (*arrow.Schema, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	fr, err := file.NewParquetReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer fr.Close()

	ar, err := pqarrow.NewFileReader(fr, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}
	return ar.Schema()
}

// Columns converts an Arrow schema to sample columns.
func Columns(schema *arrow.Schema) []metadata.SampleColumn {
	fields := schema.Fields()
	out := make([]metadata.SampleColumn, 0, len(fields))
	for _, f := range fields {
		out = append(out, metadata.SampleColumn{Name: f.Name, Type: TypeName(f.Type)})
	}
	return out
}

// TypeName renders an Arrow type in the form used by type mapping files.
func TypeName(dt arrow.DataType) string {
	switch t := dt.(type) {
	case *arrow.NullType:
		return "string"
	case *arrow.BooleanType:
		return "bool"
	case *arrow.Int8Type:
		return "int8"
	case *arrow.Int16Type:
		return "int16"
	case *arrow.Int32Type:
		return "int32"
	case *arrow.Int64Type:
		return "int64"
	case *arrow.Uint8Type:
		return "uint8"
	case *arrow.Uint16Type:
		return "uint16"
	case *arrow.Uint32Type:
		return "uint32"
	case *arrow.Uint64Type:
		return "uint64"
	case *arrow.Float16Type:
		return "halffloat"
	case *arrow.Float32Type:
		return "float"
	case *arrow.Float64Type:
		return "double"
	case *arrow.StringType, *arrow.LargeStringType:
		return "string"
	case *arrow.BinaryType, *arrow.LargeBinaryType:
		return "binary"
	case *arrow.Date32Type:
		return "date32[day]"
	case *arrow.Date64Type:
		return "date64[ms]"
	case *arrow.Time32Type:
		return "time32[" + t.Unit.String() + "]"
	case *arrow.Time64Type:
		return "time64[" + t.Unit.String() + "]"
	case *arrow.TimestampType:
		if t.TimeZone != "" {
			return "timestamp[" + t.Unit.String() + ", tz=" + t.TimeZone + "]"
		}
		return "timestamp[" + t.Unit.String() + "]"
	case *arrow.Decimal128Type:
		return fmt.Sprintf("decimal128(%d, %d)", t.Precision, t.Scale)
	default:
		return dt.String()
	}
}
