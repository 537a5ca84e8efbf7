// Package metadata builds and persists the connector-neutral schema record
// of a data object.
//
// Database sources produce one ObjectMetadata per table from the rows of a
// schema query (ComposeFromQuery). File sources produce it from the column
// list of a columnar sample (ComposeFromColumnarSample). Either way the record
// is written once per extract and read back by the load phase; a re-extract
// replaces it.
package metadata

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ajitpratap0/stageflow/pkg/dataobject"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// Nullability values of Column.IsNullable.
const (
	Nullable    = "YES"
	NotNullable = "NO"
)

// Keys read from schema query rows.
const (
	KeySchemaName             = "source_schema_name"
	KeyObjectName             = "source_object_name"
	KeyColumnName             = "column_name"
	KeyOrdinalPosition        = "ordinal_position"
	KeyIsNullable             = "is_nullable"
	KeyDataType               = "data_type"
	KeyCharacterMaximumLength = "character_maximum_length"
	KeyNumericPrecision       = "numeric_precision"
	KeyNumericScale           = "numeric_scale"
	KeyPrimaryKey             = "primary_key"
)

// Column describes one column of a data object.
type Column struct {
	ColumnName             string `json:"column_name"`
	OrdinalPosition        int    `json:"ordinal_position"`
	IsNullable             string `json:"is_nullable"`
	DataType               string `json:"data_type"`
	CharacterMaximumLength *int64 `json:"character_maximum_length,omitempty"`
	NumericPrecision       *int64 `json:"numeric_precision,omitempty"`
	NumericScale           *int64 `json:"numeric_scale,omitempty"`
	PrimaryKey             bool   `json:"primary_key,omitempty"`
}

// Nullable reports whether the column accepts nulls.
func (c Column) Nullable() bool {
	return !strings.EqualFold(c.IsNullable, NotNullable)
}

// ObjectMetadata is the persisted schema record of one data object.
type ObjectMetadata struct {
	SourceObjectName string            `json:"source_object_name"`
	SourceSchemaName string            `json:"source_schema_name,omitempty"`
	ObjectSettings   pipeline.Settings `json:"object_settings"`
	Columns          []Column          `json:"columns"`
}

// PrimaryKeyColumns lists primary key column names in ordinal order.
func (m *ObjectMetadata) PrimaryKeyColumns() []string {
	var out []string
	for _, c := range m.Columns {
		if c.PrimaryKey {
			out = append(out, c.ColumnName)
		}
	}
	return out
}

// Validate fails when no column is left after exclusions; nothing can be
// extracted from or created for such an object.
func (m *ObjectMetadata) Validate() error {
	if len(m.Columns) == 0 {
		return errors.Newf(errors.ErrorTypeDiscovery,
			"column definition of object %s is empty; check excluded_columns and the source schema", m.SourceObjectName).
			WithDetail("object", m.SourceObjectName).
			WithDetail("key", "data_objects_spec.object_spec.excluded_columns")
	}
	return nil
}

// Row is one column-description row of a schema query.
type Row = map[string]interface{}

// SampleColumn is one column reported by a columnar sample.
type SampleColumn struct {
	Name string
	Type string
}

// ObjectResolver supplies the exclusion list and settings of an object.
type ObjectResolver interface {
	Resolve(name string) (*dataobject.Object, error)
}

// ComposeFromQuery groups schema query rows by (schema, object) in first
// seen order and returns one record per group. Excluded columns are dropped
// and the remaining columns are numbered from 1 in row order.
func ComposeFromQuery(rows []Row, resolver ObjectResolver) ([]*ObjectMetadata, error) {
	type key struct{ schema, object string }

	var order []key
	groups := make(map[key][]Row)
	for i, row := range rows {
		k := key{schema: stringValue(row[KeySchemaName]), object: stringValue(row[KeyObjectName])}
		if k.object == "" {
			return nil, errors.Newf(errors.ErrorTypeDiscovery, "schema query row %d has no %s", i, KeyObjectName)
		}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], row)
	}

	out := make([]*ObjectMetadata, 0, len(order))
	for _, k := range order {
		obj, err := resolver.Resolve(k.object)
		if err != nil {
			return nil, err
		}

		meta := &ObjectMetadata{
			SourceObjectName: k.object,
			SourceSchemaName: k.schema,
			ObjectSettings:   obj.Settings,
			Columns:          []Column{},
		}
		for _, row := range groups[k] {
			name := stringValue(row[KeyColumnName])
			if obj.Excludes(name) {
				continue
			}
			meta.Columns = append(meta.Columns, Column{
				ColumnName:             name,
				OrdinalPosition:        len(meta.Columns) + 1,
				IsNullable:             nullability(row[KeyIsNullable]),
				DataType:               stringValue(row[KeyDataType]),
				CharacterMaximumLength: optionalInt(row[KeyCharacterMaximumLength]),
				NumericPrecision:       optionalInt(row[KeyNumericPrecision]),
				NumericScale:           optionalInt(row[KeyNumericScale]),
				PrimaryKey:             primaryKey(row[KeyPrimaryKey]),
			})
		}
		out = append(out, meta)
	}
	return out, nil
}

// ComposeFromColumnarSample builds the record of a file-backed object from
// the columns of a sampled file. Every column is nullable.
func ComposeFromColumnarSample(columns []SampleColumn, objectName string, resolver ObjectResolver) (*ObjectMetadata, error) {
	obj, err := resolver.Resolve(objectName)
	if err != nil {
		return nil, err
	}

	meta := &ObjectMetadata{
		SourceObjectName: objectName,
		ObjectSettings:   obj.Settings,
		Columns:          []Column{},
	}
	for _, c := range columns {
		if obj.Excludes(c.Name) {
			continue
		}
		meta.Columns = append(meta.Columns, Column{
			ColumnName:      c.Name,
			OrdinalPosition: len(meta.Columns) + 1,
			IsNullable:      Nullable,
			DataType:        c.Type,
		})
	}
	return meta, nil
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func nullability(v interface{}) string {
	switch t := v.(type) {
	case bool:
		if t {
			return Nullable
		}
		return NotNullable
	case nil:
		return Nullable
	}
	if strings.EqualFold(strings.TrimSpace(stringValue(v)), NotNullable) {
		return NotNullable
	}
	return Nullable
}

// optionalInt normalises NaN-like and empty values to nil.
func optionalInt(v interface{}) *int64 {
	var n int64
	switch t := v.(type) {
	case nil:
		return nil
	case int:
		n = int64(t)
	case int16:
		n = int64(t)
	case int32:
		n = int64(t)
	case int64:
		n = t
	case uint32:
		n = int64(t)
	case uint64:
		n = int64(t)
	case float32:
		if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
			return nil
		}
		n = int64(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		n = int64(t)
	default:
		s := strings.TrimSpace(stringValue(v))
		if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return nil
		}
		n = int64(f)
	}
	return &n
}

// primaryKey accepts a boolean marker or any non-empty label such as the
// column's own name or "PRIMARY KEY".
func primaryKey(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	}
	s := strings.TrimSpace(stringValue(v))
	return s != "" && !strings.EqualFold(s, "nan") && !strings.EqualFold(s, "false") && s != "0"
}
