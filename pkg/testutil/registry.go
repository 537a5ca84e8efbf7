package testutil

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stageflow/pkg/connector/core"
	"github.com/ajitpratap0/stageflow/pkg/connector/registry"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// Kinds of the fake connectors.
const (
	FakeDatabaseKind = "fakedb"
	FakeFilesKind    = "fakefiles"
)

// Statement templates of the fake database.
const (
	FakeMetadataTemplate = "SELECT * FROM columns WHERE table_schema = '{schema}' AND {table_statement_list};"
	FakeExtractTemplate  = "COPY (SELECT {column_list} FROM {schema_name}.{table_name}) TO '{destination}' DELIMITER '{field_delimiter}';"
	FakeCreateTemplate   = "CREATE TABLE {schema_table_name} (\n{column_datatype_list}{primary_key}\n);"
	FakeLoadTemplate     = "LOAD '{path_to_data_file}' INTO {schema_table_name} {column_list} SKIP {skip_leading_rows};"
)

var fakeDatabaseResources = fstest.MapFS{
	core.MetadataTemplate:             {Data: []byte(FakeMetadataTemplate)},
	core.ExtractTemplate:              {Data: []byte(FakeExtractTemplate)},
	core.CreateTableTemplate:          {Data: []byte(FakeCreateTemplate)},
	core.LoadTemplate:                 {Data: []byte(FakeLoadTemplate)},
	"extractor_type_transformer.json": {Data: []byte(`{"bytea": "encode({column_name}, 'base64') AS {column_name}"}`)},
	"type_mapping/" + FakeDatabaseKind + ".json": {Data: []byte(`{
  "integer": "INTEGER",
  "numeric": "numeric",
  "character varying": "varchar",
  "text": "TEXT",
  "boolean": "BOOLEAN",
  "bytea": "BYTES",
  "timestamp without time zone": "TIMESTAMP"
}`)},
	"type_mapping/" + FakeFilesKind + ".json": {Data: []byte(`{
  "int64": "INTEGER",
  "double": "DOUBLE",
  "string": "TEXT",
  "bool": "BOOLEAN"
}`)},
}

// NewRegistry returns a private registry holding the fake database and
// fake file connectors. Factories return fresh fakes.
func NewRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(registry.Descriptor{
		Kind:        FakeDatabaseKind,
		Category:    pipeline.CategoryDatabase,
		Description: "recording database fake",
		Resources:   fakeDatabaseResources,
		NewSource:   func(context.Context, pipeline.Endpoint) (core.Connector, error) { return NewFakeDatabase(), nil },
		NewTarget:   func(context.Context, pipeline.Endpoint) (core.Connector, error) { return NewFakeDatabase(), nil },
	}))
	require.NoError(t, reg.Register(registry.Descriptor{
		Kind:        FakeFilesKind,
		Category:    pipeline.CategoryFile,
		Description: "recording file fake",
		NewSource:   func(context.Context, pipeline.Endpoint) (core.Connector, error) { return NewFakeFiles(nil), nil },
		NewTarget:   func(context.Context, pipeline.Endpoint) (core.Connector, error) { return NewFakeFiles(nil), nil },
	}))
	return reg
}

// DatabaseEndpoint is an endpoint of the fake database.
func DatabaseEndpoint(attrs map[string]interface{}) pipeline.Endpoint {
	return pipeline.NewEndpoint(FakeDatabaseKind, pipeline.CategoryDatabase, attrs)
}

// FilesEndpoint is an endpoint of the fake file connector.
func FilesEndpoint(attrs map[string]interface{}) pipeline.Endpoint {
	return pipeline.NewEndpoint(FakeFilesKind, pipeline.CategoryFile, attrs)
}

// ColumnRow is one schema query row of the fake database.
func ColumnRow(object, column, dataType string, nullable bool, extra map[string]interface{}) core.Row {
	isNullable := "YES"
	if !nullable {
		isNullable = "NO"
	}
	row := core.Row{
		"source_schema_name": "public",
		"source_object_name": object,
		"column_name":        column,
		"is_nullable":        isNullable,
		"data_type":          dataType,
	}
	for k, v := range extra {
		row[k] = v
	}
	return row
}
