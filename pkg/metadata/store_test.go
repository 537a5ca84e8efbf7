package metadata

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

func TestStoreSaveLoad(t *testing.T) {
	layout := pipeline.Layout{OutputDir: t.TempDir()}
	store := NewStore(layout)

	length := int64(255)
	meta := &ObjectMetadata{
		SourceObjectName: "orders",
		SourceSchemaName: "sales",
		ObjectSettings:   pipeline.DefaultSettings(),
		Columns: []Column{
			{ColumnName: "id", OrdinalPosition: 1, IsNullable: NotNullable, DataType: "integer", PrimaryKey: true},
			{ColumnName: "email", OrdinalPosition: 2, IsNullable: Nullable, DataType: "character varying", CharacterMaximumLength: &length},
		},
	}

	path, err := store.Save(meta)
	require.NoError(t, err)
	assert.Equal(t, layout.MetadataFile("orders"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"source_object_name": "orders"`)
	assert.NotContains(t, string(raw), "numeric_precision", "absent values are omitted")

	got, err := store.Load("orders")
	require.NoError(t, err)
	assert.Equal(t, meta, got)

	meta.Columns = meta.Columns[:1]
	_, err = store.Save(meta)
	require.NoError(t, err)
	got, err = store.Load("orders")
	require.NoError(t, err)
	assert.Len(t, got.Columns, 1, "last discovery wins")
}

func TestStoreLoadMissing(t *testing.T) {
	_, err := NewStore(pipeline.Layout{OutputDir: t.TempDir()}).Load("ghost")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestStoreSaveStatement(t *testing.T) {
	layout := pipeline.Layout{OutputDir: t.TempDir()}
	store := NewStore(layout)

	require.NoError(t, store.SaveStatement(layout.ExtractStatementFile("orders"), "COPY sales.orders TO STDOUT"))
	data, err := os.ReadFile(layout.ExtractStatementFile("orders"))
	require.NoError(t, err)
	assert.Equal(t, "COPY sales.orders TO STDOUT", string(data))
}
