package metadata

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stageflow/pkg/dataobject"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

func resolverFor(mode pipeline.Mode, specs ...pipeline.ObjectSpec) *dataobject.Resolver {
	p := pipeline.New("p",
		pipeline.NewEndpoint("postgres", pipeline.CategoryDatabase, nil),
		pipeline.NewEndpoint("postgres", pipeline.CategoryDatabase, nil),
		mode, pipeline.SettingsOverride{}, specs, pipeline.Layout{})
	return dataobject.NewResolver(p, zap.NewNop())
}

func ordersRows() []Row {
	return []Row{
		{"source_schema_name": "sales", "source_object_name": "orders", "column_name": "id", "is_nullable": "NO", "data_type": "integer", "numeric_precision": int32(32), "numeric_scale": int32(0), "primary_key": "id"},
		{"source_schema_name": "sales", "source_object_name": "orders", "column_name": "total", "is_nullable": "YES", "data_type": "numeric", "numeric_precision": math.NaN(), "numeric_scale": "nan"},
		{"source_schema_name": "sales", "source_object_name": "orders", "column_name": "notes", "is_nullable": "YES", "data_type": "text", "character_maximum_length": nil},
	}
}

func TestComposeFromQueryOrdersScenario(t *testing.T) {
	r := resolverFor(pipeline.ModeOnly, pipeline.ObjectSpec{ObjectName: "orders", ExcludedColumns: []string{"notes"}})

	metas, err := ComposeFromQuery(ordersRows(), r)
	require.NoError(t, err)
	require.Len(t, metas, 1)

	m := metas[0]
	assert.Equal(t, "orders", m.SourceObjectName)
	assert.Equal(t, "sales", m.SourceSchemaName)
	require.Len(t, m.Columns, 2)

	assert.Equal(t, "id", m.Columns[0].ColumnName)
	assert.Equal(t, 1, m.Columns[0].OrdinalPosition)
	assert.False(t, m.Columns[0].Nullable())
	assert.True(t, m.Columns[0].PrimaryKey)
	require.NotNil(t, m.Columns[0].NumericPrecision)
	assert.Equal(t, int64(32), *m.Columns[0].NumericPrecision)

	assert.Equal(t, "total", m.Columns[1].ColumnName)
	assert.Equal(t, 2, m.Columns[1].OrdinalPosition)
	assert.Nil(t, m.Columns[1].NumericPrecision, "NaN precision is absent, not zero")
	assert.Nil(t, m.Columns[1].NumericScale)
	assert.False(t, m.Columns[1].PrimaryKey)

	assert.Equal(t, []string{"id"}, m.PrimaryKeyColumns())
	assert.Equal(t, pipeline.DefaultSettings(), m.ObjectSettings)
}

func TestComposeFromQueryIsIdempotent(t *testing.T) {
	r := resolverFor(pipeline.ModeOnly, pipeline.ObjectSpec{ObjectName: "orders", ExcludedColumns: []string{"total"}})

	first, err := ComposeFromQuery(ordersRows(), r)
	require.NoError(t, err)
	second, err := ComposeFromQuery(ordersRows(), r)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("compositions differ (-first +second):\n%s", diff)
	}
	assert.Equal(t, []int{1, 2}, []int{first[0].Columns[0].OrdinalPosition, first[0].Columns[1].OrdinalPosition})
	assert.Equal(t, "notes", first[0].Columns[1].ColumnName)
}

func TestComposeFromQueryGroupsInFirstSeenOrder(t *testing.T) {
	rows := []Row{
		{"source_schema_name": "s", "source_object_name": "zeta", "column_name": "a", "data_type": "int"},
		{"source_schema_name": "s", "source_object_name": "alpha", "column_name": "b", "data_type": "int"},
		{"source_schema_name": "s", "source_object_name": "zeta", "column_name": "c", "data_type": "int"},
		{"source_schema_name": "t", "source_object_name": "alpha", "column_name": "d", "data_type": "int"},
	}
	metas, err := ComposeFromQuery(rows, resolverFor(pipeline.ModeIgnore))
	require.NoError(t, err)
	require.Len(t, metas, 3)

	assert.Equal(t, "zeta", metas[0].SourceObjectName)
	assert.Equal(t, []string{"a", "c"}, []string{metas[0].Columns[0].ColumnName, metas[0].Columns[1].ColumnName})
	assert.Equal(t, 2, metas[0].Columns[1].OrdinalPosition)
	assert.Equal(t, "alpha", metas[1].SourceObjectName)
	assert.Equal(t, "s", metas[1].SourceSchemaName)
	assert.Equal(t, "t", metas[2].SourceSchemaName)
}

func TestComposeFromQueryResolverFailure(t *testing.T) {
	_, err := ComposeFromQuery(ordersRows(), resolverFor(pipeline.ModeOnly))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestComposeFromQueryRejectsRowsWithoutObject(t *testing.T) {
	_, err := ComposeFromQuery([]Row{{"column_name": "x"}}, resolverFor(pipeline.ModeIgnore))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeDiscovery))
}

func TestComposeFromColumnarSample(t *testing.T) {
	r := resolverFor(pipeline.ModeOnly, pipeline.ObjectSpec{ObjectName: "events", ExcludedColumns: []string{"payload"}})

	m, err := ComposeFromColumnarSample([]SampleColumn{
		{Name: "id", Type: "int64"},
		{Name: "payload", Type: "string"},
		{Name: "ts", Type: "timestamp[s]"},
	}, "events", r)
	require.NoError(t, err)

	require.Len(t, m.Columns, 2)
	assert.Equal(t, Column{ColumnName: "id", OrdinalPosition: 1, IsNullable: Nullable, DataType: "int64"}, m.Columns[0])
	assert.Equal(t, Column{ColumnName: "ts", OrdinalPosition: 2, IsNullable: Nullable, DataType: "timestamp[s]"}, m.Columns[1])
	assert.Empty(t, m.SourceSchemaName)
}

func TestValidateRejectsEmptyColumnSet(t *testing.T) {
	r := resolverFor(pipeline.ModeOnly,
		pipeline.ObjectSpec{ObjectName: "orders", ExcludedColumns: []string{"id", "total", "notes"}},
		pipeline.ObjectSpec{ObjectName: "events", ExcludedColumns: []string{"id"}})

	metas, err := ComposeFromQuery(ordersRows(), r)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	sampled, err := ComposeFromColumnarSample([]SampleColumn{{Name: "id", Type: "int64"}}, "events", r)
	require.NoError(t, err)

	tests := []struct {
		name   string
		meta   *ObjectMetadata
		object string
	}{
		{"query composition", metas[0], "orders"},
		{"columnar sample", sampled, "events"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, tt.meta.Columns)
			err := tt.meta.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeDiscovery))
			assert.Equal(t, tt.object, errors.DetailsOf(err)["object"])
		})
	}

	ok := &ObjectMetadata{SourceObjectName: "orders", Columns: []Column{{ColumnName: "id", OrdinalPosition: 1}}}
	assert.NoError(t, ok.Validate())
}

func TestOptionalInt(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want *int64
	}{
		{"nil", nil, nil},
		{"nan float", math.NaN(), nil},
		{"nan string", "NaN", nil},
		{"empty", "", nil},
		{"int32", int32(7), ptr(7)},
		{"float", float64(12), ptr(12)},
		{"numeric string", "255", ptr(255)},
		{"garbage", "abc", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, optionalInt(tt.in))
		})
	}
}

func ptr(n int64) *int64 { return &n }
