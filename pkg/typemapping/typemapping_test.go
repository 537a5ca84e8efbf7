package typemapping

import (
	"testing"
	"testing/fstest"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

type fakeCatalog struct {
	mappings    map[string][]Location
	transformer map[string]Location
}

func (c fakeCatalog) TypeMappingLocations(target, _ string) []Location { return c.mappings[target] }

func (c fakeCatalog) TransformerLocation(source string) (Location, bool) {
	loc, ok := c.transformer[source]
	return loc, ok
}

func write(t *testing.T, fs afero.Fs, path, body string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0o644))
}

func TestResolveOverrideWinsOutright(t *testing.T) {
	local := afero.NewMemMapFs()
	write(t, local, "/pipelines/orders/postgres.json", `{"integer": "INT64"}`)

	builtin := afero.NewMemMapFs()
	write(t, builtin, "/bigquery/type_mapping/postgres.json", `{"integer": "NUMERIC", "text": "STRING"}`)

	e := NewEngine(local, pipeline.Layout{PipelineDir: "/pipelines/orders"}, fakeCatalog{
		mappings: map[string][]Location{"bigquery": {{FS: builtin, Dir: "/bigquery/type_mapping"}}},
	}, zap.NewNop())

	m, err := e.Resolve("bigquery", "postgres")
	require.NoError(t, err)

	v, ok := m.Lookup("integer")
	require.True(t, ok)
	assert.Equal(t, "INT64", v)

	_, ok = m.Lookup("text")
	assert.False(t, ok, "override is not merged with the connector default")
	assert.Equal(t, "/pipelines/orders/postgres.json", m.Origin)
}

func TestResolveFirstExistingCandidate(t *testing.T) {
	first := afero.NewMemMapFs()
	second := afero.NewMemMapFs()
	write(t, second, "/m/mysql.json", `{"int": "INTEGER"}`)
	third := afero.NewMemMapFs()
	write(t, third, "/m/mysql.json", `{"int": "BIGINT"}`)

	e := NewEngine(afero.NewMemMapFs(), pipeline.Layout{PipelineDir: "/p"}, fakeCatalog{
		mappings: map[string][]Location{"postgres": {{FS: first, Dir: "/m"}, {FS: second, Dir: "/m"}, {FS: third, Dir: "/m"}}},
	}, zap.NewNop())

	m, err := e.Resolve("postgres", "mysql")
	require.NoError(t, err)
	v, _ := m.Lookup("INT")
	assert.Equal(t, "INTEGER", v)
}

func TestResolveEmbeddedLocation(t *testing.T) {
	embedded := fstest.MapFS{
		"resources/type_mapping/csv.json": {Data: []byte(`{"int64": "BIGINT", "string": "TEXT"}`)},
	}
	e := NewEngine(afero.NewMemMapFs(), pipeline.Layout{PipelineDir: "/p"}, fakeCatalog{
		mappings: map[string][]Location{"postgres": {FromFS(embedded, "resources/type_mapping")}},
	}, zap.NewNop())

	m, err := e.Resolve("postgres", "csv")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
}

func TestResolveMissing(t *testing.T) {
	e := NewEngine(afero.NewMemMapFs(), pipeline.Layout{PipelineDir: "/p"}, fakeCatalog{}, zap.NewNop())
	_, err := e.Resolve("snowflake", "oracle")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTypeMapping))
}

func TestResolveMalformed(t *testing.T) {
	local := afero.NewMemMapFs()
	write(t, local, "/p/postgres.json", `{"integer": `)
	e := NewEngine(local, pipeline.Layout{PipelineDir: "/p"}, fakeCatalog{}, zap.NewNop())

	_, err := e.Resolve("bigquery", "postgres")
	require.Error(t, err)
}

func TestResolveExtractorTransform(t *testing.T) {
	builtin := afero.NewMemMapFs()
	write(t, builtin, "/pg/extractor_type_transformer.json", `{"json": "CAST({column_name} AS TEXT)"}`)
	catalog := fakeCatalog{transformer: map[string]Location{"postgres": {FS: builtin, Dir: "/pg"}}}

	t.Run("connector default", func(t *testing.T) {
		e := NewEngine(afero.NewMemMapFs(), pipeline.Layout{PipelineDir: "/p"}, catalog, zap.NewNop())
		m, err := e.ResolveExtractorTransform("postgres")
		require.NoError(t, err)
		v, ok := m.Lookup("json")
		require.True(t, ok)
		assert.Equal(t, "CAST({column_name} AS TEXT)", v)
	})

	t.Run("pipeline override", func(t *testing.T) {
		local := afero.NewMemMapFs()
		write(t, local, "/p/extractor_type_transformer.json", `{"jsonb": "{column_name}::text"}`)
		e := NewEngine(local, pipeline.Layout{PipelineDir: "/p"}, catalog, zap.NewNop())
		m, err := e.ResolveExtractorTransform("postgres")
		require.NoError(t, err)
		_, ok := m.Lookup("json")
		assert.False(t, ok)
		assert.Equal(t, 1, m.Len())
	})

	t.Run("none registered", func(t *testing.T) {
		e := NewEngine(afero.NewMemMapFs(), pipeline.Layout{PipelineDir: "/p"}, fakeCatalog{}, zap.NewNop())
		m, err := e.ResolveExtractorTransform("csv")
		require.NoError(t, err)
		assert.Equal(t, 0, m.Len())
	})
}

func TestResolveLocationFileName(t *testing.T) {
	builtin := afero.NewMemMapFs()
	write(t, builtin, "/pg/type_mapping/csv.json", `{"int64": "BIGINT"}`)

	e := NewEngine(afero.NewMemMapFs(), pipeline.Layout{PipelineDir: "/p"}, fakeCatalog{
		mappings: map[string][]Location{"postgres": {{FS: builtin, Dir: "/pg/type_mapping", File: "csv.json"}}},
	}, zap.NewNop())

	m, err := e.Resolve("postgres", "s3")
	require.NoError(t, err)
	assert.Equal(t, "/pg/type_mapping/csv.json", m.Origin)
}

func TestMappingLookup(t *testing.T) {
	m := &Mapping{Types: map[string]string{
		"Varchar": "STRING",
		"VARCHAR": "TEXT",
		"varChar": "BYTES",
		"integer": "INT64",
	}}

	tests := []struct {
		source string
		want   string
		found  bool
	}{
		{"Varchar", "STRING", true},
		{"varchar", "TEXT", true},
		{"VarChar", "TEXT", true},
		{"INTEGER", "INT64", true},
		{"json", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			for i := 0; i < 20; i++ {
				v, ok := m.Lookup(tt.source)
				require.Equal(t, tt.found, ok)
				require.Equal(t, tt.want, v)
			}
		})
	}

	var empty *Mapping
	_, ok := empty.Lookup("integer")
	assert.False(t, ok)
}
