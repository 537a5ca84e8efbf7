package registry

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stageflow/pkg/connector/core"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
	"github.com/ajitpratap0/stageflow/pkg/typemapping"
)

type stubConnector struct{ kind string }

func (s *stubConnector) Kind() string { return s.kind }
func (s *stubConnector) Close() error { return nil }

func stubFactory(kind string) Factory {
	return func(context.Context, pipeline.Endpoint) (core.Connector, error) {
		return &stubConnector{kind: kind}, nil
	}
}

func resources() fstest.MapFS {
	return fstest.MapFS{
		"create_table.sql":                {Data: []byte("CREATE TABLE {schema_table_name} ();")},
		"extractor_type_transformer.json": {Data: []byte(`{"bytea":"encode({column_name}, 'hex')"}`)},
		"type_mapping/postgres.json":      {Data: []byte(`{"integer":"INT64"}`)},
		"type_mapping/csv.json":           {Data: []byte(`{"int64":"INT64"}`)},
		"alt_mapping/postgres.json":       {Data: []byte(`{"integer":"NUMBER"}`)},
	}
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()

	err := r.Register(Descriptor{NewSource: stubFactory("x")})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	err = r.Register(Descriptor{Kind: "x"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	require.NoError(t, r.Register(Descriptor{Kind: "x", NewSource: stubFactory("x")}))
	err = r.Register(Descriptor{Kind: "x", NewTarget: stubFactory("x")})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestCreate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{Kind: "postgres", NewSource: stubFactory("postgres"), NewTarget: stubFactory("postgres")}))
	require.NoError(t, r.Register(Descriptor{Kind: "bigquery", NewTarget: stubFactory("bigquery")}))

	ctx := context.Background()
	c, err := r.Create(ctx, core.RoleSource, pipeline.NewEndpoint("postgres", pipeline.CategoryDatabase, nil))
	require.NoError(t, err)
	assert.Equal(t, "postgres", c.Kind())

	_, err = r.Create(ctx, core.RoleSource, pipeline.NewEndpoint("bigquery", pipeline.CategoryDatabase, nil))
	assert.True(t, errors.IsType(err, errors.ErrorTypeCapability))

	_, err = r.Create(ctx, core.RoleTarget, pipeline.NewEndpoint("oracle", pipeline.CategoryDatabase, nil))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestCreateWrapsFactoryError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{
		Kind: "s3",
		NewTarget: func(context.Context, pipeline.Endpoint) (core.Connector, error) {
			return nil, errors.New(errors.ErrorTypeConfig, "missing required attribute aws_bucket_name")
		},
	}))
	_, err := r.Create(context.Background(), core.RoleTarget, pipeline.NewEndpoint("s3", pipeline.CategoryStorage, nil))
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeConfig, errors.TypeOf(err))
	assert.Contains(t, err.Error(), "target connector s3")
}

func TestKindsAndCategory(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{Kind: "s3", Category: pipeline.CategoryStorage, NewTarget: stubFactory("s3")}))
	require.NoError(t, r.Register(Descriptor{Kind: "csv", Category: pipeline.CategoryFile, NewSource: stubFactory("csv")}))
	require.NoError(t, r.Register(Descriptor{Kind: "mysql", NewSource: stubFactory("mysql")}))

	assert.Equal(t, []string{"csv", "mysql", "s3"}, r.Kinds())
	assert.Equal(t, pipeline.CategoryStorage, r.Category("s3"))
	assert.Equal(t, pipeline.CategoryFile, r.Category("csv"))
	assert.Equal(t, pipeline.CategoryDatabase, r.Category("mysql"))
	assert.Equal(t, pipeline.CategoryDatabase, r.Category("unknown"))

	r.Clear()
	assert.Empty(t, r.Kinds())
}

func TestDescriptorTemplates(t *testing.T) {
	d := &Descriptor{Kind: "bigquery", Resources: resources(), NewTarget: stubFactory("bigquery")}

	tmpl, err := d.Template(core.CreateTableTemplate)
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE {schema_table_name} ();", tmpl)

	_, err = d.Template(core.LoadTemplate)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	_, err = (&Descriptor{Kind: "bare"}).Template(core.LoadTemplate)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCapability))

	assert.Equal(t, core.LoadTemplate, d.LoadTemplateName())
	d.LoadTemplate = "load_from.json"
	assert.Equal(t, "load_from.json", d.LoadTemplateName())

	assert.True(t, d.Supports(core.RoleTarget))
	assert.False(t, d.Supports(core.RoleSource))
}

func TestTypeMappingLocations(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{
		Kind: "bigquery", Resources: resources(), NewTarget: stubFactory("bigquery"),
		TypeMappingDirs: []string{"alt_mapping/", "type_mapping"},
	}))
	require.NoError(t, r.Register(Descriptor{Kind: "postgres", Resources: resources(), NewSource: stubFactory("postgres")}))
	require.NoError(t, r.Register(Descriptor{Kind: "gcs", TypeFamily: "csv", NewSource: stubFactory("gcs")}))

	engine := typemapping.NewEngine(afero.NewMemMapFs(), pipeline.Layout{PipelineDir: "/pipelines/shop"}, r, nil)

	m, err := engine.Resolve("bigquery", "postgres")
	require.NoError(t, err)
	got, ok := m.Lookup("integer")
	require.True(t, ok)
	assert.Equal(t, "NUMBER", got)

	// gcs sources are translated with the csv table
	locs := r.TypeMappingLocations("bigquery", "gcs")
	require.Len(t, locs, 2)
	assert.Equal(t, "csv.json", locs[0].File)
	m, err = engine.Resolve("bigquery", "gcs")
	require.NoError(t, err)
	got, _ = m.Lookup("int64")
	assert.Equal(t, "INT64", got)

	assert.Nil(t, r.TypeMappingLocations("snowflake", "postgres"))
}

func TestTransformerLocation(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{Kind: "postgres", Resources: resources(), NewSource: stubFactory("postgres")}))
	require.NoError(t, r.Register(Descriptor{Kind: "csv", NewSource: stubFactory("csv")}))

	engine := typemapping.NewEngine(afero.NewMemMapFs(), pipeline.Layout{PipelineDir: "/pipelines/shop"}, r, nil)
	m, err := engine.ResolveExtractorTransform("postgres")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	_, ok := r.TransformerLocation("csv")
	assert.False(t, ok)
	m, err = engine.ResolveExtractorTransform("csv")
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}
