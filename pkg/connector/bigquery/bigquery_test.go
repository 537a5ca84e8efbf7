package bigquery

import (
	"io/fs"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stageflow/pkg/composer"
	"github.com/ajitpratap0/stageflow/pkg/connector/core"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

var (
	_ core.TargetDialect = (*Connector)(nil)
	_ core.Loader        = (*Connector)(nil)
	_ core.SQLExecutor   = (*Connector)(nil)
	_ core.TableDropper  = (*Connector)(nil)
)

func testConnector() *Connector {
	ep := pipeline.NewEndpoint(Kind, pipeline.CategoryDatabase, map[string]interface{}{
		"gcp_project_id":  "acme-data",
		"database_schema": "raw",
		"gcp_region":      "EU",
	})
	return newConnector(ep, "acme-data", "raw")
}

func renderLoadJob(t *testing.T, c *Connector, settings pipeline.Settings) *LoadJob {
	t.Helper()
	tmpl, err := fs.ReadFile(Resources, LoadTemplate)
	require.NoError(t, err)

	values := c.LoadValues(settings)
	values[core.KeySchemaTableName] = c.QualifiedName("orders")
	values[core.KeyPipelineName] = "shop"
	values[core.KeyObjectName] = "orders"

	stmt := composer.Render(string(tmpl), values)
	require.Empty(t, composer.Unresolved(stmt, nil))

	job, err := ParseLoadJob(stmt)
	require.NoError(t, err)
	return job
}

func TestLoadTemplateDefaults(t *testing.T) {
	c := testConnector()
	job := renderLoadJob(t, c, pipeline.DefaultSettings())

	assert.Equal(t, "`acme-data.raw.orders`", job.DestinationTable)
	assert.Equal(t, int64(1), job.SkipLeadingRows)
	assert.Equal(t, ",", job.FieldDelimiter)
	assert.Equal(t, `"`, job.QuoteCharacter)
	assert.Equal(t, "shop/orders", job.StagingPrefix)
	assert.Equal(t, bigquery.WriteAppend, job.Disposition())

	cfg := job.FileConfig()
	assert.Equal(t, bigquery.CSV, cfg.SourceFormat)
	assert.False(t, cfg.AutoDetect)
	assert.False(t, cfg.ForceZeroQuote)
	assert.True(t, cfg.AllowQuotedNewlines)
	assert.Equal(t, int64(1), cfg.SkipLeadingRows)
}

func TestLoadTemplateEscapesOptions(t *testing.T) {
	c := testConnector()
	settings := pipeline.DefaultSettings()
	settings.ColumnsDelimiter = "\t"
	settings.QuoteChar = pipeline.QuoteNone
	settings.Header = false

	job := renderLoadJob(t, c, settings)
	assert.Equal(t, "\t", job.FieldDelimiter)
	assert.Equal(t, "", job.QuoteCharacter)
	assert.Equal(t, int64(0), job.SkipLeadingRows)

	cfg := job.FileConfig()
	assert.True(t, cfg.ForceZeroQuote)
	assert.Equal(t, "", cfg.Quote)
}

func TestLoadValuesAreJSONLiterals(t *testing.T) {
	settings := pipeline.DefaultSettings()
	settings.QuoteChar = pipeline.QuoteDouble
	v := testConnector().LoadValues(settings)
	assert.Equal(t, "1", v[core.KeySkipLeadingRows])
	assert.Equal(t, `","`, v[core.KeyFieldDelimiter])
	assert.Equal(t, `"\""`, v[core.KeyQuoteCharacter])
}

func TestParseLoadJobErrors(t *testing.T) {
	_, err := ParseLoadJob("not json")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = ParseLoadJob(`{"source_format":"CSV"}`)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestDisposition(t *testing.T) {
	tests := map[string]bigquery.TableWriteDisposition{
		"":               bigquery.WriteAppend,
		"WRITE_APPEND":   bigquery.WriteAppend,
		"write_truncate": bigquery.WriteTruncate,
		"WRITE_EMPTY":    bigquery.WriteEmpty,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, (&LoadJob{WriteDisposition: in}).Disposition())
		})
	}
}

func TestSplitTableID(t *testing.T) {
	p, d, tbl, err := SplitTableID("`acme-data.raw.orders`")
	require.NoError(t, err)
	assert.Equal(t, []string{"acme-data", "raw", "orders"}, []string{p, d, tbl})

	p, d, tbl, err = SplitTableID("acme-data.raw.orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", tbl)
	assert.Equal(t, "raw", d)
	assert.Equal(t, "acme-data", p)

	for _, bad := range []string{"raw.orders", "`a..c`", ""} {
		_, _, _, err := SplitTableID(bad)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation), bad)
	}
}

func TestTargetDialect(t *testing.T) {
	c := testConnector()
	assert.Equal(t, "`order id`", c.QuoteColumn("order id"))
	assert.Equal(t, "`acme-data.raw.orders`", c.QualifiedName("orders"))
	assert.Equal(t, "PRIMARY KEY (`id`, `line`) NOT ENFORCED",
		c.PrimaryKeyClause([]string{"`id`", "`line`"}))
}

func TestCreateTableTemplate(t *testing.T) {
	c := testConnector()
	tmpl, err := fs.ReadFile(Resources, core.CreateTableTemplate)
	require.NoError(t, err)

	stmt := composer.Render(string(tmpl), map[string]string{
		core.KeySchemaTableName: c.QualifiedName("orders"),
		core.KeyColumnTypes:     "  `id` INT64,\n  `total` NUMERIC",
		core.KeyPrimaryKey:      ",\n  " + c.PrimaryKeyClause([]string{"`id`"}),
	})
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS `acme-data.raw.orders` (\n"+
		"  `id` INT64,\n  `total` NUMERIC,\n  PRIMARY KEY (`id`) NOT ENFORCED\n);\n", stmt)
}
