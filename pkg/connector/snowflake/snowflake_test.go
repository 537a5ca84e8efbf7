package snowflake

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
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

func newMock(t *testing.T, attrs map[string]interface{}) (*Connector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if attrs == nil {
		attrs = map[string]interface{}{"database_schema": "raw"}
	}
	return NewWithDB(db, pipeline.NewEndpoint(Kind, pipeline.CategoryDatabase, attrs)), mock
}

func renderLoad(t *testing.T, c *Connector, settings pipeline.Settings) string {
	t.Helper()
	tmpl, err := fs.ReadFile(Resources, core.LoadTemplate)
	require.NoError(t, err)
	values := c.LoadValues(settings)
	values[core.KeySchemaTableName] = c.QualifiedName("orders")
	values[core.KeyPipelineName] = "shop"
	values[core.KeyObjectName] = "orders"
	return composer.Render(string(tmpl), values)
}

func TestConfig(t *testing.T) {
	cfg, err := Config(pipeline.NewEndpoint(Kind, pipeline.CategoryDatabase, map[string]interface{}{
		"snowflake_account":   "acme-xy12345",
		"database_user":       "etl",
		"database_password":   "secret",
		"database_name":       "ANALYTICS",
		"database_schema":     "RAW",
		"snowflake_warehouse": "LOAD_WH",
	}))
	require.NoError(t, err)
	assert.Equal(t, "acme-xy12345", cfg.Account)
	assert.Equal(t, "ANALYTICS", cfg.Database)
	assert.Equal(t, "RAW", cfg.Schema)
	assert.Equal(t, "LOAD_WH", cfg.Warehouse)

	_, err = Config(pipeline.NewEndpoint(Kind, pipeline.CategoryDatabase, map[string]interface{}{
		"database_user": "etl",
		"database_name": "ANALYTICS",
	}))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestLoadStatement(t *testing.T) {
	c, _ := newMock(t, nil)
	stmt := renderLoad(t, c, pipeline.DefaultSettings())
	assert.Equal(t, "COPY INTO raw.orders\n"+
		"FROM @~/stageflow/shop/orders/\n"+
		`FILE_FORMAT = (TYPE = CSV FIELD_DELIMITER = ',' SKIP_HEADER = 1 FIELD_OPTIONALLY_ENCLOSED_BY = '"' `+
		"EMPTY_FIELD_AS_NULL = TRUE COMPRESSION = AUTO ENCODING = 'UTF8')\n"+
		"ON_ERROR = ABORT_STATEMENT\n"+
		"PURGE = TRUE;\n", stmt)

	loc, err := StageLocation(stmt)
	require.NoError(t, err)
	assert.Equal(t, "@~/stageflow/shop/orders/", loc)
}

func TestFileFormat(t *testing.T) {
	tests := []struct {
		name     string
		settings pipeline.Settings
		want     string
	}{
		{
			name:     "tab without quotes or header",
			settings: pipeline.Settings{ColumnsDelimiter: "\t", QuoteChar: pipeline.QuoteNone},
			want: `TYPE = CSV FIELD_DELIMITER = '\t' SKIP_HEADER = 0 FIELD_OPTIONALLY_ENCLOSED_BY = NONE ` +
				"EMPTY_FIELD_AS_NULL = TRUE COMPRESSION = AUTO",
		},
		{
			name:     "single quote",
			settings: pipeline.Settings{ColumnsDelimiter: ";", QuoteChar: pipeline.QuoteSingle, Header: true, Encoding: "ISO-8859-1"},
			want: "TYPE = CSV FIELD_DELIMITER = ';' SKIP_HEADER = 1 FIELD_OPTIONALLY_ENCLOSED_BY = '''' " +
				"EMPTY_FIELD_AS_NULL = TRUE COMPRESSION = AUTO ENCODING = 'ISO-8859-1'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fileFormat(tt.settings))
		})
	}
}

func TestCustomStage(t *testing.T) {
	c, _ := newMock(t, map[string]interface{}{"snowflake_stage": "@raw.landing/"})
	assert.Equal(t, "orders", c.QualifiedName("orders"))
	assert.Equal(t, "@raw.landing", c.LoadValues(pipeline.DefaultSettings())[KeyStageLocation])
}

func TestLoadFrom(t *testing.T) {
	c, mock := newMock(t, nil)
	src := filepath.Join(t.TempDir(), "orders.csv")
	require.NoError(t, os.WriteFile(src, []byte("id\n1\n"), 0o644))

	stmt := renderLoad(t, c, pipeline.DefaultSettings())
	mock.ExpectExec("REMOVE @~/stageflow/shop/orders/").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(PutStatement(src, "@~/stageflow/shop/orders/")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, c.LoadFrom(context.Background(), stmt, src))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadFromCopyFailure(t *testing.T) {
	c, mock := newMock(t, nil)
	src := filepath.Join(t.TempDir(), "orders.csv")
	require.NoError(t, os.WriteFile(src, []byte("id\n1\n"), 0o644))

	stmt := renderLoad(t, c, pipeline.DefaultSettings())
	mock.ExpectExec("REMOVE @~/stageflow/shop/orders/").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(PutStatement(src, "@~/stageflow/shop/orders/")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(stmt).WillReturnError(fmt.Errorf("Numeric value 'abc' is not recognized"))

	err := c.LoadFrom(context.Background(), stmt, src)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeLoad, errors.TypeOf(err))
}

func TestLoadFromRejectsStatementWithoutStage(t *testing.T) {
	c, _ := newMock(t, nil)
	err := c.LoadFrom(context.Background(), "COPY INTO raw.orders FROM 's3://bucket/x'", "orders.csv")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestPutStatement(t *testing.T) {
	assert.Equal(t, "PUT 'file:///tmp/run/it''s.csv' @~/stageflow/a/ AUTO_COMPRESS=TRUE OVERWRITE=TRUE",
		PutStatement("/tmp/run/it's.csv", "@~/stageflow/a/"))
}

func TestTargetDialect(t *testing.T) {
	c, _ := newMock(t, nil)
	assert.Equal(t, `"order ""id"""`, c.QuoteColumn(`order "id"`))
	assert.Equal(t, "raw.orders", c.QualifiedName("orders"))
	assert.Equal(t, `PRIMARY KEY ("id")`, c.PrimaryKeyClause([]string{`"id"`}))
	assert.Equal(t, `PRIMARY KEY ("order_id", "line")`, c.PrimaryKeyClause([]string{`"order_id"`, `"line"`}))
}
