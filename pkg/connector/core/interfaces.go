// Package core defines the capabilities the extract and load orchestrators
// consume. A connector implements Connector plus whichever capability
// interfaces its role needs; the orchestrators discover them with type
// assertions and fail with a capability error when one is missing.
package core

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/metadata"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// Role of a connector in a pipeline.
type Role string

const (
	RoleSource Role = "source"
	RoleTarget Role = "target"
)

// Template names looked up in a connector's resources.
const (
	MetadataTemplate    = "metadata.sql"
	ExtractTemplate     = "extract_to.sql"
	CreateTableTemplate = "create_table.sql"
	LoadTemplate        = "load_from.sql"
)

// Placeholders filled by the orchestrators. Connectors add their own.
const (
	KeySchema          = "schema"
	KeyObjectFilter    = "table_statement_list"
	KeySchemaName      = "schema_name"
	KeyTableName       = "table_name"
	KeySchemaTableName = "schema_table_name"
	KeyColumnList      = "column_list"
	KeyColumnTypes     = "column_datatype_list"
	KeyPrimaryKey      = "primary_key"
	KeyDestination     = "destination"
	KeyPathToDataFile  = "path_to_data_file"
	KeySkipLeadingRows = "skip_leading_rows"
	KeyFieldDelimiter  = "field_delimiter"
	KeyQuoteCharacter  = "quote_character"
	KeyPipelineName    = "pipeline_name"
	KeyObjectName      = "object_name"
)

// Row is one result row keyed by column name.
type Row = metadata.Row

// Connector is the base of every endpoint adapter.
type Connector interface {
	// Kind is the endpoint_type the connector is registered under.
	Kind() string
	// Close releases clients and pools.
	Close() error
}

// QueryRunner returns all rows of a query.
type QueryRunner interface {
	GetQueryResult(ctx context.Context, query string) ([]Row, error)
}

// Extractor writes the result of an extraction statement to a local file.
type Extractor interface {
	ExtractTo(ctx context.Context, statement, destination string) error
}

// FormattedExtractor is implemented by extractors that write the staged
// file on the client and therefore need the object's file settings. The
// orchestrator prefers it over Extractor.
type FormattedExtractor interface {
	ExtractFormatted(ctx context.Context, statement, destination string, settings pipeline.Settings) error
}

// Loader loads one staged file with a load statement.
type Loader interface {
	LoadFrom(ctx context.Context, statement, source string) error
}

// SQLExecutor runs a statement that returns no rows.
type SQLExecutor interface {
	ExecuteSQL(ctx context.Context, statement string) error
}

// TableDropper drops a table if it exists.
type TableDropper interface {
	DropTable(ctx context.Context, qualifiedName string) error
}

// SourceDialect supplies the connector specific parts of extraction
// statements.
type SourceDialect interface {
	// MetaQueryValues returns the schema and object filter placeholders of
	// the metadata query. An empty objects list means no filter.
	MetaQueryValues(objects []string) (map[string]string, error)
	// QuoteColumn quotes a column name in a SELECT list.
	QuoteColumn(name string) string
	// CleanupLineBreaks wraps expr so embedded line breaks are replaced,
	// keeping column as the output name. Types that cannot hold line breaks
	// are returned unchanged.
	CleanupLineBreaks(expr, column, dataType string) string
	// ExtractValues returns option placeholders for the extraction statement.
	ExtractValues(settings pipeline.Settings) map[string]string
}

// TargetDialect supplies the connector specific parts of DDL and load
// statements.
type TargetDialect interface {
	QuoteColumn(name string) string
	// QualifiedName returns the table name as used in DDL.
	QualifiedName(table string) string
	// PrimaryKeyClause renders the constraint for already quoted columns.
	PrimaryKeyClause(columns []string) string
	// LoadValues returns option placeholders for the load statement.
	LoadValues(settings pipeline.Settings) map[string]string
}

// FileSet selects the source files of one object.
type FileSet struct {
	Object    string
	SourceDir string
	// FileNames are names or glob patterns relative to SourceDir. Empty
	// selects every CSV file.
	FileNames []string
}

// FileExtractor copies an object's files into a local staging directory and
// returns the staged paths.
type FileExtractor interface {
	ExtractFiles(ctx context.Context, set FileSet, destDir string) ([]string, error)
}

// Publication is the set of staged files of one object handed to a file or
// storage target.
type Publication struct {
	Object      string
	Destination string
	Files       []string
	// Directory is an object level target directory that replaces the
	// connector's default location. Only local file targets honour it.
	Directory string
	// Recreate removes what an earlier run published for the object.
	Recreate bool
	// Compression applied while publishing, "none" or "gzip".
	Compression string
}

// Publisher writes staged files to a file or storage target.
type Publisher interface {
	Publish(ctx context.Context, pub Publication) error
}

// Require asserts that c implements T, returning a capability error naming
// the connector and the missing operation otherwise.
func Require[T any](c Connector, operation string) (T, error) {
	v, ok := c.(T)
	if !ok {
		var zero T
		return zero, errors.New(errors.ErrorTypeCapability,
			fmt.Sprintf("connector %s does not support %s", c.Kind(), operation)).
			WithDetail("connector", c.Kind()).
			WithDetail("operation", operation)
	}
	return v, nil
}
