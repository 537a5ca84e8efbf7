package postgres

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/stageflow/pkg/composer"
	"github.com/ajitpratap0/stageflow/pkg/connector/base"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// Placeholders of the COPY option strings.
const (
	KeyCopyToOptions   = "copy_to_options"
	KeyCopyFromOptions = "copy_from_options"
)

var textTypes = map[string]bool{
	"character varying": true,
	"varchar":           true,
	"character":         true,
	"char":              true,
	"bpchar":            true,
	"text":              true,
	"citext":            true,
}

// MetaQueryValues fills the schema literal and table filter of metadata.sql.
// The schema is database_schema, falling back to database_name.
func (c *Connector) MetaQueryValues(objects []string) (map[string]string, error) {
	schema := c.schema
	if schema == "" {
		schema = c.Endpoint().String("database_name")
	}
	if schema == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "missing required attribute pipeline.source_attributes.database_schema").
			WithDetail("key", "pipeline.source_attributes.database_schema")
	}

	filter := ""
	if len(objects) > 0 {
		filter = "AND tb.table_name IN (" + composer.QuoteList(objects) + ")"
	}
	return map[string]string{"schema": base.SQLString(schema), "table_statement_list": filter}, nil
}

// QuoteColumn quotes an identifier with double quotes.
func (c *Connector) QuoteColumn(name string) string {
	return base.QuoteIdent(name, `"`)
}

// CleanupLineBreaks replaces CR and LF in text columns with spaces.
func (c *Connector) CleanupLineBreaks(expr, column, dataType string) string {
	if !textTypes[strings.ToLower(dataType)] {
		return expr
	}
	return fmt.Sprintf(`REPLACE(REPLACE(%s, E'\n', ' '), E'\r', ' ') AS %s`, expr, c.QuoteColumn(column))
}

// ExtractValues renders the COPY TO options.
func (c *Connector) ExtractValues(settings pipeline.Settings) map[string]string {
	return map[string]string{KeyCopyToOptions: c.copyOptions(settings, true)}
}

// QualifiedName prefixes table with database_schema, default public.
func (c *Connector) QualifiedName(table string) string {
	schema := c.schema
	if schema == "" {
		schema = defaultSchema
	}
	return schema + "." + table
}

// PrimaryKeyClause renders a table constraint.
func (c *Connector) PrimaryKeyClause(columns []string) string {
	return "PRIMARY KEY (" + strings.Join(columns, ", ") + ")"
}

// LoadValues renders the COPY FROM options.
func (c *Connector) LoadValues(settings pipeline.Settings) map[string]string {
	return map[string]string{KeyCopyFromOptions: c.copyOptions(settings, false)}
}

// copyOptions renders the options following FORMAT CSV, each with a leading
// comma.
func (c *Connector) copyOptions(settings pipeline.Settings, extract bool) string {
	var b strings.Builder

	if settings.ColumnsDelimiter == "\t" {
		b.WriteString(`, DELIMITER E'\t'`)
	} else {
		fmt.Fprintf(&b, ", DELIMITER %s", base.SQLString(settings.ColumnsDelimiter))
	}

	fmt.Fprintf(&b, ", HEADER %t", settings.Header)

	if q := settings.QuoteChar.Char(); q != "" {
		fmt.Fprintf(&b, ", QUOTE %s", base.SQLString(q))
		if extract {
			b.WriteString(", FORCE_QUOTE *")
		}
	}

	encoding := c.encoding
	if encoding == "" {
		encoding = settings.Encoding
	}
	if encoding != "" {
		fmt.Fprintf(&b, ", ENCODING %s", base.SQLString(encoding))
	}
	return b.String()
}
