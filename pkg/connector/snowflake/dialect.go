package snowflake

import (
	"strconv"
	"strings"

	"github.com/ajitpratap0/stageflow/pkg/connector/base"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// Placeholders of load_from.sql filled by LoadValues.
const (
	KeyFileFormatOptions = "file_format_options"
	KeyStageLocation     = "stage_location"
)

// QuoteColumn quotes an identifier with double quotes.
func (c *Connector) QuoteColumn(name string) string {
	return base.QuoteIdent(name, `"`)
}

// QualifiedName returns schema.table, or table when no schema is set.
func (c *Connector) QualifiedName(table string) string {
	if c.schema == "" {
		return table
	}
	return c.schema + "." + table
}

// PrimaryKeyClause renders a table constraint. Snowflake records it but does
// not enforce it.
func (c *Connector) PrimaryKeyClause(columns []string) string {
	return "PRIMARY KEY (" + strings.Join(columns, ", ") + ")"
}

// LoadValues renders the stage and the FILE_FORMAT options.
func (c *Connector) LoadValues(settings pipeline.Settings) map[string]string {
	return map[string]string{
		KeyStageLocation:     c.stage,
		KeyFileFormatOptions: fileFormat(settings),
	}
}

func fileFormat(s pipeline.Settings) string {
	enclosed := "NONE"
	if q := s.QuoteChar.Char(); q != "" {
		enclosed = base.SQLString(q)
	}
	opts := []string{
		"TYPE = CSV",
		"FIELD_DELIMITER = '" + base.DelimiterLiteral(s.ColumnsDelimiter) + "'",
		"SKIP_HEADER = " + strconv.Itoa(s.HeaderRows()),
		"FIELD_OPTIONALLY_ENCLOSED_BY = " + enclosed,
		"EMPTY_FIELD_AS_NULL = TRUE",
		"COMPRESSION = AUTO",
	}
	if s.Encoding != "" {
		opts = append(opts, "ENCODING = "+base.SQLString(s.Encoding))
	}
	return strings.Join(opts, " ")
}
