package mysql

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/stageflow/pkg/composer"
	"github.com/ajitpratap0/stageflow/pkg/connector/base"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// KeyLoadDataOptions is the placeholder of the LOAD DATA format clauses.
const KeyLoadDataOptions = "load_data_options"

var textTypes = map[string]bool{
	"char":       true,
	"varchar":    true,
	"tinytext":   true,
	"text":       true,
	"mediumtext": true,
	"longtext":   true,
}

// schema is database_schema, falling back to database_name; MySQL does not
// distinguish the two.
func (c *Connector) schema() string {
	if s := c.Endpoint().String("database_schema"); s != "" {
		return s
	}
	return c.database
}

// MetaQueryValues fills the schema literal and table filter of metadata.sql.
func (c *Connector) MetaQueryValues(objects []string) (map[string]string, error) {
	schema := c.schema()
	if schema == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "missing required attribute pipeline.source_attributes.database_name").
			WithDetail("key", "pipeline.source_attributes.database_name")
	}

	filter := ""
	if len(objects) > 0 {
		filter = "AND tb.table_name IN (" + composer.QuoteList(objects) + ")"
	}
	return map[string]string{"schema": base.SQLString(schema), "table_statement_list": filter}, nil
}

// QuoteColumn quotes an identifier with backticks.
func (c *Connector) QuoteColumn(name string) string {
	return base.QuoteIdent(name, "`")
}

// CleanupLineBreaks replaces CR and LF in character columns with spaces.
func (c *Connector) CleanupLineBreaks(expr, column, dataType string) string {
	if !textTypes[strings.ToLower(dataType)] {
		return expr
	}
	return fmt.Sprintf(`REPLACE(REPLACE(%s, '\n', ' '), '\r', ' ') AS %s`, expr, c.QuoteColumn(column))
}

// ExtractValues returns nothing; the file format is applied on the client.
func (c *Connector) ExtractValues(pipeline.Settings) map[string]string {
	return map[string]string{}
}

// QualifiedName prefixes table with the database.
func (c *Connector) QualifiedName(table string) string {
	if s := c.schema(); s != "" {
		return s + "." + table
	}
	return table
}

// PrimaryKeyClause renders a table constraint.
func (c *Connector) PrimaryKeyClause(columns []string) string {
	return "PRIMARY KEY (" + strings.Join(columns, ", ") + ")"
}

// LoadValues renders the LOAD DATA format clauses.
func (c *Connector) LoadValues(settings pipeline.Settings) map[string]string {
	return map[string]string{KeyLoadDataOptions: c.loadOptions(settings)}
}

func (c *Connector) loadOptions(settings pipeline.Settings) string {
	var lines []string
	if c.charset != "" {
		lines = append(lines, "CHARACTER SET "+c.charset)
	}

	fields := "FIELDS TERMINATED BY '" + base.DelimiterLiteral(settings.ColumnsDelimiter) + "'"
	if q := settings.QuoteChar.Char(); q != "" {
		fields += " ENCLOSED BY " + base.SQLString(q)
	}
	fields += ` ESCAPED BY '\\'`
	lines = append(lines, fields, `LINES TERMINATED BY '\n'`, fmt.Sprintf("IGNORE %d ROWS", settings.HeaderRows()))
	return strings.Join(lines, "\n")
}
