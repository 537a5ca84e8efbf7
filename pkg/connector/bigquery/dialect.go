package bigquery

import (
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/goccy/go-json"

	"github.com/ajitpratap0/stageflow/pkg/connector/base"
	"github.com/ajitpratap0/stageflow/pkg/connector/core"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// LoadJob is the load configuration persisted as the load statement.
type LoadJob struct {
	DestinationTable    string `json:"destination_table"`
	SourceFormat        string `json:"source_format"`
	SkipLeadingRows     int64  `json:"skip_leading_rows"`
	FieldDelimiter      string `json:"field_delimiter"`
	QuoteCharacter      string `json:"quote_character"`
	MaxBadRecords       int64  `json:"max_bad_records"`
	Autodetect          bool   `json:"autodetect"`
	AllowQuotedNewlines bool   `json:"allow_quoted_newlines"`
	WriteDisposition    string `json:"write_disposition"`
	StagingPrefix       string `json:"staging_prefix"`
}

// ParseLoadJob decodes a rendered load_from.json.
func ParseLoadJob(statement string) (*LoadJob, error) {
	var job LoadJob
	if err := json.Unmarshal([]byte(statement), &job); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid BigQuery load configuration").
			WithDetail("statement", statement)
	}
	if job.DestinationTable == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "BigQuery load configuration has no destination_table")
	}
	return &job, nil
}

// FileConfig translates the job into the client's CSV source options. An
// empty quote character disables quoting.
func (j *LoadJob) FileConfig() bigquery.FileConfig {
	format := bigquery.CSV
	if j.SourceFormat != "" {
		format = bigquery.DataFormat(strings.ToUpper(j.SourceFormat))
	}
	return bigquery.FileConfig{
		SourceFormat:  format,
		AutoDetect:    j.Autodetect,
		MaxBadRecords: j.MaxBadRecords,
		CSVOptions: bigquery.CSVOptions{
			SkipLeadingRows:     j.SkipLeadingRows,
			FieldDelimiter:      j.FieldDelimiter,
			Quote:               j.QuoteCharacter,
			ForceZeroQuote:      j.QuoteCharacter == "",
			AllowQuotedNewlines: j.AllowQuotedNewlines,
		},
	}
}

// Disposition maps write_disposition, default append.
func (j *LoadJob) Disposition() bigquery.TableWriteDisposition {
	switch strings.ToUpper(j.WriteDisposition) {
	case string(bigquery.WriteTruncate):
		return bigquery.WriteTruncate
	case string(bigquery.WriteEmpty):
		return bigquery.WriteEmpty
	default:
		return bigquery.WriteAppend
	}
}

// SplitTableID splits `project.dataset.table`, with or without backticks.
func SplitTableID(id string) (project, dataset, table string, err error) {
	parts := strings.Split(strings.Trim(id, "`"), ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", errors.Newf(errors.ErrorTypeValidation, "table id %q is not project.dataset.table", id)
	}
	return parts[0], parts[1], parts[2], nil
}

// QuoteColumn quotes an identifier with backticks.
func (c *Connector) QuoteColumn(name string) string {
	return base.QuoteIdent(name, "`")
}

// QualifiedName returns `project.dataset.table`.
func (c *Connector) QualifiedName(table string) string {
	return "`" + c.project + "." + c.dataset + "." + table + "`"
}

// PrimaryKeyClause renders an unenforced key constraint.
func (c *Connector) PrimaryKeyClause(columns []string) string {
	return "PRIMARY KEY (" + strings.Join(columns, ", ") + ") NOT ENFORCED"
}

// LoadValues renders the load job options as JSON literals.
func (c *Connector) LoadValues(settings pipeline.Settings) map[string]string {
	return map[string]string{
		core.KeySkipLeadingRows: jsonLiteral(settings.HeaderRows()),
		core.KeyFieldDelimiter:  jsonLiteral(settings.ColumnsDelimiter),
		core.KeyQuoteCharacter:  jsonLiteral(settings.QuoteChar.Char()),
	}
}

func jsonLiteral(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
