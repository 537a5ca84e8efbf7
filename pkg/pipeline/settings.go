package pipeline

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// QuoteMode selects the field quoting character of staged files.
type QuoteMode string

const (
	QuoteDouble QuoteMode = "double-quote"
	QuoteSingle QuoteMode = "single-quote"
	QuoteNone   QuoteMode = "none"
)

// Char returns the quoting character, or "" for QuoteNone.
func (q QuoteMode) Char() string {
	switch q {
	case QuoteDouble:
		return `"`
	case QuoteSingle:
		return `'`
	default:
		return ""
	}
}

// ParseQuoteMode accepts the canonical names plus the short forms double,
// single and the literal quote characters.
func ParseQuoteMode(s string) (QuoteMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "double-quote", "double", `"`:
		return QuoteDouble, nil
	case "single-quote", "single", `'`:
		return QuoteSingle, nil
	case "none", "":
		return QuoteNone, nil
	}
	return "", fmt.Errorf("unknown quote_char %q, expected double-quote, single-quote or none", s)
}

// UnmarshalYAML normalises the short forms.
func (q *QuoteMode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	mode, err := ParseQuoteMode(s)
	if err != nil {
		return err
	}
	*q = mode
	return nil
}

// Compression of staged or uploaded files.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
)

// Settings is the fully resolved formatting of one data object. Every field
// is always populated once resolution finished.
type Settings struct {
	ColumnsDelimiter  string    `json:"columns_delimiter" yaml:"columns_delimiter"`
	QuoteChar         QuoteMode `json:"quote_char" yaml:"quote_char"`
	Header            bool      `json:"header" yaml:"header"`
	CleanupLineBreaks bool      `json:"cleanup_linebreak_in_fields" yaml:"cleanup_linebreak_in_fields"`
	Compression       string    `json:"compression" yaml:"compression"`
	Encoding          string    `json:"encoding" yaml:"encoding"`
}

// HeaderRows is the number of leading rows a loader skips.
func (s Settings) HeaderRows() int {
	if s.Header {
		return 1
	}
	return 0
}

// SettingsOverride is a partial Settings as written in YAML. Nil fields
// inherit from the next layer down.
type SettingsOverride struct {
	ColumnsDelimiter  *string    `yaml:"columns_delimiter"`
	QuoteChar         *QuoteMode `yaml:"quote_char"`
	Header            *bool      `yaml:"header"`
	CleanupLineBreaks *bool      `yaml:"cleanup_linebreak_in_fields"`
	Compression       *string    `yaml:"compression"`
	Encoding          *string    `yaml:"encoding"`
}

// DefaultSettings is the bottom layer used when neither the pipeline nor the
// object spec sets a field.
func DefaultSettings() Settings {
	return Settings{
		ColumnsDelimiter:  ",",
		QuoteChar:         QuoteDouble,
		Header:            true,
		CleanupLineBreaks: false,
		Compression:       CompressionNone,
		Encoding:          "UTF8",
	}
}

// Override returns s as a fully set override layer.
func (s Settings) Override() SettingsOverride {
	delimiter, quote, header := s.ColumnsDelimiter, s.QuoteChar, s.Header
	cleanup, compression, encoding := s.CleanupLineBreaks, s.Compression, s.Encoding
	return SettingsOverride{
		ColumnsDelimiter:  &delimiter,
		QuoteChar:         &quote,
		Header:            &header,
		CleanupLineBreaks: &cleanup,
		Compression:       &compression,
		Encoding:          &encoding,
	}
}

// Settings flattens a fully set override. Nil fields take the zero value.
func (o SettingsOverride) Settings() Settings {
	var s Settings
	if o.ColumnsDelimiter != nil {
		s.ColumnsDelimiter = *o.ColumnsDelimiter
	}
	if o.QuoteChar != nil {
		s.QuoteChar = *o.QuoteChar
	}
	if o.Header != nil {
		s.Header = *o.Header
	}
	if o.CleanupLineBreaks != nil {
		s.CleanupLineBreaks = *o.CleanupLineBreaks
	}
	if o.Compression != nil {
		s.Compression = *o.Compression
	}
	if o.Encoding != nil {
		s.Encoding = *o.Encoding
	}
	return s
}
