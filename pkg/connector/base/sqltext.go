package base

import "strings"

// SQLString renders s as a single-quoted SQL literal.
func SQLString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// DelimiterLiteral renders a column delimiter inside a SQL literal; a tab
// becomes the two characters \t.
func DelimiterLiteral(d string) string {
	if d == "\t" {
		return `\t`
	}
	return strings.ReplaceAll(d, "'", "''")
}

// QuoteIdent wraps name in q, doubling any q inside it. An empty q returns
// name unchanged.
func QuoteIdent(name, q string) string {
	if q == "" {
		return name
	}
	return q + strings.ReplaceAll(name, q, q+q) + q
}
