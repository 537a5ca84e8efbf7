package composer

import (
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Render substitutes {name} placeholders from values. Placeholders without
// a value are left exactly as written.
func Render(template string, values map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		if v, ok := values[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// Unresolved lists the placeholders Render would leave in template.
func Unresolved(template string, values map[string]string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(template, -1) {
		name := m[1]
		if _, ok := values[name]; ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

var columnNameReplacer = strings.NewReplacer(":", "_", ".", "_")

// NormaliseColumnName replaces characters that targets reject in column names.
func NormaliseColumnName(name string) string {
	return columnNameReplacer.Replace(name)
}

// QuoteList renders names as a comma separated SQL string list: 'a','b'.
func QuoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + strings.ReplaceAll(n, "'", "''") + "'"
	}
	return strings.Join(quoted, ",")
}
