package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ajitpratap0/stageflow/pkg/composer"
	"github.com/ajitpratap0/stageflow/pkg/connector/core"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// Call is one recorded connector operation.
type Call struct {
	Op        string
	Statement string
	Path      string
}

type recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *recorder) record(c Call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

// Calls returns the recorded operations in order.
func (r *recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Ops returns the operation names in order.
func (r *recorder) Ops() []string {
	calls := r.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Op)
	}
	return out
}

// Statements returns the statements of every call of op.
func (r *recorder) Statements(op string) []string {
	var out []string
	for _, c := range r.Calls() {
		if c.Op == op {
			out = append(out, c.Statement)
		}
	}
	return out
}

// FakeDatabase is a database connector acting as both source and target.
// Extraction writes Data to the destination file.
type FakeDatabase struct {
	recorder

	Rows       []core.Row
	Data       string
	QueryErr   error
	ExtractErr error
	ExecErr    error
	DropErr    error
	LoadErr    error
}

// NewFakeDatabase returns a database fake returning rows from its schema
// query.
func NewFakeDatabase(rows ...core.Row) *FakeDatabase {
	return &FakeDatabase{Rows: rows, Data: "id,total\n1,9.5\n"}
}

func (f *FakeDatabase) Kind() string { return FakeDatabaseKind }
func (f *FakeDatabase) Close() error { return nil }

func (f *FakeDatabase) GetQueryResult(_ context.Context, query string) ([]core.Row, error) {
	f.record(Call{Op: "get_query_result", Statement: query})
	if f.QueryErr != nil {
		return nil, f.QueryErr
	}
	return f.Rows, nil
}

func (f *FakeDatabase) ExtractTo(_ context.Context, statement, destination string) error {
	f.record(Call{Op: "extract_to", Statement: statement, Path: destination})
	if f.ExtractErr != nil {
		return f.ExtractErr
	}
	return os.WriteFile(destination, []byte(f.Data), 0o644)
}

func (f *FakeDatabase) ExecuteSQL(_ context.Context, statement string) error {
	f.record(Call{Op: "execute_sql", Statement: statement})
	return f.ExecErr
}

func (f *FakeDatabase) DropTable(_ context.Context, qualifiedName string) error {
	f.record(Call{Op: "drop_table", Statement: qualifiedName})
	return f.DropErr
}

func (f *FakeDatabase) LoadFrom(_ context.Context, statement, source string) error {
	f.record(Call{Op: "load_from", Statement: statement, Path: source})
	return f.LoadErr
}

func (f *FakeDatabase) MetaQueryValues(objects []string) (map[string]string, error) {
	quoted := make([]string, 0, len(objects))
	for _, o := range objects {
		quoted = append(quoted, "'"+o+"'")
	}
	filter := "1 = 1"
	if len(quoted) > 0 {
		filter = "table_name IN (" + strings.Join(quoted, ", ") + ")"
	}
	return map[string]string{core.KeySchema: "public", core.KeyObjectFilter: filter}, nil
}

func (f *FakeDatabase) QuoteColumn(name string) string { return `"` + name + `"` }

func (f *FakeDatabase) CleanupLineBreaks(expr, column, dataType string) string {
	if !strings.Contains(dataType, "char") && dataType != "text" {
		return expr
	}
	return fmt.Sprintf("replace(%s, chr(10), ' ') AS %s", expr, f.QuoteColumn(column))
}

func (f *FakeDatabase) ExtractValues(s pipeline.Settings) map[string]string {
	return map[string]string{core.KeyFieldDelimiter: s.ColumnsDelimiter}
}

func (f *FakeDatabase) QualifiedName(table string) string { return "dw." + f.QuoteColumn(table) }

func (f *FakeDatabase) PrimaryKeyClause(columns []string) string {
	quoted := make([]string, 0, len(columns))
	for _, c := range columns {
		quoted = append(quoted, f.QuoteColumn(c))
	}
	return "PRIMARY KEY (" + strings.Join(quoted, ", ") + ")"
}

func (f *FakeDatabase) LoadValues(s pipeline.Settings) map[string]string {
	return map[string]string{
		core.KeyFieldDelimiter:  s.ColumnsDelimiter,
		core.KeySkipLeadingRows: strconv.Itoa(s.HeaderRows()),
	}
}

// FakeFiles is a file connector. As a source it writes Files into the
// staging directory; as a target it records publications.
type FakeFiles struct {
	recorder

	Files      map[string]string
	ExtractErr error
	PublishErr error

	pubMu        sync.Mutex
	publications []core.Publication
}

// NewFakeFiles returns a file fake serving files by name.
func NewFakeFiles(files map[string]string) *FakeFiles {
	return &FakeFiles{Files: files}
}

func (f *FakeFiles) Kind() string { return FakeFilesKind }
func (f *FakeFiles) Close() error { return nil }

func (f *FakeFiles) ExtractFiles(_ context.Context, set core.FileSet, destDir string) ([]string, error) {
	f.record(Call{Op: "extract_files", Path: set.SourceDir})
	if f.ExtractErr != nil {
		return nil, f.ExtractErr
	}
	names := make([]string, 0, len(f.Files))
	for name := range f.Files {
		names = append(names, name)
	}
	names, err := composer.MatchNames(names, set.FileNames)
	if err != nil {
		return nil, err
	}

	staged := make([]string, 0, len(names))
	for _, name := range names {
		dst := filepath.Join(destDir, name)
		if err := os.WriteFile(dst, []byte(f.Files[name]), 0o644); err != nil {
			return staged, err
		}
		staged = append(staged, dst)
	}
	return staged, nil
}

func (f *FakeFiles) Publish(_ context.Context, pub core.Publication) error {
	f.record(Call{Op: "publish", Statement: pub.Destination, Path: pub.Directory})
	if f.PublishErr != nil {
		return f.PublishErr
	}
	f.pubMu.Lock()
	f.publications = append(f.publications, pub)
	f.pubMu.Unlock()
	return nil
}

// Publications returns the successful publications in order.
func (f *FakeFiles) Publications() []core.Publication {
	f.pubMu.Lock()
	defer f.pubMu.Unlock()
	return append([]core.Publication(nil), f.publications...)
}
