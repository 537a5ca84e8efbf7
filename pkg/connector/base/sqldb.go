package base

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/metadata"
)

// SQLDatabase implements the query, execute and drop capabilities on top of
// a database/sql handle.
type SQLDatabase struct {
	*BaseConnector
	DB *sql.DB
}

// Open pings db under the retry policy.
func (s *SQLDatabase) Open(ctx context.Context, policy *RetryPolicy) error {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return policy.Execute(ctx, s.Logger(), "connect", func() error {
		if err := s.DB.PingContext(ctx); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeConnection, "failed to connect to %s", s.Kind())
		}
		return nil
	})
}

// GetQueryResult returns every row of query as a column-keyed map.
func (s *SQLDatabase) GetQueryResult(ctx context.Context, query string) ([]metadata.Row, error) {
	start := time.Now()
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "query failed").WithDetail("query", query)
	}
	defer rows.Close()

	out, err := ScanMaps(rows)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read query result").WithDetail("query", query)
	}
	s.Logger().Info("query returned rows", zap.Int("rows", len(out)), zap.Duration("duration", time.Since(start)))
	return out, nil
}

// ExecuteSQL runs a statement without result rows.
func (s *SQLDatabase) ExecuteSQL(ctx context.Context, statement string) error {
	if _, err := s.DB.ExecContext(ctx, statement); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "statement failed").WithDetail("statement", statement)
	}
	return nil
}

// DropTable drops qualifiedName if it exists.
func (s *SQLDatabase) DropTable(ctx context.Context, qualifiedName string) error {
	if err := s.ExecuteSQL(ctx, "DROP TABLE IF EXISTS "+qualifiedName); err != nil {
		return err
	}
	s.Logger().Info("table dropped", zap.String("table", qualifiedName))
	return nil
}

// Close closes the handle.
func (s *SQLDatabase) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// ScanMaps reads all rows into maps keyed by column name. Byte slices are
// returned as strings.
func ScanMaps(rows *sql.Rows) ([]metadata.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []metadata.Row
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(metadata.Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
