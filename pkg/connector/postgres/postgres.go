// Package postgres connects PostgreSQL as a source and as a target. Data moves
// with COPY over the pgx protocol connection, so no server-side file access
// is needed.
package postgres

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stageflow/pkg/connector/base"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/metadata"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// Kind is the endpoint_type of this connector.
const Kind = "postgres"

const (
	defaultPort   = "5432"
	defaultSchema = "public"
)

// Connector is a PostgreSQL endpoint.
type Connector struct {
	*base.BaseConnector

	pool     *pgxpool.Pool
	schema   string
	encoding string
}

// ConnString builds the pgx connection string from endpoint attributes.
// database_dsn, when set, is used verbatim.
func ConnString(ep pipeline.Endpoint) (string, error) {
	if dsn := ep.String("database_dsn"); dsn != "" {
		return dsn, nil
	}

	host, err := ep.Require("database_host")
	if err != nil {
		return "", err
	}
	name, err := ep.Require("database_name")
	if err != nil {
		return "", err
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   host + ":" + ep.StringOr("database_port", defaultPort),
		Path:   "/" + name,
	}
	if user := ep.String("database_user"); user != "" {
		if pw := ep.String("database_password"); pw != "" {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}
	q := url.Values{}
	if mode := ep.String("sslmode"); mode != "" {
		q.Set("sslmode", mode)
	}
	if enc := ep.String("client_encoding"); enc != "" {
		q.Set("client_encoding", enc)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// New opens a pool for the endpoint and checks connectivity.
func New(ctx context.Context, ep pipeline.Endpoint) (*Connector, error) {
	connStr, err := ConnString(ep)
	if err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse postgres connection attributes")
	}
	cfg.MaxConns = 2
	cfg.MaxConnIdleTime = 5 * time.Minute

	c := &Connector{
		BaseConnector: base.NewBaseConnector(Kind, ep),
		schema:        ep.String("database_schema"),
		encoding:      ep.String("client_encoding"),
	}

	err = base.DefaultRetryPolicy().Execute(ctx, c.Logger(), "connect", func() error {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create postgres pool")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to postgres")
		}
		c.pool = pool
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.Logger().Info("connected to postgres",
		zap.String("host", cfg.ConnConfig.Host),
		zap.String("database", cfg.ConnConfig.Database))
	return c, nil
}

// Close closes the pool.
func (c *Connector) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	return nil
}

// GetQueryResult runs query and returns the rows keyed by column name.
func (c *Connector) GetQueryResult(ctx context.Context, query string) ([]metadata.Row, error) {
	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "query failed").WithDetail("query", query)
	}

	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read query result").WithDetail("query", query)
	}
	c.Logger().Info("query returned rows", zap.Int("rows", len(out)))
	return out, nil
}

// ExtractTo runs a COPY ... TO STDOUT statement into destination.
func (c *Connector) ExtractTo(ctx context.Context, statement, destination string) error {
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create data directory").WithDetail("path", destination)
	}
	f, err := os.Create(destination) //nolint:gosec // G304: staging path
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create data file").WithDetail("path", destination)
	}

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		_ = f.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to acquire connection")
	}
	defer conn.Release()

	tag, err := conn.Conn().PgConn().CopyTo(ctx, f, statement)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "copy to file failed").
			WithDetail("statement", statement).WithDetail("path", destination)
	}

	c.Logger().Info("extracted",
		zap.String("path", destination),
		zap.Int64("rows", tag.RowsAffected()),
		zap.String("size", fileSize(destination)))
	return nil
}

// LoadFrom streams source into a COPY ... FROM STDIN statement.
func (c *Connector) LoadFrom(ctx context.Context, statement, source string) error {
	f, err := os.Open(source) //nolint:gosec // G304: staging path
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open staged file").WithDetail("path", source)
	}
	defer f.Close()

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to acquire connection")
	}
	defer conn.Release()

	tag, err := conn.Conn().PgConn().CopyFrom(ctx, f, statement)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeLoad, "copy from file failed").
			WithDetail("statement", statement).WithDetail("path", source)
	}
	c.Logger().Info("loaded", zap.String("path", source), zap.Int64("rows", tag.RowsAffected()))
	return nil
}

// ExecuteSQL runs a statement without result rows.
func (c *Connector) ExecuteSQL(ctx context.Context, statement string) error {
	if _, err := c.pool.Exec(ctx, statement); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "statement failed").WithDetail("statement", statement)
	}
	return nil
}

// DropTable drops qualifiedName if it exists.
func (c *Connector) DropTable(ctx context.Context, qualifiedName string) error {
	if err := c.ExecuteSQL(ctx, "DROP TABLE IF EXISTS "+qualifiedName); err != nil {
		return err
	}
	c.Logger().Info("table dropped", zap.String("table", qualifiedName))
	return nil
}

func fileSize(path string) string {
	st, err := os.Stat(path)
	if err != nil {
		return "unknown"
	}
	return humanize.Bytes(uint64(st.Size())) + " (" + strconv.FormatInt(st.Size(), 10) + " bytes)"
}
