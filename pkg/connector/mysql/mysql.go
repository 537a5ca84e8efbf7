// Package mysql connects MySQL and MariaDB as a source and as a target.
// Extraction streams a SELECT into a CSV file on the client; loading uses
// LOAD DATA LOCAL INFILE with the staged file registered on the driver.
package mysql

import (
	"context"
	"database/sql"
	"encoding/csv"
	"net"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stageflow/pkg/connector/base"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// Kind is the endpoint_type of this connector.
const Kind = "mysql"

const defaultPort = "3306"

// Connector is a MySQL endpoint.
type Connector struct {
	*base.SQLDatabase

	database string
	charset  string
}

// Config builds the driver configuration from endpoint attributes.
// database_dsn, when set, is parsed instead.
func Config(ep pipeline.Endpoint) (*mysql.Config, error) {
	if dsn := ep.String("database_dsn"); dsn != "" {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid mysql database_dsn")
		}
		return cfg, nil
	}

	host, err := ep.Require("database_host")
	if err != nil {
		return nil, err
	}
	name, err := ep.Require("database_name")
	if err != nil {
		return nil, err
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, ep.StringOr("database_port", defaultPort))
	cfg.DBName = name
	cfg.User = ep.String("database_user")
	cfg.Passwd = ep.String("database_password")
	if cs := ep.String("charset_name"); cs != "" {
		cfg.Params = map[string]string{"charset": cs}
	}
	return cfg, nil
}

// New opens a connection pool for the endpoint and checks connectivity.
func New(ctx context.Context, ep pipeline.Endpoint) (*Connector, error) {
	cfg, err := Config(ep)
	if err != nil {
		return nil, err
	}
	drv, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to configure mysql driver")
	}

	db := sql.OpenDB(drv)
	db.SetMaxOpenConns(2)

	c := NewWithDB(db, ep)
	if err := c.Open(ctx, nil); err != nil {
		_ = db.Close()
		return nil, err
	}
	c.Logger().Info("connected to mysql", zap.String("addr", cfg.Addr), zap.String("database", cfg.DBName))
	return c, nil
}

// NewWithDB wraps an open handle.
func NewWithDB(db *sql.DB, ep pipeline.Endpoint) *Connector {
	return &Connector{
		SQLDatabase: &base.SQLDatabase{BaseConnector: base.NewBaseConnector(Kind, ep), DB: db},
		database:    ep.String("database_name"),
		charset:     ep.String("charset_name"),
	}
}

// ExtractTo writes the result of statement with default file settings.
func (c *Connector) ExtractTo(ctx context.Context, statement, destination string) error {
	return c.ExtractFormatted(ctx, statement, destination, pipeline.DefaultSettings())
}

// ExtractFormatted writes the result of statement as CSV. NULL becomes an
// empty field; the header row follows settings.Header.
func (c *Connector) ExtractFormatted(ctx context.Context, statement, destination string, settings pipeline.Settings) error {
	comma, _ := utf8.DecodeRuneInString(settings.ColumnsDelimiter)
	if comma == utf8.RuneError {
		return errors.Newf(errors.ErrorTypeConfig, "invalid columns_delimiter %q", settings.ColumnsDelimiter)
	}

	rows, err := c.DB.QueryContext(ctx, statement)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "extraction query failed").WithDetail("statement", statement)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to read result columns")
	}

	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create data directory").WithDetail("path", destination)
	}
	f, err := os.Create(destination) //nolint:gosec // G304: staging path
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create data file").WithDetail("path", destination)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = comma
	if settings.Header {
		if err := w.Write(cols); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write header").WithDetail("path", destination)
		}
	}

	raw := make([]sql.RawBytes, len(cols))
	dest := make([]interface{}, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}
	record := make([]string, len(cols))

	var n int64
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan row")
		}
		for i, b := range raw {
			record[i] = string(b)
		}
		if err := w.Write(record); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write row").WithDetail("path", destination)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "extraction interrupted").WithDetail("statement", statement)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush data file").WithDetail("path", destination)
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close data file").WithDetail("path", destination)
	}

	size := int64(0)
	if st, err := os.Stat(destination); err == nil {
		size = st.Size()
	}
	c.Logger().Info("extracted",
		zap.String("path", destination),
		zap.Int64("rows", n),
		zap.String("size", humanize.Bytes(uint64(size))))
	return nil
}

// LoadFrom runs a LOAD DATA LOCAL INFILE statement naming source. The file
// is registered with the driver only for the duration of the call.
func (c *Connector) LoadFrom(ctx context.Context, statement, source string) error {
	if _, err := os.Stat(source); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "staged file not readable").WithDetail("path", source)
	}

	mysql.RegisterLocalFile(source)
	defer mysql.DeregisterLocalFile(source)

	res, err := c.DB.ExecContext(ctx, statement)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeLoad, "load data failed").
			WithDetail("statement", statement).WithDetail("path", source)
	}
	n, _ := res.RowsAffected()
	c.Logger().Info("loaded", zap.String("path", source), zap.Int64("rows", n))
	return nil
}
