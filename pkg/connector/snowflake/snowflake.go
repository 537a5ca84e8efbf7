// Package snowflake connects Snowflake as a target. Staged files are PUT to
// an internal stage and loaded with COPY INTO, which purges them afterwards.
package snowflake

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stageflow/pkg/connector/base"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// Kind is the endpoint_type of this connector.
const Kind = "snowflake"

// DefaultStage is the user stage area files are PUT to.
const DefaultStage = "@~/stageflow"

var stageClause = regexp.MustCompile(`(?is)\bFROM\s+(@[^\s;]+)`)

// Connector is a Snowflake target.
type Connector struct {
	*base.SQLDatabase

	schema string
	stage  string
}

// Config builds the driver configuration from endpoint attributes.
func Config(ep pipeline.Endpoint) (*gosnowflake.Config, error) {
	account, err := ep.Require("snowflake_account")
	if err != nil {
		return nil, err
	}
	user, err := ep.Require("database_user")
	if err != nil {
		return nil, err
	}
	database, err := ep.Require("database_name")
	if err != nil {
		return nil, err
	}
	return &gosnowflake.Config{
		Account:   account,
		User:      user,
		Password:  ep.String("database_password"),
		Database:  database,
		Schema:    ep.String("database_schema"),
		Warehouse: ep.String("snowflake_warehouse"),
		Role:      ep.String("snowflake_role"),
	}, nil
}

// New opens a connection for the endpoint and checks connectivity.
func New(ctx context.Context, ep pipeline.Endpoint) (*Connector, error) {
	cfg, err := Config(ep)
	if err != nil {
		return nil, err
	}
	dsn, err := gosnowflake.DSN(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid snowflake configuration")
	}
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open snowflake connection")
	}
	// PUT and COPY must share a session
	db.SetMaxOpenConns(1)

	c := NewWithDB(db, ep)
	if err := c.Open(ctx, nil); err != nil {
		_ = db.Close()
		return nil, err
	}
	c.Logger().Info("connected to snowflake",
		zap.String("account", cfg.Account),
		zap.String("database", cfg.Database),
		zap.String("warehouse", cfg.Warehouse))
	return c, nil
}

// NewWithDB wraps an open handle.
func NewWithDB(db *sql.DB, ep pipeline.Endpoint) *Connector {
	return &Connector{
		SQLDatabase: &base.SQLDatabase{BaseConnector: base.NewBaseConnector(Kind, ep), DB: db},
		schema:      ep.String("database_schema"),
		stage:       strings.TrimRight(ep.StringOr("snowflake_stage", DefaultStage), "/"),
	}
}

// LoadFrom uploads source to the stage location named in the FROM clause of
// statement, then runs statement.
func (c *Connector) LoadFrom(ctx context.Context, statement, source string) error {
	location, err := StageLocation(statement)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to resolve staged file").WithDetail("path", source)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "staged file is not readable").WithDetail("path", source)
	}

	// leftovers of a failed earlier load would be copied again
	if err := c.ExecuteSQL(ctx, "REMOVE "+location); err != nil {
		return err
	}
	if err := c.ExecuteSQL(ctx, PutStatement(abs, location)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeLoad, "failed to upload staged file").WithDetail("path", source)
	}
	if _, err := c.DB.ExecContext(ctx, statement); err != nil {
		return errors.Wrap(err, errors.ErrorTypeLoad, "copy into failed").
			WithDetail("statement", statement).WithDetail("path", source)
	}
	c.Logger().Info("loaded",
		zap.String("path", source),
		zap.String("stage", location),
		zap.String("size", humanize.Bytes(uint64(info.Size()))))
	return nil
}

// StageLocation returns the @stage location the statement copies from.
func StageLocation(statement string) (string, error) {
	m := stageClause.FindStringSubmatch(statement)
	if m == nil {
		return "", errors.New(errors.ErrorTypeConfig, "load statement has no FROM @stage clause").
			WithDetail("statement", statement)
	}
	return m[1], nil
}

// PutStatement uploads path into location, gzip-compressing it unless it is
// compressed already.
func PutStatement(path, location string) string {
	uri := "file://" + filepath.ToSlash(path)
	return "PUT " + base.SQLString(uri) + " " + location + " AUTO_COMPRESS=TRUE OVERWRITE=TRUE"
}
