// Package base holds what every connector shares: its identity and logger,
// connection retries and the database/sql plumbing used by the SQL drivers
// that are not pgx.
//
// Connectors embed *BaseConnector:
//
//	type Connector struct {
//	    *base.BaseConnector
//	    db *sql.DB
//	}
//
//	func New(ctx context.Context, ep pipeline.Endpoint) (core.Connector, error) {
//	    c := &Connector{BaseConnector: base.NewBaseConnector("mysql", ep)}
//	    ...
//	}
package base

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/stageflow/pkg/logger"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// BaseConnector carries the connector kind, the endpoint it was created for
// and a logger scoped to both.
type BaseConnector struct {
	kind     string
	endpoint pipeline.Endpoint
	logger   *zap.Logger
}

// NewBaseConnector creates the shared part of a connector.
func NewBaseConnector(kind string, endpoint pipeline.Endpoint) *BaseConnector {
	return &BaseConnector{
		kind:     kind,
		endpoint: endpoint,
		logger: logger.Get().With(
			zap.String("connector", kind),
			zap.String("endpoint", endpoint.Role()),
		),
	}
}

// Kind implements core.Connector.
func (b *BaseConnector) Kind() string { return b.kind }

// Endpoint returns the pipeline endpoint the connector serves.
func (b *BaseConnector) Endpoint() pipeline.Endpoint { return b.endpoint }

// Logger returns the connector logger.
func (b *BaseConnector) Logger() *zap.Logger { return b.logger }

// SetLogger replaces the connector logger; used by tests.
func (b *BaseConnector) SetLogger(l *zap.Logger) {
	if l != nil {
		b.logger = l
	}
}
