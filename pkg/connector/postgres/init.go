package postgres

import (
	"context"
	"embed"
	"io/fs"

	"github.com/ajitpratap0/stageflow/pkg/connector/core"
	"github.com/ajitpratap0/stageflow/pkg/connector/registry"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

//go:embed resources
var embedded embed.FS

// Resources is the template and type mapping tree of the connector.
var Resources, _ = fs.Sub(embedded, "resources")

func init() {
	factory := func(ctx context.Context, ep pipeline.Endpoint) (core.Connector, error) {
		return New(ctx, ep)
	}
	registry.MustRegister(registry.Descriptor{
		Kind:        Kind,
		Category:    pipeline.CategoryDatabase,
		Description: "PostgreSQL source and target using COPY",
		Resources:   Resources,
		NewSource:   factory,
		NewTarget:   factory,
	})
}
