package snowflake

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
	registry.MustRegister(registry.Descriptor{
		Kind:        Kind,
		Category:    pipeline.CategoryDatabase,
		Description: "Snowflake target using PUT and COPY INTO",
		Resources:   Resources,
		NewTarget: func(ctx context.Context, ep pipeline.Endpoint) (core.Connector, error) {
			return New(ctx, ep)
		},
	})
}
