package bigquery

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

// LoadTemplate is the JSON load job template.
const LoadTemplate = "load_from.json"

func init() {
	registry.MustRegister(registry.Descriptor{
		Kind:         Kind,
		Category:     pipeline.CategoryDatabase,
		Description:  "Google BigQuery target using load jobs, optionally staged through GCS",
		Resources:    Resources,
		LoadTemplate: LoadTemplate,
		NewTarget: func(ctx context.Context, ep pipeline.Endpoint) (core.Connector, error) {
			return New(ctx, ep)
		},
	})
}
