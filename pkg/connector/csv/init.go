package csv

import (
	"context"

	"github.com/ajitpratap0/stageflow/pkg/connector/core"
	"github.com/ajitpratap0/stageflow/pkg/connector/registry"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

func init() {
	factory := func(ctx context.Context, ep pipeline.Endpoint) (core.Connector, error) {
		return New(ctx, ep)
	}
	registry.MustRegister(registry.Descriptor{
		Kind:        Kind,
		Category:    pipeline.CategoryFile,
		Description: "Local CSV files as source and target",
		NewSource:   factory,
		NewTarget:   factory,
	})
}
