package gcs

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
		Category:    pipeline.CategoryStorage,
		Description: "Google Cloud Storage file source and target",
		TypeFamily:  "csv",
		NewSource:   factory,
		NewTarget:   factory,
	})
}
