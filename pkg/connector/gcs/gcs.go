package gcs

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stageflow/pkg/composer"
	"github.com/ajitpratap0/stageflow/pkg/compression"
	"github.com/ajitpratap0/stageflow/pkg/connector/base"
	"github.com/ajitpratap0/stageflow/pkg/connector/core"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// Kind is the endpoint_type of this connector.
const Kind = "gcs"

// Connector reads object files from and publishes staged files to a bucket.
type Connector struct {
	*base.BaseConnector

	client *storage.Client
	bucket *Bucket
}

// New creates the connector for gcp_bucket_name.
func New(ctx context.Context, ep pipeline.Endpoint) (*Connector, error) {
	name, err := ep.Require("gcp_bucket_name")
	if err != nil {
		return nil, err
	}
	client, err := NewClient(ctx, ep)
	if err != nil {
		return nil, err
	}

	c := &Connector{BaseConnector: base.NewBaseConnector(Kind, ep), client: client}
	c.bucket = NewBucket(client, name, c.Logger())
	return c, nil
}

// Close closes the storage client.
func (c *Connector) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ExtractFiles downloads the objects under set.SourceDir that match
// set.FileNames into destDir.
func (c *Connector) ExtractFiles(ctx context.Context, set core.FileSet, destDir string) ([]string, error) {
	keys, err := c.bucket.List(ctx, set.SourceDir)
	if err != nil {
		return nil, err
	}
	names, err := composer.MatchNames(RelativeKeys(keys, set.SourceDir), set.FileNames)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "no files for object %s under %s", set.Object, c.bucket.URI(dirPrefix(set.SourceDir))).
			WithDetail("object", set.Object)
	}

	var staged []string
	for _, name := range names {
		local := filepath.Join(destDir, path.Base(name))
		if err := c.bucket.Download(ctx, dirPrefix(set.SourceDir)+name, local); err != nil {
			return staged, err
		}
		staged = append(staged, local)
	}
	c.Logger().Info("downloaded object files",
		zap.String("object", set.Object),
		zap.Int("files", len(staged)))
	return staged, nil
}

// Publish uploads the staged files to destination_blob_dir/<destination>/.
func (c *Connector) Publish(ctx context.Context, pub core.Publication) error {
	alg, err := compression.Parse(pub.Compression)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid compression")
	}
	prefix := c.Endpoint().String("destination_blob_dir")

	if pub.Recreate {
		if _, err := c.bucket.DeletePrefix(ctx, path.Join(strings.Trim(prefix, "/"), pub.Destination)); err != nil {
			return err
		}
	}
	for _, f := range pub.Files {
		if err := c.bucket.Upload(ctx, f, ObjectKey(prefix, pub.Destination, f, alg), alg); err != nil {
			return err
		}
	}
	return nil
}

// RelativeKeys strips the directory prefix from keys.
func RelativeKeys(keys []string, prefix string) []string {
	p := dirPrefix(prefix)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if !strings.HasPrefix(k, p) || k == p {
			continue
		}
		out = append(out, strings.TrimPrefix(k, p))
	}
	return out
}
