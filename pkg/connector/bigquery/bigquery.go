// Package bigquery connects Google BigQuery as a target. Tables are created
// with DDL query jobs and loaded with CSV load jobs, either straight from
// the staged file or through a GCS staging bucket when gcp_bucket_name is
// set.
package bigquery

import (
	"context"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"

	"github.com/ajitpratap0/stageflow/pkg/compression"
	"github.com/ajitpratap0/stageflow/pkg/connector/base"
	"github.com/ajitpratap0/stageflow/pkg/connector/gcs"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// Kind is the endpoint_type of this connector.
const Kind = "bigquery"

// Connector is a BigQuery dataset target.
type Connector struct {
	*base.BaseConnector

	client   *bigquery.Client
	storage  *storage.Client
	staging  *gcs.Bucket
	project  string
	dataset  string
	location string

	// staging prefixes already emptied during this run
	cleaned map[string]bool
}

// New creates the BigQuery client, and the storage client when staging
// through GCS.
func New(ctx context.Context, ep pipeline.Endpoint) (*Connector, error) {
	project, err := ep.Require("gcp_project_id")
	if err != nil {
		return nil, err
	}
	dataset, err := ep.Require("database_schema")
	if err != nil {
		return nil, err
	}

	opts, err := gcs.ClientOptions(ctx, ep, bigquery.Scope)
	if err != nil {
		return nil, err
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create BigQuery client")
	}

	c := newConnector(ep, project, dataset)
	c.client = client

	if bucket := ep.String("gcp_bucket_name"); bucket != "" {
		sc, err := gcs.NewClient(ctx, ep)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		c.storage = sc
		c.staging = gcs.NewBucket(sc, bucket, c.Logger())
	}
	return c, nil
}

func newConnector(ep pipeline.Endpoint, project, dataset string) *Connector {
	return &Connector{
		BaseConnector: base.NewBaseConnector(Kind, ep),
		project:       project,
		dataset:       dataset,
		location:      ep.String("gcp_region"),
		cleaned:       make(map[string]bool),
	}
}

// Close closes both clients.
func (c *Connector) Close() error {
	var err error
	if c.storage != nil {
		err = c.storage.Close()
	}
	if c.client != nil {
		if cerr := c.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ExecuteSQL runs statement as a query job and waits for it.
func (c *Connector) ExecuteSQL(ctx context.Context, statement string) error {
	q := c.client.Query(statement)
	q.Location = c.location

	job, err := q.Run(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to submit query job").WithDetail("statement", statement)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "query job wait failed").WithDetail("job_id", job.ID())
	}
	if err := status.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "query job failed").
			WithDetail("job_id", job.ID()).WithDetail("statement", statement)
	}
	c.Logger().Info("query job done", zap.String("job_id", job.ID()))
	return nil
}

// DropTable deletes the table; a missing table is not an error.
func (c *Connector) DropTable(ctx context.Context, qualifiedName string) error {
	project, dataset, table, err := SplitTableID(qualifiedName)
	if err != nil {
		return err
	}
	err = c.client.DatasetInProject(project, dataset).Table(table).Delete(ctx)
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		err = nil
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to drop table").WithDetail("table", qualifiedName)
	}
	c.Logger().Info("table dropped", zap.String("table", qualifiedName))
	return nil
}

// LoadFrom runs a load job configured by statement, a JSON document
// rendered from load_from.json, for the staged file source.
func (c *Connector) LoadFrom(ctx context.Context, statement, source string) error {
	job, err := ParseLoadJob(statement)
	if err != nil {
		return err
	}
	project, dataset, table, err := SplitTableID(job.DestinationTable)
	if err != nil {
		return err
	}

	var src bigquery.LoadSource
	if c.staging != nil {
		uri, err := c.stage(ctx, job.StagingPrefix, source)
		if err != nil {
			return err
		}
		ref := bigquery.NewGCSReference(uri)
		ref.FileConfig = job.FileConfig()
		src = ref
	} else {
		f, err := os.Open(source) //nolint:gosec // G304: staging path
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to open staged file").WithDetail("path", source)
		}
		defer f.Close()
		rs := bigquery.NewReaderSource(f)
		rs.FileConfig = job.FileConfig()
		src = rs
	}

	loader := c.client.DatasetInProject(project, dataset).Table(table).LoaderFrom(src)
	loader.WriteDisposition = job.Disposition()
	loader.CreateDisposition = bigquery.CreateNever
	loader.Location = c.location

	run, err := loader.Run(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeLoad, "failed to submit load job").WithDetail("path", source)
	}
	status, err := run.Wait(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "load job wait failed").WithDetail("job_id", run.ID())
	}
	if err := status.Err(); err != nil {
		for i, e := range status.Errors {
			c.Logger().Error("load job error detail",
				zap.Int("index", i),
				zap.String("reason", e.Reason),
				zap.String("location", e.Location),
				zap.String("message", e.Message))
		}
		return errors.Wrap(err, errors.ErrorTypeLoad, "load job failed").
			WithDetail("job_id", run.ID()).WithDetail("path", source)
	}

	fields := []zap.Field{zap.String("job_id", run.ID()), zap.String("path", source)}
	if status.Statistics != nil {
		if st, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
			fields = append(fields, zap.Int64("rows", st.OutputRows), zap.Int64("input_bytes", st.InputFileBytes))
		}
	}
	c.Logger().Info("loaded", fields...)
	return nil
}

// stage uploads source gzip-compressed under prefix and returns its URI.
// The prefix is emptied before its first upload of the run.
func (c *Connector) stage(ctx context.Context, prefix, source string) (string, error) {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return "", errors.New(errors.ErrorTypeConfig, "load statement has no staging_prefix")
	}
	if !c.cleaned[prefix] {
		if _, err := c.staging.DeletePrefix(ctx, prefix); err != nil {
			return "", err
		}
		c.cleaned[prefix] = true
	}

	key := gcs.ObjectKey(prefix, "", source, compression.Gzip)
	if err := c.staging.Upload(ctx, source, key, compression.Gzip); err != nil {
		return "", err
	}
	return c.staging.URI(key), nil
}
