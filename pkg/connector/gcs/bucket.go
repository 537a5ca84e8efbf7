// Package gcs connects Google Cloud Storage as a file source and as a
// publishing target. Bucket is also used by the BigQuery connector to stage
// files for load jobs.
package gcs

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/ajitpratap0/stageflow/pkg/compression"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// NewClient creates a storage client with the credentials of ep.
func NewClient(ctx context.Context, ep pipeline.Endpoint) (*storage.Client, error) {
	opts, err := ClientOptions(ctx, ep, storage.ScopeReadWrite)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create GCS client")
	}
	return client, nil
}

// Bucket performs the object operations of one bucket.
type Bucket struct {
	handle *storage.BucketHandle
	name   string
	logger *zap.Logger
}

// NewBucket returns a Bucket bound to name.
func NewBucket(client *storage.Client, name string, logger *zap.Logger) *Bucket {
	return &Bucket{handle: client.Bucket(name), name: name, logger: logger}
}

// Name of the bucket.
func (b *Bucket) Name() string { return b.name }

// URI returns the gs:// address of key.
func (b *Bucket) URI(key string) string {
	return "gs://" + b.name + "/" + key
}

// Upload writes the local file to key, compressing it with alg on the fly.
func (b *Bucket) Upload(ctx context.Context, local, key string, alg compression.Algorithm) error {
	f, err := os.Open(local) //nolint:gosec // G304: staging path
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open staged file").WithDetail("path", local)
	}
	defer f.Close()

	w := b.handle.Object(key).NewWriter(ctx)
	w.ContentType = "text/csv"
	if alg != compression.None {
		w.ContentType = "application/octet-stream"
	}

	zw, err := compression.NewWriter(w, alg, compression.Default)
	if err != nil {
		_ = w.Close()
		return errors.Wrap(err, errors.ErrorTypeConfig, "unsupported compression")
	}
	n, err := io.Copy(zw, f)
	if err == nil {
		err = zw.Close()
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "upload failed").WithDetail("uri", b.URI(key))
	}

	b.logger.Info("uploaded", zap.String("uri", b.URI(key)), zap.Int64("bytes", n))
	return nil
}

// List returns the keys under prefix. A non-empty prefix is treated as a
// directory.
func (b *Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	q := &storage.Query{Prefix: dirPrefix(prefix)}
	if err := q.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "invalid attribute selection")
	}

	var keys []string
	it := b.handle.Objects(ctx, q)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to list objects").
				WithDetail("uri", b.URI(q.Prefix))
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// DeletePrefix removes every object under prefix and returns how many were
// deleted.
func (b *Bucket) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if dirPrefix(prefix) == "" {
		return 0, errors.New(errors.ErrorTypeValidation, "refusing to delete the whole bucket")
	}
	keys, err := b.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if err := b.handle.Object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return 0, errors.Wrap(err, errors.ErrorTypeConnection, "failed to delete object").WithDetail("uri", b.URI(key))
		}
	}
	if len(keys) > 0 {
		b.logger.Info("deleted objects", zap.String("prefix", b.URI(dirPrefix(prefix))), zap.Int("count", len(keys)))
	}
	return len(keys), nil
}

// Download copies key into the local file.
func (b *Bucket) Download(ctx context.Context, key, local string) error {
	r, err := b.handle.Object(key).NewReader(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to open object").WithDetail("uri", b.URI(key))
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create directory").WithDetail("path", local)
	}
	f, err := os.Create(local) //nolint:gosec // G304: staging path
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create file").WithDetail("path", local)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "download failed").WithDetail("uri", b.URI(key))
	}
	return f.Close()
}

// dirPrefix normalises prefix to "" or a value ending in "/".
func dirPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// ObjectKey joins prefix, the object directory and the file name, adding
// the extension of alg.
func ObjectKey(prefix, object, file string, alg compression.Algorithm) string {
	name := filepath.Base(file)
	if alg != compression.None && compression.Detect(name) == compression.None {
		name += alg.Extension()
	}
	return path.Join(strings.Trim(prefix, "/"), object, name)
}
