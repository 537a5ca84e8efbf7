// Package s3 connects Amazon S3 (and S3 compatible stores) as a file source
// and as a publishing target.
package s3

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stageflow/pkg/composer"
	"github.com/ajitpratap0/stageflow/pkg/compression"
	"github.com/ajitpratap0/stageflow/pkg/connector/base"
	"github.com/ajitpratap0/stageflow/pkg/connector/core"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// Kind is the endpoint_type of this connector.
const Kind = "s3"

// deleteBatch is the DeleteObjects limit.
const deleteBatch = 1000

// API is the subset of the S3 client the connector uses.
type API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Connector reads object files from and publishes staged files to a bucket.
type Connector struct {
	*base.BaseConnector

	api      API
	uploader *manager.Uploader
	bucket   string
}

// LoadConfig resolves AWS configuration from endpoint attributes. Static
// keys win over aws_profile_name; both fall back to the default chain.
func LoadConfig(ctx context.Context, ep pipeline.Endpoint) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region := ep.String("aws_region"); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile := ep.String("aws_profile_name"); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if id := ep.String("aws_access_key_id"); id != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(id, ep.String("aws_secret_access_key"), ep.String("aws_session_token"))))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}
	return cfg, nil
}

// New creates the connector for aws_bucket_name. aws_endpoint_url points
// the client at an S3 compatible service with path style addressing.
func New(ctx context.Context, ep pipeline.Endpoint) (*Connector, error) {
	bucket, err := ep.Require("aws_bucket_name")
	if err != nil {
		return nil, err
	}
	cfg, err := LoadConfig(ctx, ep)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if url := ep.String("aws_endpoint_url"); url != "" {
			o.BaseEndpoint = aws.String(url)
			o.UsePathStyle = true
		}
	})
	return NewWithAPI(client, bucket, ep), nil
}

// NewWithAPI builds the connector on an existing client.
func NewWithAPI(api API, bucket string, ep pipeline.Endpoint) *Connector {
	return &Connector{
		BaseConnector: base.NewBaseConnector(Kind, ep),
		api:           api,
		uploader:      manager.NewUploader(api),
		bucket:        bucket,
	}
}

// Close is a no-op; the SDK client holds no connections of its own.
func (c *Connector) Close() error { return nil }

func (c *Connector) uri(key string) string {
	return "s3://" + c.bucket + "/" + key
}

// List returns the keys under prefix, treated as a directory.
func (c *Connector) List(ctx context.Context, prefix string) ([]string, error) {
	p := dirPrefix(prefix)
	pages := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(p),
	})

	var keys []string
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to list objects").WithDetail("uri", c.uri(p))
		}
		for _, obj := range page.Contents {
			if k := aws.ToString(obj.Key); k != "" && !strings.HasSuffix(k, "/") {
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

// DeletePrefix removes every object under prefix.
func (c *Connector) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if dirPrefix(prefix) == "" {
		return 0, errors.New(errors.ErrorTypeValidation, "refusing to delete the whole bucket")
	}
	keys, err := c.List(ctx, prefix)
	if err != nil {
		return 0, err
	}

	for start := 0; start < len(keys); start += deleteBatch {
		end := start + deleteBatch
		if end > len(keys) {
			end = len(keys)
		}
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := c.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrorTypeConnection, "failed to delete objects").WithDetail("uri", c.uri(dirPrefix(prefix)))
		}
		if out != nil && len(out.Errors) > 0 {
			e := out.Errors[0]
			return 0, errors.Newf(errors.ErrorTypeConnection, "failed to delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}
	if len(keys) > 0 {
		c.Logger().Info("deleted objects", zap.String("prefix", c.uri(dirPrefix(prefix))), zap.Int("count", len(keys)))
	}
	return len(keys), nil
}

// Upload writes the local file to key, compressing it with alg on the fly.
func (c *Connector) Upload(ctx context.Context, local, key string, alg compression.Algorithm) error {
	f, err := os.Open(local) //nolint:gosec // G304: staging path
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open staged file").WithDetail("path", local)
	}
	defer f.Close()

	var body io.Reader = f
	if alg != compression.None {
		pr, pw := io.Pipe()
		go func() {
			zw, err := compression.NewWriter(pw, alg, compression.Default)
			if err == nil {
				_, err = io.Copy(zw, f)
				if cerr := zw.Close(); err == nil {
					err = cerr
				}
			}
			pw.CloseWithError(err)
		}()
		defer pr.Close()
		body = pr
	}

	if _, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   body,
	}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "upload failed").WithDetail("uri", c.uri(key))
	}

	size := "unknown"
	if st, err := os.Stat(local); err == nil {
		size = humanize.Bytes(uint64(st.Size()))
	}
	c.Logger().Info("uploaded", zap.String("uri", c.uri(key)), zap.String("source_size", size))
	return nil
}

// Download copies key into the local file.
func (c *Connector) Download(ctx context.Context, key, local string) error {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(c.bucket), Key: aws.String(key)})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to get object").WithDetail("uri", c.uri(key))
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create directory").WithDetail("path", local)
	}
	f, err := os.Create(local) //nolint:gosec // G304: staging path
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create file").WithDetail("path", local)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		_ = f.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "download failed").WithDetail("uri", c.uri(key))
	}
	return f.Close()
}

// ExtractFiles downloads the objects under set.SourceDir that match
// set.FileNames into destDir.
func (c *Connector) ExtractFiles(ctx context.Context, set core.FileSet, destDir string) ([]string, error) {
	keys, err := c.List(ctx, set.SourceDir)
	if err != nil {
		return nil, err
	}

	p := dirPrefix(set.SourceDir)
	rel := make([]string, 0, len(keys))
	for _, k := range keys {
		rel = append(rel, strings.TrimPrefix(k, p))
	}
	names, err := composer.MatchNames(rel, set.FileNames)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "no files for object %s under %s", set.Object, c.uri(p)).
			WithDetail("object", set.Object)
	}

	var staged []string
	for _, name := range names {
		local := filepath.Join(destDir, path.Base(name))
		if err := c.Download(ctx, p+name, local); err != nil {
			return staged, err
		}
		staged = append(staged, local)
	}
	c.Logger().Info("downloaded object files", zap.String("object", set.Object), zap.Int("files", len(staged)))
	return staged, nil
}

// Publish uploads the staged files to destination_prefix_path/<destination>/.
func (c *Connector) Publish(ctx context.Context, pub core.Publication) error {
	alg, err := compression.Parse(pub.Compression)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid compression")
	}
	prefix := strings.Trim(c.Endpoint().String("destination_prefix_path"), "/")

	if pub.Recreate {
		if _, err := c.DeletePrefix(ctx, path.Join(prefix, pub.Destination)); err != nil {
			return err
		}
	}
	for _, f := range pub.Files {
		if err := c.Upload(ctx, f, ObjectKey(prefix, pub.Destination, f, alg), alg); err != nil {
			return err
		}
	}
	return nil
}

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
