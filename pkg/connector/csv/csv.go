// Package csv connects local delimited files as a source and as a target.
// The source copies an object's files into staging; the target copies
// staged files out of it.
package csv

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stageflow/pkg/composer"
	"github.com/ajitpratap0/stageflow/pkg/compression"
	"github.com/ajitpratap0/stageflow/pkg/connector/base"
	"github.com/ajitpratap0/stageflow/pkg/connector/core"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// Kind is the endpoint_type of this connector.
const Kind = "csv"

// Connector reads and writes files on the local filesystem.
type Connector struct {
	*base.BaseConnector
}

// New creates the connector. No I/O happens until a file operation.
func New(_ context.Context, ep pipeline.Endpoint) (*Connector, error) {
	return &Connector{BaseConnector: base.NewBaseConnector(Kind, ep)}, nil
}

// Close implements core.Connector.
func (c *Connector) Close() error { return nil }

// ExtractFiles copies the files of set into destDir. Names without glob
// characters must exist.
func (c *Connector) ExtractFiles(ctx context.Context, set core.FileSet, destDir string) ([]string, error) {
	if st, err := os.Stat(set.SourceDir); err != nil || !st.IsDir() {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "object_source_dir %s of object %s is not a directory", set.SourceDir, set.Object).
			WithDetail("object", set.Object).
			WithDetail("key", "data_objects_spec.object_spec.object_source_dir")
	}

	for _, name := range set.FileNames {
		if isLiteral(name) {
			if _, err := os.Stat(filepath.Join(set.SourceDir, name)); err != nil {
				return nil, errors.Newf(errors.ErrorTypeNotFound, "file %s of object %s not found in %s", name, set.Object, set.SourceDir).
					WithDetail("object", set.Object)
			}
		}
	}

	files, err := composer.MatchFiles(set.SourceDir, set.FileNames)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "no files for object %s in %s", set.Object, set.SourceDir).
			WithDetail("object", set.Object)
	}

	staged := make([]string, 0, len(files))
	for _, src := range files {
		if err := ctx.Err(); err != nil {
			return staged, err
		}
		dst := filepath.Join(destDir, filepath.Base(src))
		if err := copyFile(src, dst, compression.None); err != nil {
			return staged, err
		}
		staged = append(staged, dst)
	}
	c.Logger().Info("copied object files", zap.String("object", set.Object), zap.Int("files", len(staged)))
	return staged, nil
}

// Publish copies staged files into pub.Directory, or into
// destination_dir_path/<destination> when the object sets none. The base
// directory must exist.
func (c *Connector) Publish(ctx context.Context, pub core.Publication) error {
	alg, err := compression.Parse(pub.Compression)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid compression")
	}

	dir, root := pub.Directory, pub.Directory
	if dir == "" {
		if root, err = c.Endpoint().Require("destination_dir_path"); err != nil {
			return err
		}
		dir = filepath.Join(root, pub.Destination)
	}
	if st, err := os.Stat(root); err != nil || !st.IsDir() {
		return errors.Newf(errors.ErrorTypeConfig, "target directory %s does not exist", root).
			WithDetail("object", pub.Object)
	}

	if pub.Recreate && pub.Directory == "" {
		if err := composer.ResetDir(dir); err != nil {
			return err
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create target directory").WithDetail("dir", dir)
	}

	for _, src := range pub.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := filepath.Base(src)
		if alg != compression.None && compression.Detect(name) == compression.None {
			name += alg.Extension()
		}
		if err := copyFile(src, filepath.Join(dir, name), alg); err != nil {
			return err
		}
	}
	c.Logger().Info("published object files",
		zap.String("object", pub.Object),
		zap.String("dir", dir),
		zap.Int("files", len(pub.Files)))
	return nil
}

// copyFile writes src to dst atomically, compressing with alg unless src
// already is compressed.
func copyFile(src, dst string, alg compression.Algorithm) error {
	in, err := os.Open(src) //nolint:gosec // G304: configured source path
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open file").WithDetail("path", src)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create directory").WithDetail("path", dst)
	}
	out, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0o644))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create file").WithDetail("path", dst)
	}
	defer out.Cleanup() //nolint:errcheck

	if compression.Detect(src) != compression.None {
		alg = compression.None
	}
	zw, err := compression.NewWriter(out, alg, compression.Default)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "unsupported compression")
	}
	if _, err := io.Copy(zw, in); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to copy file").WithDetail("path", src)
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to finish file").WithDetail("path", dst)
	}
	if err := out.CloseAtomicallyReplace(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write file").WithDetail("path", dst)
	}
	return nil
}

func isLiteral(name string) bool {
	return !strings.ContainsAny(name, "*?[{\\")
}
