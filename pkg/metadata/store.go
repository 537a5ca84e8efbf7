package metadata

import (
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/google/renameio/v2"

	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// Store persists metadata records and audited statements under a pipeline's
// staging layout. Writes are atomic so a crashed run never leaves a
// truncated record behind.
type Store struct {
	layout pipeline.Layout
}

// NewStore creates a store rooted at layout.
func NewStore(layout pipeline.Layout) *Store {
	return &Store{layout: layout}
}

// Save writes meta to the metadata file of its object, replacing any
// earlier record.
func (s *Store) Save(meta *ObjectMetadata) (string, error) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode object metadata").
			WithDetail("object", meta.SourceObjectName)
	}
	path := s.layout.MetadataFile(meta.SourceObjectName)
	if err := writeFile(path, append(data, '\n')); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads the metadata record of object. A missing record is a
// not_found error.
func (s *Store) Load(object string) (*ObjectMetadata, error) {
	path := s.layout.MetadataFile(object)
	data, err := os.ReadFile(path) //nolint:gosec // G304: path from pipeline layout
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrorTypeNotFound,
				"metadata for object %q not found at %s; run the extract phase first", object, path).
				WithDetail("object", object).WithDetail("path", path)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read object metadata").WithDetail("path", path)
	}

	var meta ObjectMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to decode object metadata").WithDetail("path", path)
	}
	return &meta, nil
}

// SaveStatement writes a composed statement to path for auditing.
func (s *Store) SaveStatement(path, statement string) error {
	return writeFile(path, []byte(statement))
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create metadata directory").WithDetail("path", path)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write file").WithDetail("path", path)
	}
	return nil
}
