// Package typemapping resolves the translation tables used when a data
// object crosses connectors.
//
// A type mapping turns a source data type name into a target DDL type. An
// extractor transform turns a source data type into a column expression
// template applied during extraction, for example CAST({column_name} AS TEXT).
//
// Both follow the same search: a pipeline-local override file wins outright;
// otherwise the first existing file among the connector's registered
// candidate locations is used. Tables are never merged.
package typemapping

import (
	"io/fs"
	"path"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/logger"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// Placeholder is written in DDL for a column whose type has no mapping.
const Placeholder = "UNMAPPED_TYPE"

// TransformerFile is the extractor transform file name inside a location.
const TransformerFile = "extractor_type_transformer.json"

// Location is a directory that may hold mapping files.
type Location struct {
	FS  afero.Fs
	Dir string
	// File replaces the default file name looked up in Dir.
	File string
}

// Describe returns a printable form of the location.
func (l Location) Describe(file string) string {
	return path.Join(l.Dir, file)
}

// FromFS wraps a read-only fs.FS, such as an embedded resource tree.
func FromFS(fsys fs.FS, dir string) Location {
	return Location{FS: afero.FromIOFS{FS: fsys}, Dir: dir}
}

// Catalog reports the candidate locations a connector registered.
type Catalog interface {
	// TypeMappingLocations returns the candidate locations of the
	// target connector for tables translating from sourceKind, in search
	// order.
	TypeMappingLocations(targetKind, sourceKind string) []Location
	// TransformerLocation returns where the source connector keeps its
	// default extractor transform, if it has one.
	TransformerLocation(sourceKind string) (Location, bool)
}

// Mapping is one active translation table.
type Mapping struct {
	// Origin is the file the table was read from, "" when empty.
	Origin string
	Types  map[string]string
}

// Lookup returns the mapped value of a source data type. Exact matches win;
// otherwise the comparison ignores case, and among keys that differ only by
// case the lexically smallest one is used.
func (m *Mapping) Lookup(sourceType string) (string, bool) {
	if m == nil {
		return "", false
	}
	if v, ok := m.Types[sourceType]; ok {
		return v, true
	}
	match, found := "", false
	for k := range m.Types {
		if strings.EqualFold(k, sourceType) && (!found || k < match) {
			match, found = k, true
		}
	}
	if !found {
		return "", false
	}
	return m.Types[match], true
}

// Len is the number of entries.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Types)
}

// Engine resolves mappings for one pipeline.
type Engine struct {
	local   afero.Fs
	layout  pipeline.Layout
	catalog Catalog
	logger  *zap.Logger
}

// NewEngine creates an engine. local is the filesystem holding the
// pipeline directory, normally afero.NewOsFs().
func NewEngine(local afero.Fs, layout pipeline.Layout, catalog Catalog, log *zap.Logger) *Engine {
	if log == nil {
		log = logger.Get()
	}
	return &Engine{
		local:   local,
		layout:  layout,
		catalog: catalog,
		logger:  log.With(zap.String("component", "typemapping")),
	}
}

// Resolve returns the target-type table for the (target, source) pair.
func (e *Engine) Resolve(targetKind, sourceKind string) (*Mapping, error) {
	override := Location{FS: e.local, Dir: e.layout.PipelineDir}
	file := sourceKind + ".json"

	candidates := append([]Location{override}, e.catalog.TypeMappingLocations(targetKind, sourceKind)...)
	for _, loc := range candidates {
		m, found, err := e.read(loc, file)
		if err != nil {
			return nil, err
		}
		if found {
			e.logger.Info("loaded data type mapping",
				zap.String("source", sourceKind), zap.String("target", targetKind),
				zap.String("path", m.Origin), zap.Int("entries", m.Len()))
			return m, nil
		}
	}

	return nil, errors.Newf(errors.ErrorTypeTypeMapping,
		"no type mapping from %s to %s; add %s to the pipeline directory", sourceKind, targetKind, override.Describe(file)).
		WithDetail("source", sourceKind).WithDetail("target", targetKind)
}

// ResolveExtractorTransform returns the column expression templates of the
// source connector. A connector without any transform yields an empty table.
func (e *Engine) ResolveExtractorTransform(sourceKind string) (*Mapping, error) {
	override := Location{FS: e.local, Dir: e.layout.PipelineDir}

	candidates := []Location{override}
	if loc, ok := e.catalog.TransformerLocation(sourceKind); ok {
		candidates = append(candidates, loc)
	}
	for _, loc := range candidates {
		m, found, err := e.read(loc, TransformerFile)
		if err != nil {
			return nil, err
		}
		if found {
			e.logger.Debug("loaded extractor type transformer", zap.String("path", m.Origin), zap.Int("entries", m.Len()))
			return m, nil
		}
	}
	return &Mapping{Types: map[string]string{}}, nil
}

func (e *Engine) read(loc Location, file string) (*Mapping, bool, error) {
	if loc.FS == nil {
		return nil, false, nil
	}
	if loc.File != "" {
		file = loc.File
	}
	p := path.Join(loc.Dir, file)
	if loc.Dir == "" {
		p = file
	}
	ok, err := afero.Exists(loc.FS, p)
	if err != nil || !ok {
		return nil, false, nil
	}
	data, err := afero.ReadFile(loc.FS, p)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrorTypeFile, "failed to read mapping file").WithDetail("path", p)
	}

	types := map[string]string{}
	if err := json.Unmarshal(data, &types); err != nil {
		return nil, false, errors.Wrap(err, errors.ErrorTypeTypeMapping, "failed to decode mapping file").WithDetail("path", p)
	}
	return &Mapping{Origin: p, Types: types}, true, nil
}
