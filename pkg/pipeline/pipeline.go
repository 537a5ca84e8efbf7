// Package pipeline loads the declarative description of one pipeline: its
// source and target endpoints, the default formatting of staged data, the
// data-object spec resolution mode and the ordered list of object specs.
//
// A Pipeline is built once per run and never mutated afterwards. Restricting
// a run to a subset of objects returns a new value.
package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/stageflow/pkg/config"
	"github.com/ajitpratap0/stageflow/pkg/errors"
)

// FileName is the pipeline definition file inside a pipeline directory.
const FileName = "pipeline.yaml"

// Category of a connector, as seen by the resolver.
type Category string

const (
	CategoryDatabase Category = "database"
	CategoryFile     Category = "file"
	CategoryStorage  Category = "storage"
)

// CategoryLookup maps a connector kind to its category.
type CategoryLookup func(kind string) Category

// Endpoint is one side of a pipeline. Connector specific keys stay in
// Attributes and are read through the typed accessors.
type Endpoint struct {
	Kind       string                 `yaml:"endpoint_type"`
	Platform   string                 `yaml:"platform_type,omitempty"`
	Attributes map[string]interface{} `yaml:",inline"`

	role     string
	category Category
}

// Role is "source_attributes" or "target_attributes".
func (e Endpoint) Role() string { return e.role }

// Category of the endpoint's connector.
func (e Endpoint) Category() Category { return e.category }

// IsFile reports whether the connector moves files, locally or in object
// storage, rather than database tables.
func (e Endpoint) IsFile() bool { return e.category == CategoryFile || e.category == CategoryStorage }

// String returns the attribute as a string, or "" when absent.
func (e Endpoint) String(key string) string {
	v, ok := e.Attributes[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// StringOr returns the attribute or def when it is absent or empty.
func (e Endpoint) StringOr(key, def string) string {
	if s := e.String(key); s != "" {
		return s
	}
	return def
}

// Require returns the attribute or a configuration error naming its key path.
func (e Endpoint) Require(key string) (string, error) {
	s := e.String(key)
	if s == "" {
		return "", errors.Newf(errors.ErrorTypeConfig, "missing required attribute pipeline.%s.%s", e.role, key).
			WithDetail("key", fmt.Sprintf("pipeline.%s.%s", e.role, key)).
			WithDetail("endpoint_type", e.Kind)
	}
	return s, nil
}

// ObjectSpec is the explicit configuration of one data object.
type ObjectSpec struct {
	ObjectName                string           `yaml:"object_name"`
	DestinationObjectName     string           `yaml:"destination_object_name"`
	RecreateDestinationObject bool             `yaml:"recreate_destination_object"`
	ExcludedColumns           []string         `yaml:"excluded_columns"`
	ObjectSourceDir           string           `yaml:"object_source_dir"`
	FileNames                 []string         `yaml:"file_names"`
	TargetFileDir             string           `yaml:"target_file_dir"`
	Settings                  SettingsOverride `yaml:"object_settings"`
}

// Pipeline is the immutable configuration of one run.
type Pipeline struct {
	Name            string
	Enabled         bool
	Source          Endpoint
	Target          Endpoint
	Mode            Mode
	DefaultSettings SettingsOverride
	Specs           []ObjectSpec
	Layout          Layout

	restricted []string
}

// Spec returns the first spec whose object name equals name.
func (p *Pipeline) Spec(name string) (*ObjectSpec, bool) {
	for i := range p.Specs {
		if p.Specs[i].ObjectName == name {
			return &p.Specs[i], true
		}
	}
	return nil, false
}

// SpecNames lists the object names of all specs in declaration order.
func (p *Pipeline) SpecNames() []string {
	names := make([]string, 0, len(p.Specs))
	for _, s := range p.Specs {
		names = append(names, s.ObjectName)
	}
	return names
}

// DeclaredObjects is the object list a run works on: the restriction when
// one was applied, otherwise every spec in order.
func (p *Pipeline) DeclaredObjects() []string {
	if p.restricted != nil {
		return append([]string(nil), p.restricted...)
	}
	return p.SpecNames()
}

// Restricted reports whether the run was narrowed to an explicit subset.
func (p *Pipeline) Restricted() bool { return p.restricted != nil }

// Restrict returns a copy of p limited to objects. Specs for other objects
// are dropped; requested objects without a spec stay declared and are left
// to the resolver.
func (p *Pipeline) Restrict(objects []string) *Pipeline {
	if len(objects) == 0 {
		return p
	}

	wanted := make(map[string]struct{}, len(objects))
	declared := make([]string, 0, len(objects))
	for _, o := range objects {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if _, dup := wanted[o]; dup {
			continue
		}
		wanted[o] = struct{}{}
		declared = append(declared, o)
	}

	cp := *p
	cp.Specs = make([]ObjectSpec, 0, len(declared))
	for _, s := range p.Specs {
		if _, ok := wanted[s.ObjectName]; ok {
			cp.Specs = append(cp.Specs, s)
		}
	}
	cp.restricted = declared
	return &cp
}

// ParseObjectList splits a comma separated -o argument.
func ParseObjectList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type document struct {
	Pipeline struct {
		Attributes struct {
			Name    string `yaml:"pipeline_name"`
			Enabled *bool  `yaml:"is_enabled"`
		} `yaml:"pipeline_attributes"`
		Source Endpoint `yaml:"source_attributes"`
		Target Endpoint `yaml:"target_attributes"`
		Data   struct {
			Mode     string           `yaml:"data_objects_spec_mode"`
			Defaults SettingsOverride `yaml:"object_default_settings"`
		} `yaml:"data_attributes"`
	} `yaml:"pipeline"`
}

type specDocument struct {
	Specs []struct {
		Spec *ObjectSpec `yaml:"object_spec"`
	} `yaml:"data_objects_spec"`
}

// Options configure Load.
type Options struct {
	// PipelineDir is the workspace directory holding one directory per pipeline.
	PipelineDir string
	// OutputDir is the workspace staging root.
	OutputDir string
	// Categories classifies connector kinds; nil treats every kind as a database.
	Categories CategoryLookup
}

// Load reads <PipelineDir>/<name>/pipeline.yaml.
func Load(name string, opts Options) (*Pipeline, error) {
	path := filepath.Join(opts.PipelineDir, name, FileName)

	var doc document
	var specs specDocument
	if err := config.LoadDocuments(path, &doc, &specs); err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "failed to load pipeline %s", name).
			WithDetail("path", path)
	}

	attrs := doc.Pipeline.Attributes
	if attrs.Name != name {
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"pipeline name %q does not match pipeline.pipeline_attributes.pipeline_name %q in %s", name, attrs.Name, path).
			WithDetail("key", "pipeline.pipeline_attributes.pipeline_name")
	}

	mode, err := ParseMode(doc.Pipeline.Data.Mode)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid pipeline.data_attributes.data_objects_spec_mode").
			WithDetail("key", "pipeline.data_attributes.data_objects_spec_mode")
	}

	lookup := opts.Categories
	if lookup == nil {
		lookup = func(string) Category { return CategoryDatabase }
	}

	p := &Pipeline{
		Name:            name,
		Enabled:         attrs.Enabled == nil || *attrs.Enabled,
		Source:          doc.Pipeline.Source,
		Target:          doc.Pipeline.Target,
		Mode:            mode,
		DefaultSettings: doc.Pipeline.Data.Defaults,
		Layout: Layout{
			PipelineDir: filepath.Join(opts.PipelineDir, name),
			OutputDir:   filepath.Join(opts.OutputDir, name),
		},
	}
	p.Source.role, p.Target.role = "source_attributes", "target_attributes"

	for _, ep := range []*Endpoint{&p.Source, &p.Target} {
		if ep.Kind == "" {
			return nil, errors.Newf(errors.ErrorTypeConfig, "missing required attribute pipeline.%s.endpoint_type", ep.role).
				WithDetail("key", fmt.Sprintf("pipeline.%s.endpoint_type", ep.role))
		}
		ep.category = lookup(ep.Kind)
	}

	for i, entry := range specs.Specs {
		if entry.Spec == nil {
			continue
		}
		if entry.Spec.ObjectName == "" {
			return nil, errors.Newf(errors.ErrorTypeConfig, "data_objects_spec[%d].object_spec.object_name is empty", i).
				WithDetail("key", fmt.Sprintf("data_objects_spec[%d].object_spec.object_name", i))
		}
		p.Specs = append(p.Specs, *entry.Spec)
	}

	return p, nil
}

// New assembles a pipeline in code. It is used by tests and by callers that
// build configuration without a YAML file.
func New(name string, source, target Endpoint, mode Mode, defaults SettingsOverride, specs []ObjectSpec, layout Layout) *Pipeline {
	source.role, target.role = "source_attributes", "target_attributes"
	if source.category == "" {
		source.category = CategoryDatabase
	}
	if target.category == "" {
		target.category = CategoryDatabase
	}
	return &Pipeline{
		Name:            name,
		Enabled:         true,
		Source:          source,
		Target:          target,
		Mode:            mode,
		DefaultSettings: defaults,
		Specs:           specs,
		Layout:          layout,
	}
}

// NewEndpoint builds an endpoint of the given kind and category.
func NewEndpoint(kind string, category Category, attrs map[string]interface{}) Endpoint {
	return Endpoint{Kind: kind, Attributes: attrs, category: category}
}
