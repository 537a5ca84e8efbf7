// Package dataobject resolves the effective configuration of a named data
// object: its explicit spec merged over the pipeline's default settings, or
// defaults alone when the resolution mode allows it.
package dataobject

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/logger"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// Object is a resolved data object. Settings is always fully populated.
type Object struct {
	Name                string
	DestinationName     string
	RecreateDestination bool
	ExcludedColumns     []string
	SourceDir           string
	FileNames           []string
	TargetFileDir       string
	Settings            pipeline.Settings
	// FromSpec is false when the object fell back to pipeline defaults.
	FromSpec bool
}

// Destination returns the destination name, defaulting to the object name.
func (o *Object) Destination() string {
	if o.DestinationName != "" {
		return o.DestinationName
	}
	return o.Name
}

// Excludes reports whether column is in the exclusion list.
func (o *Object) Excludes(column string) bool {
	for _, c := range o.ExcludedColumns {
		if c == column {
			return true
		}
	}
	return false
}

// Resolver resolves objects of one pipeline.
type Resolver struct {
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

// NewResolver creates a resolver. A nil logger uses the global one.
func NewResolver(p *pipeline.Pipeline, log *zap.Logger) *Resolver {
	if log == nil {
		log = logger.Get()
	}
	return &Resolver{
		pipeline: p,
		logger:   log.With(zap.String("component", "dataobject"), zap.String("pipeline", p.Name)),
	}
}

// Resolve returns the effective configuration of name.
func (r *Resolver) Resolve(name string) (*Object, error) {
	p := r.pipeline

	spec, found := p.Spec(name)
	if !found {
		switch p.Mode {
		case pipeline.ModeOnly:
			return nil, errors.Newf(errors.ErrorTypeConfig,
				"no data_objects_spec entry for object %q in pipeline %s; data_objects_spec_mode is only, add an object_spec for it",
				name, p.Name).WithDetail("object", name).WithDetail("key", "data_objects_spec")
		case pipeline.ModeIgnore, pipeline.ModePrefer:
			// defaults carry no object_source_dir
			if p.Source.IsFile() {
				return nil, errors.Newf(errors.ErrorTypeConfig,
					"no data_objects_spec entry for object %q in pipeline %s; %s sources need object_source_dir even when data_objects_spec_mode is %s",
					name, p.Name, p.Source.Kind, p.Mode).WithDetail("object", name).WithDetail("key", "data_objects_spec")
			}
			if p.Mode == pipeline.ModePrefer {
				r.logger.Warn("data object has no spec, using pipeline defaults", zap.String("object", name))
			}
		}
		return r.defaults(name)
	}

	settings, err := MergeSettings(p.DefaultSettings, spec.Settings)
	if err != nil {
		return nil, err
	}

	obj := &Object{
		Name:                name,
		DestinationName:     spec.DestinationObjectName,
		RecreateDestination: spec.RecreateDestinationObject,
		ExcludedColumns:     append([]string(nil), spec.ExcludedColumns...),
		SourceDir:           spec.ObjectSourceDir,
		FileNames:           append([]string(nil), spec.FileNames...),
		TargetFileDir:       spec.TargetFileDir,
		Settings:            settings,
		FromSpec:            true,
	}

	if p.Source.IsFile() && obj.SourceDir == "" {
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"object %q has no object_source_dir; it is required for %s sources", name, p.Source.Kind).
			WithDetail("object", name).
			WithDetail("key", "data_objects_spec.object_spec.object_source_dir")
	}

	return obj, nil
}

// ResolveAll resolves names in order and stops at the first failure.
func (r *Resolver) ResolveAll(names []string) ([]*Object, error) {
	out := make([]*Object, 0, len(names))
	for _, n := range names {
		obj, err := r.Resolve(n)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

func (r *Resolver) defaults(name string) (*Object, error) {
	settings, err := MergeSettings(r.pipeline.DefaultSettings)
	if err != nil {
		return nil, err
	}
	return &Object{Name: name, Settings: settings}, nil
}

// Resolve is a shorthand for NewResolver(p, nil).Resolve(name).
func Resolve(p *pipeline.Pipeline, name string) (*Object, error) {
	return NewResolver(p, nil).Resolve(name)
}
