package registry

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/stageflow/pkg/connector/core"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/logger"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
	"github.com/ajitpratap0/stageflow/pkg/typemapping"
)

// Factory creates a connector for one endpoint of a pipeline.
type Factory func(ctx context.Context, endpoint pipeline.Endpoint) (core.Connector, error)

// Descriptor is what a connector package registers at startup.
type Descriptor struct {
	// Kind is the endpoint_type value selecting the connector.
	Kind        string
	Category    pipeline.Category
	Description string
	// Resources holds statement templates, the extractor transform and the
	// type_mapping directory.
	Resources fs.FS
	// TypeMappingDirs are the candidate directories inside Resources, in
	// search order. Empty means "type_mapping".
	TypeMappingDirs []string
	// TypeFamily names the mapping file this connector's metadata is
	// translated with when used as a source. Empty means Kind.
	TypeFamily string
	// LoadTemplate overrides core.LoadTemplate.
	LoadTemplate string
	NewSource    Factory
	NewTarget    Factory
}

// Supports reports whether the connector can act in role.
func (d *Descriptor) Supports(role core.Role) bool {
	if role == core.RoleSource {
		return d.NewSource != nil
	}
	return d.NewTarget != nil
}

// Template reads a statement template from the connector resources.
func (d *Descriptor) Template(name string) (string, error) {
	if d.Resources == nil {
		return "", errors.Newf(errors.ErrorTypeCapability, "connector %s ships no statement templates", d.Kind)
	}
	data, err := fs.ReadFile(d.Resources, name)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrorTypeNotFound, "connector %s has no template %s", d.Kind, name).
			WithDetail("connector", d.Kind)
	}
	return string(data), nil
}

// LoadTemplateName returns the load template file name.
func (d *Descriptor) LoadTemplateName() string {
	if d.LoadTemplate != "" {
		return d.LoadTemplate
	}
	return core.LoadTemplate
}

// Registry maps connector kinds to descriptors.
type Registry struct {
	connectors map[string]*Descriptor
	mu         sync.RWMutex
	logger     *zap.Logger
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]*Descriptor),
		logger:     logger.Get().With(zap.String("component", "connector_registry")),
	}
}

// Register adds a connector. Registering a kind twice is an error.
func (r *Registry) Register(d Descriptor) error {
	if d.Kind == "" {
		return errors.New(errors.ErrorTypeConfig, "connector descriptor without kind")
	}
	if d.NewSource == nil && d.NewTarget == nil {
		return errors.Newf(errors.ErrorTypeConfig, "connector %s registers neither a source nor a target", d.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connectors[d.Kind]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("connector %s already registered", d.Kind))
	}
	r.connectors[d.Kind] = &d
	r.logger.Debug("connector registered", zap.String("kind", d.Kind), zap.String("category", string(d.Category)))
	return nil
}

// Lookup returns the descriptor of kind.
func (r *Registry) Lookup(kind string) (*Descriptor, error) {
	r.mu.RLock()
	d, ok := r.connectors[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig, "connector %s not found; registered: %v", kind, r.Kinds()).
			WithDetail("kind", kind)
	}
	return d, nil
}

// Create instantiates the connector of an endpoint in role.
func (r *Registry) Create(ctx context.Context, role core.Role, endpoint pipeline.Endpoint) (core.Connector, error) {
	d, err := r.Lookup(endpoint.Kind)
	if err != nil {
		return nil, err
	}

	factory := d.NewTarget
	if role == core.RoleSource {
		factory = d.NewSource
	}
	if factory == nil {
		return nil, errors.Newf(errors.ErrorTypeCapability, "connector %s cannot be used as %s", d.Kind, role).
			WithDetail("kind", d.Kind)
	}

	c, err := factory(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrap(err, errors.TypeOf(err), fmt.Sprintf("failed to create %s connector %s", role, d.Kind))
	}
	return c, nil
}

// Kinds lists registered connector kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.connectors))
	for k := range r.connectors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Category classifies kind; unknown kinds are treated as databases so that
// the error surfaces when the connector is created.
func (r *Registry) Category(kind string) pipeline.Category {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.connectors[kind]; ok && d.Category != "" {
		return d.Category
	}
	return pipeline.CategoryDatabase
}

// TypeMappingLocations implements typemapping.Catalog.
func (r *Registry) TypeMappingLocations(targetKind, sourceKind string) []typemapping.Location {
	r.mu.RLock()
	d, ok := r.connectors[targetKind]
	source := r.connectors[sourceKind]
	r.mu.RUnlock()
	if !ok || d.Resources == nil {
		return nil
	}

	file := ""
	if source != nil && source.TypeFamily != "" {
		file = source.TypeFamily + ".json"
	}

	dirs := d.TypeMappingDirs
	if len(dirs) == 0 {
		dirs = []string{"type_mapping"}
	}
	locs := make([]typemapping.Location, 0, len(dirs))
	for _, dir := range dirs {
		loc := typemapping.FromFS(d.Resources, path.Clean(dir))
		loc.File = file
		locs = append(locs, loc)
	}
	return locs
}

// TransformerLocation implements typemapping.Catalog.
func (r *Registry) TransformerLocation(sourceKind string) (typemapping.Location, bool) {
	r.mu.RLock()
	d, ok := r.connectors[sourceKind]
	r.mu.RUnlock()
	if !ok || d.Resources == nil {
		return typemapping.Location{}, false
	}
	return typemapping.FromFS(d.Resources, "."), true
}

// Clear removes all connectors (mainly for testing).
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors = make(map[string]*Descriptor)
}

// Register adds a connector to the global registry.
func Register(d Descriptor) error {
	return globalRegistry.Register(d)
}

// MustRegister is Register for init functions.
func MustRegister(d Descriptor) {
	if err := globalRegistry.Register(d); err != nil {
		panic(err)
	}
}

// Lookup finds a connector in the global registry.
func Lookup(kind string) (*Descriptor, error) {
	return globalRegistry.Lookup(kind)
}

// Kinds lists the connectors of the global registry.
func Kinds() []string {
	return globalRegistry.Kinds()
}

// Category classifies kind using the global registry.
func Category(kind string) pipeline.Category {
	return globalRegistry.Category(kind)
}

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}
