// Package load drives the load phase of a pipeline run. It reconciles the
// staged objects with the pipeline's declarations and, per object, either
// publishes the staged files to a file or storage target or creates the
// destination table from persisted metadata and loads every staged file
// into it.
package load

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stageflow/internal/runstate"
	"github.com/ajitpratap0/stageflow/pkg/composer"
	"github.com/ajitpratap0/stageflow/pkg/connector/core"
	"github.com/ajitpratap0/stageflow/pkg/connector/registry"
	"github.com/ajitpratap0/stageflow/pkg/dataobject"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/logger"
	"github.com/ajitpratap0/stageflow/pkg/metadata"
	"github.com/ajitpratap0/stageflow/pkg/metrics"
	"github.com/ajitpratap0/stageflow/pkg/observability"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
	"github.com/ajitpratap0/stageflow/pkg/typemapping"
)

// State of a load run.
type State = runstate.State

const (
	StateIdle                   State = "Idle"
	StateReconciling            State = "Reconciling"
	StateComposingDDL           State = "ComposingDDL"
	StateDropping               State = "Dropping"
	StateCreating               State = "Creating"
	StateComposingLoadStatement State = "ComposingLoadStatement"
	StateLoading                State = "Loading"
	StateDone                   State = "Done"
)

// Options carry the collaborators of an orchestrator. Zero values select
// the global registry, the global logger and the OS filesystem.
type Options struct {
	Registry *registry.Registry
	Metrics  *metrics.Collector
	Logger   *zap.Logger
	FS       afero.Fs
	// PreferAuthoritative loads every staged object in prefer mode.
	PreferAuthoritative bool
}

// Orchestrator runs the load phase of one pipeline.
type Orchestrator struct {
	pipeline   *pipeline.Pipeline
	target     core.Connector
	descriptor *registry.Descriptor
	resolver   *dataobject.Resolver
	store      *metadata.Store
	mappings   *typemapping.Engine
	metrics    *metrics.Collector
	logger     *zap.Logger
	machine    *runstate.Machine
	opts       Options
}

// Summary counts the objects of a finished run.
type Summary struct {
	Loaded  []string
	Skipped []string
}

// New prepares a load run of p writing to target.
func New(p *pipeline.Pipeline, target core.Connector, opts Options) (*Orchestrator, error) {
	reg := opts.Registry
	if reg == nil {
		reg = registry.GetRegistry()
	}
	d, err := reg.Lookup(target.Kind())
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.Get()
	}
	log = log.With(zap.String("pipeline", p.Name), zap.String("phase", metrics.PhaseLoad))
	fs := opts.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}

	return &Orchestrator{
		pipeline:   p,
		target:     target,
		descriptor: d,
		resolver:   dataobject.NewResolver(p, log),
		store:      metadata.NewStore(p.Layout),
		mappings:   typemapping.NewEngine(fs, p.Layout, reg, log),
		metrics:    opts.Metrics,
		logger:     log,
		machine:    runstate.NewMachine(StateIdle, log),
		opts:       opts,
	}, nil
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.machine.Current() }

// History returns the states entered so far.
func (o *Orchestrator) History() []State { return o.machine.History() }

// Run loads every effective object. Object-level staging problems are
// logged and skip the object; everything else aborts the run.
func (o *Orchestrator) Run(ctx context.Context) (summary Summary, err error) {
	ctx = logger.ContextWith(ctx, logger.PhaseKey, metrics.PhaseLoad)
	ctx, span := observability.StartPhase(ctx, o.pipeline.Name, metrics.PhaseLoad)
	timer := metrics.NewTimer()
	defer func() {
		o.metrics.RunFinished(metrics.PhaseLoad, timer.Stop(), err)
		observability.End(span, err)
	}()

	o.logger.Info("load started", zap.String("target", o.target.Kind()))

	o.machine.Transition(ctx, StateReconciling)
	objects, err := o.reconcile()
	if err != nil {
		return summary, err
	}

	var load objectFunc
	if pub, ok := o.target.(core.Publisher); ok {
		load = func(ctx context.Context, obj *dataobject.Object) (bool, error) {
			return o.publish(ctx, pub, obj)
		}
	} else {
		t, err := o.prepareTable()
		if err != nil {
			return summary, err
		}
		load = t.load
	}

	for _, name := range objects {
		loaded, err := o.runObject(ctx, name, load)
		if err != nil {
			return summary, err
		}
		if loaded {
			summary.Loaded = append(summary.Loaded, name)
		} else {
			summary.Skipped = append(summary.Skipped, name)
		}
	}

	o.machine.Transition(ctx, StateDone,
		zap.Int("loaded", len(summary.Loaded)),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Duration("duration", timer.Stop()))
	return summary, nil
}

type objectFunc func(ctx context.Context, obj *dataobject.Object) (bool, error)

func (o *Orchestrator) runObject(ctx context.Context, name string, load objectFunc) (loaded bool, err error) {
	ctx = logger.ContextWith(ctx, logger.ObjectKey, name)
	ctx, span := observability.StartObject(ctx, metrics.PhaseLoad, name)
	defer func() {
		switch {
		case err != nil:
			o.metrics.ObjectProcessed(metrics.PhaseLoad, metrics.OutcomeFailed)
		case loaded:
			o.metrics.ObjectProcessed(metrics.PhaseLoad, metrics.OutcomeDone)
		default:
			o.metrics.ObjectProcessed(metrics.PhaseLoad, metrics.OutcomeSkipped)
		}
		observability.End(span, err)
	}()

	obj, err := o.resolver.Resolve(name)
	if err != nil {
		return false, err
	}
	return load(ctx, obj)
}

// reconcile lists the staged objects and narrows them to the effective set.
// Declared objects without staged data are reported, not loaded.
func (o *Orchestrator) reconcile() ([]string, error) {
	staged, err := composer.StagedObjects(o.pipeline.Layout)
	if err != nil {
		return nil, err
	}
	objects := composer.EffectiveObjects(o.pipeline, staged,
		composer.Options{PreferAuthoritative: o.opts.PreferAuthoritative})

	present := make(map[string]bool, len(staged))
	for _, s := range staged {
		present[s] = true
	}
	for _, name := range o.pipeline.DeclaredObjects() {
		if !present[name] {
			o.logger.Error("declared object has no staged data, skipping", zap.String("object", name),
				zap.String("path", o.pipeline.Layout.ObjectDir(name)))
			o.metrics.ObjectProcessed(metrics.PhaseLoad, metrics.OutcomeSkipped)
		}
	}

	o.logger.Info("objects reconciled",
		zap.Int("staged", len(staged)),
		zap.Int("effective", len(objects)),
		zap.String("mode", string(o.pipeline.Mode)))
	return objects, nil
}

// stagedFiles returns the data files of name, or nil after logging when
// there are none.
func (o *Orchestrator) stagedFiles(name string) ([]string, error) {
	dir := o.pipeline.Layout.DataDir(name)
	files, err := composer.MatchFiles(dir, []string{"*"})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		o.logger.Error("staging directory is absent or empty, skipping object",
			zap.String("object", name), zap.String("path", dir))
		return nil, nil
	}
	return files, nil
}

func (o *Orchestrator) publish(ctx context.Context, pub core.Publisher, obj *dataobject.Object) (bool, error) {
	files, err := o.stagedFiles(obj.Name)
	if err != nil || files == nil {
		return false, err
	}

	o.machine.Transition(ctx, StateLoading, zap.String("object", obj.Name))
	publication := core.Publication{
		Object:      obj.Name,
		Destination: obj.Destination(),
		Files:       files,
		Directory:   obj.TargetFileDir,
		Recreate:    obj.RecreateDestination,
		Compression: obj.Settings.Compression,
	}
	err = runstate.Call(ctx, o.metrics, o.target.Kind(), "publish", func(ctx context.Context) error {
		return pub.Publish(ctx, publication)
	})
	if err != nil {
		return false, err
	}
	o.logger.Info("object published",
		zap.String("object", obj.Name), zap.String("destination", obj.Destination()), zap.Int("files", len(files)))
	return true, nil
}

// tableLoader carries what every database object load needs.
type tableLoader struct {
	*Orchestrator
	executor       core.SQLExecutor
	loader         core.Loader
	dialect        core.TargetDialect
	mapping        *typemapping.Mapping
	createTemplate string
	loadTemplate   string
}

func (o *Orchestrator) prepareTable() (*tableLoader, error) {
	executor, err := core.Require[core.SQLExecutor](o.target, "execute_sql")
	if err != nil {
		return nil, err
	}
	loader, err := core.Require[core.Loader](o.target, "load_from")
	if err != nil {
		return nil, err
	}
	dialect, err := core.Require[core.TargetDialect](o.target, "target dialect")
	if err != nil {
		return nil, err
	}
	createTemplate, err := o.descriptor.Template(core.CreateTableTemplate)
	if err != nil {
		return nil, err
	}
	loadTemplate, err := o.descriptor.Template(o.descriptor.LoadTemplateName())
	if err != nil {
		return nil, err
	}
	mapping, err := o.mappings.Resolve(o.target.Kind(), o.pipeline.Source.Kind)
	if err != nil {
		return nil, err
	}

	return &tableLoader{
		Orchestrator:   o,
		executor:       executor,
		loader:         loader,
		dialect:        dialect,
		mapping:        mapping,
		createTemplate: createTemplate,
		loadTemplate:   loadTemplate,
	}, nil
}

func (t *tableLoader) load(ctx context.Context, obj *dataobject.Object) (bool, error) {
	name := obj.Name
	layout := t.pipeline.Layout

	meta, err := t.store.Load(name)
	if err != nil {
		return false, err
	}

	t.machine.Transition(ctx, StateComposingDDL, zap.String("object", name))
	values := t.values(obj, meta)
	values[core.KeyColumnTypes] = t.columnDefinitions(meta, obj)
	values[core.KeyPrimaryKey] = ""
	if pk := meta.PrimaryKeyColumns(); len(pk) > 0 {
		normalised := make([]string, 0, len(pk))
		for _, c := range pk {
			normalised = append(normalised, composer.NormaliseColumnName(c))
		}
		values[core.KeyPrimaryKey] = ",\n  " + t.dialect.PrimaryKeyClause(normalised)
	}
	create, err := t.render(t.createTemplate, values, core.CreateTableTemplate)
	if err != nil {
		return false, err
	}
	if err := t.store.SaveStatement(layout.CreateStatementFile(name), create); err != nil {
		return false, err
	}

	qualified := values[core.KeySchemaTableName]
	if obj.RecreateDestination {
		t.machine.Transition(ctx, StateDropping, zap.String("object", name), zap.String("table", qualified))
		if err := t.drop(ctx, qualified); err != nil {
			return false, err
		}
	}

	t.machine.Transition(ctx, StateCreating, zap.String("object", name), zap.String("table", qualified))
	err = runstate.Call(ctx, t.metrics, t.target.Kind(), "execute_sql", func(ctx context.Context) error {
		return t.executor.ExecuteSQL(ctx, create)
	})
	if err != nil {
		return false, err
	}

	t.machine.Transition(ctx, StateComposingLoadStatement, zap.String("object", name))
	files, err := t.stagedFiles(name)
	if err != nil || files == nil {
		return false, err
	}
	statements := make([]string, 0, len(files))
	for _, f := range files {
		values[core.KeyPathToDataFile] = f
		stmt, err := t.render(t.loadTemplate, values, t.descriptor.LoadTemplateName())
		if err != nil {
			return false, err
		}
		statements = append(statements, stmt)
	}
	if err := t.store.SaveStatement(t.loadStatementFile(name), strings.Join(statements, "\n")); err != nil {
		return false, err
	}

	t.machine.Transition(ctx, StateLoading, zap.String("object", name), zap.Int("files", len(files)))
	for i, f := range files {
		stmt := statements[i]
		err := runstate.Call(ctx, t.metrics, t.target.Kind(), "load_from", func(ctx context.Context) error {
			return t.loader.LoadFrom(ctx, stmt, f)
		})
		if err != nil {
			return false, err
		}
	}
	t.logger.Info("object loaded", zap.String("object", name), zap.String("table", qualified), zap.Int("files", len(files)))
	return true, nil
}

func (t *tableLoader) drop(ctx context.Context, qualified string) error {
	if dropper, ok := t.target.(core.TableDropper); ok {
		return runstate.Call(ctx, t.metrics, t.target.Kind(), "drop_table", func(ctx context.Context) error {
			return dropper.DropTable(ctx, qualified)
		})
	}
	return runstate.Call(ctx, t.metrics, t.target.Kind(), "execute_sql", func(ctx context.Context) error {
		return t.executor.ExecuteSQL(ctx, "DROP TABLE IF EXISTS "+qualified)
	})
}

// values are the placeholders shared by the DDL and load templates.
func (t *tableLoader) values(obj *dataobject.Object, meta *metadata.ObjectMetadata) map[string]string {
	values := t.dialect.LoadValues(obj.Settings)

	columns := make([]string, 0, len(meta.Columns))
	for _, c := range meta.Columns {
		columns = append(columns, t.dialect.QuoteColumn(composer.NormaliseColumnName(c.ColumnName)))
	}
	values[core.KeySchemaName] = t.pipeline.Target.String("database_schema")
	values[core.KeyTableName] = obj.Destination()
	values[core.KeySchemaTableName] = t.dialect.QualifiedName(obj.Destination())
	values[core.KeyColumnList] = "(" + strings.Join(columns, ", ") + ")"
	values[core.KeyPipelineName] = t.pipeline.Name
	values[core.KeyObjectName] = obj.Name
	return values
}

// columnDefinitions renders one DDL line per column. A type without a
// mapping is logged, counted and written as typemapping.Placeholder.
func (t *tableLoader) columnDefinitions(meta *metadata.ObjectMetadata, obj *dataobject.Object) string {
	lines := make([]string, 0, len(meta.Columns))
	for _, c := range meta.Columns {
		mapped, ok := t.mapping.Lookup(c.DataType)
		if !ok {
			t.logger.Error("no type mapping for column, using placeholder type",
				zap.String("object", obj.Name),
				zap.String("column", c.ColumnName),
				zap.String("data_type", c.DataType),
				zap.String("mapping", t.mapping.Origin))
			t.metrics.TypeMappingGap(t.pipeline.Source.Kind, t.target.Kind())
			mapped = typemapping.Placeholder
		}
		line := "  " + t.dialect.QuoteColumn(composer.NormaliseColumnName(c.ColumnName)) + " " + ColumnType(mapped, c)
		if !c.Nullable() {
			line += " NOT NULL"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, ",\n")
}

// ColumnType appends the length of character types and the precision and
// scale of decimal types to a mapped type that carries none.
func ColumnType(mapped string, c metadata.Column) string {
	if strings.Contains(mapped, "(") {
		return mapped
	}
	switch mapped {
	case "char", "varchar", "character", "character varying":
		if n := c.CharacterMaximumLength; n != nil && *n > 0 {
			return fmt.Sprintf("%s(%d)", mapped, *n)
		}
	case "decimal", "numeric":
		if p := c.NumericPrecision; p != nil && *p > 0 {
			if s := c.NumericScale; s != nil {
				return fmt.Sprintf("%s(%d,%d)", mapped, *p, *s)
			}
			return fmt.Sprintf("%s(%d)", mapped, *p)
		}
	}
	return mapped
}

// render fills template and rejects statements with placeholders left.
func (t *tableLoader) render(template string, values map[string]string, name string) (string, error) {
	if missing := composer.Unresolved(template, values); len(missing) > 0 {
		return "", errors.Newf(errors.ErrorTypeConfig,
			"template %s of connector %s has unresolved placeholders %v; check pipeline.target_attributes",
			name, t.target.Kind(), missing).WithDetail("template", name)
	}
	return composer.Render(template, values), nil
}

// loadStatementFile takes its extension from the load template.
func (t *tableLoader) loadStatementFile(object string) string {
	path := t.pipeline.Layout.LoadStatementFile(object)
	ext := filepath.Ext(t.descriptor.LoadTemplateName())
	if ext == "" {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
