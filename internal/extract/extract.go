// Package extract drives the extract phase of a pipeline run: it cleans the
// staging tree, discovers object schemas, composes and audits extraction
// statements and hands them to the source connector. File and object
// storage sources skip discovery; their files are copied into staging and
// the schema is inferred from a sample.
package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stageflow/internal/runstate"
	"github.com/ajitpratap0/stageflow/pkg/columnar"
	"github.com/ajitpratap0/stageflow/pkg/composer"
	"github.com/ajitpratap0/stageflow/pkg/compression"
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

// State of an extract run.
type State = runstate.State

const (
	StateIdle                State = "Idle"
	StateCleaning            State = "Cleaning"
	StateDiscoveringSchema   State = "DiscoveringSchema"
	StateComposingStatements State = "ComposingStatements"
	StateExtracting          State = "Extracting"
	StateInferringMetadata   State = "InferringMetadata"
	StateDone                State = "Done"
)

// Options carry the collaborators of an orchestrator. Zero values select
// the global registry, the global logger, the OS filesystem and no metrics.
type Options struct {
	Registry *registry.Registry
	Metrics  *metrics.Collector
	Logger   *zap.Logger
	// FS holds the pipeline directory with mapping overrides.
	FS      afero.Fs
	Sampler *columnar.Sampler
}

// Orchestrator runs the extract phase of one pipeline.
type Orchestrator struct {
	pipeline   *pipeline.Pipeline
	source     core.Connector
	descriptor *registry.Descriptor
	resolver   *dataobject.Resolver
	store      *metadata.Store
	mappings   *typemapping.Engine
	sampler    *columnar.Sampler
	metrics    *metrics.Collector
	logger     *zap.Logger
	machine    *runstate.Machine
}

// New prepares an extract run of p reading from source.
func New(p *pipeline.Pipeline, source core.Connector, opts Options) (*Orchestrator, error) {
	reg := opts.Registry
	if reg == nil {
		reg = registry.GetRegistry()
	}
	d, err := reg.Lookup(source.Kind())
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.Get()
	}
	log = log.With(zap.String("pipeline", p.Name), zap.String("phase", metrics.PhaseExtract))
	fs := opts.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}
	sampler := opts.Sampler
	if sampler == nil {
		sampler = columnar.NewSampler(nil)
	}

	return &Orchestrator{
		pipeline:   p,
		source:     source,
		descriptor: d,
		resolver:   dataobject.NewResolver(p, log),
		store:      metadata.NewStore(p.Layout),
		mappings:   typemapping.NewEngine(fs, p.Layout, reg, log),
		sampler:    sampler,
		metrics:    opts.Metrics,
		logger:     log,
		machine:    runstate.NewMachine(StateIdle, log),
	}, nil
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.machine.Current() }

// History returns the states entered so far.
func (o *Orchestrator) History() []State { return o.machine.History() }

// Run extracts every object of the pipeline. Any error aborts the run.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	ctx = logger.ContextWith(ctx, logger.PhaseKey, metrics.PhaseExtract)
	ctx, span := observability.StartPhase(ctx, o.pipeline.Name, metrics.PhaseExtract)
	timer := metrics.NewTimer()
	defer func() {
		o.metrics.RunFinished(metrics.PhaseExtract, timer.Stop(), err)
		observability.End(span, err)
	}()

	o.logger.Info("extract started", zap.String("source", o.source.Kind()))
	var count int
	if fx, ok := o.source.(core.FileExtractor); ok {
		count, err = o.runFiles(ctx, fx)
	} else {
		count, err = o.runDatabase(ctx)
	}
	if err != nil {
		return err
	}

	o.machine.Transition(ctx, StateDone, zap.Int("objects", count), zap.Duration("duration", timer.Stop()))
	return nil
}

type extractFunc func(ctx context.Context, statement, destination string, settings pipeline.Settings) error

func (o *Orchestrator) extractor() (extractFunc, error) {
	if fx, ok := o.source.(core.FormattedExtractor); ok {
		return fx.ExtractFormatted, nil
	}
	ex, err := core.Require[core.Extractor](o.source, "extract_to")
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, statement, destination string, _ pipeline.Settings) error {
		return ex.ExtractTo(ctx, statement, destination)
	}, nil
}

func (o *Orchestrator) runDatabase(ctx context.Context) (int, error) {
	runner, err := core.Require[core.QueryRunner](o.source, "get_query_result")
	if err != nil {
		return 0, err
	}
	dialect, err := core.Require[core.SourceDialect](o.source, "source dialect")
	if err != nil {
		return 0, err
	}
	extract, err := o.extractor()
	if err != nil {
		return 0, err
	}
	template, err := o.descriptor.Template(core.ExtractTemplate)
	if err != nil {
		return 0, err
	}
	transforms, err := o.mappings.ResolveExtractorTransform(o.source.Kind())
	if err != nil {
		return 0, err
	}

	o.machine.Transition(ctx, StateCleaning)
	if err := o.clean(); err != nil {
		return 0, err
	}

	o.machine.Transition(ctx, StateDiscoveringSchema)
	metas, err := o.discover(ctx, runner, dialect)
	if err != nil {
		return 0, err
	}

	for _, meta := range metas {
		if err := o.extractObject(ctx, meta, template, dialect, transforms, extract); err != nil {
			return 0, err
		}
	}
	return len(metas), nil
}

// clean empties the staging tree. A restricted run only removes the
// directories of its objects.
func (o *Orchestrator) clean() error {
	layout := o.pipeline.Layout
	if !o.pipeline.Restricted() {
		o.logger.Info("cleaning staging directory", zap.String("path", layout.OutputDir))
		return composer.ResetDir(layout.OutputDir)
	}
	for _, name := range o.pipeline.DeclaredObjects() {
		if err := os.RemoveAll(layout.ObjectDir(name)); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to clean object staging directory").
				WithDetail("path", layout.ObjectDir(name))
		}
	}
	return nil
}

// discover runs the metadata query once and persists one record per object.
func (o *Orchestrator) discover(ctx context.Context, runner core.QueryRunner, dialect core.SourceDialect) ([]*metadata.ObjectMetadata, error) {
	template, err := o.descriptor.Template(core.MetadataTemplate)
	if err != nil {
		return nil, err
	}

	var filter []string
	if o.pipeline.Mode != pipeline.ModeIgnore || o.pipeline.Restricted() {
		filter = o.pipeline.DeclaredObjects()
		if len(filter) == 0 {
			return nil, errors.Newf(errors.ErrorTypeConfig,
				"pipeline %s declares no data objects; add object_spec entries or set data_objects_spec_mode to ignore",
				o.pipeline.Name).WithDetail("key", "data_objects_spec")
		}
	}
	values, err := dialect.MetaQueryValues(filter)
	if err != nil {
		return nil, err
	}
	query := composer.Render(template, values)

	var rows []core.Row
	err = runstate.Call(ctx, o.metrics, o.source.Kind(), "get_query_result", func(ctx context.Context) error {
		var qerr error
		rows, qerr = runner.GetQueryResult(ctx, query)
		return qerr
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDiscovery, "schema discovery query failed").WithDetail("query", query)
	}
	if len(rows) == 0 {
		return nil, errors.Newf(errors.ErrorTypeDiscovery,
			"schema discovery found no objects for pipeline %s; check the source schema and object names", o.pipeline.Name).
			WithDetail("query", query)
	}

	metas, err := metadata.ComposeFromQuery(rows, o.resolver)
	if err != nil {
		return nil, err
	}

	for _, meta := range metas {
		if err := meta.Validate(); err != nil {
			return nil, err
		}
	}

	found := make(map[string]bool, len(metas))
	for _, meta := range metas {
		found[meta.SourceObjectName] = true
		path, err := o.store.Save(meta)
		if err != nil {
			return nil, err
		}
		o.logger.Info("object metadata saved",
			zap.String("object", meta.SourceObjectName),
			zap.Int("columns", len(meta.Columns)),
			zap.String("path", path))
	}
	for _, name := range filter {
		if !found[name] {
			o.logger.Warn("declared object not found in source", zap.String("object", name))
		}
	}
	return metas, nil
}

func (o *Orchestrator) extractObject(ctx context.Context, meta *metadata.ObjectMetadata, template string,
	dialect core.SourceDialect, transforms *typemapping.Mapping, extract extractFunc) (err error) {
	name := meta.SourceObjectName
	ctx = logger.ContextWith(ctx, logger.ObjectKey, name)
	ctx, span := observability.StartObject(ctx, metrics.PhaseExtract, name)
	defer func() {
		if err != nil {
			o.metrics.ObjectProcessed(metrics.PhaseExtract, metrics.OutcomeFailed)
		}
		observability.End(span, err)
	}()

	obj, err := o.resolver.Resolve(name)
	if err != nil {
		return err
	}

	o.machine.Transition(ctx, StateComposingStatements, zap.String("object", name))
	layout := o.pipeline.Layout
	destination := filepath.Join(layout.DataDir(name), name+".csv")
	statement := ComposeStatement(template, meta, obj.Settings, dialect, transforms, destination)
	statement = composer.Render(statement, map[string]string{
		core.KeyPipelineName: o.pipeline.Name,
		core.KeyObjectName:   name,
	})
	if err := o.store.SaveStatement(layout.ExtractStatementFile(name), statement); err != nil {
		return err
	}

	o.machine.Transition(ctx, StateExtracting, zap.String("object", name))
	if err := composer.ResetDir(layout.DataDir(name)); err != nil {
		return err
	}
	err = runstate.Call(ctx, o.metrics, o.source.Kind(), "extract_to", func(ctx context.Context) error {
		return extract(ctx, statement, destination, obj.Settings)
	})
	if err != nil {
		return err
	}
	if err := checkStaged(layout.DataDir(name), name); err != nil {
		return err
	}

	o.metrics.ObjectProcessed(metrics.PhaseExtract, metrics.OutcomeDone)
	o.logger.Info("object extracted", zap.String("object", name), zap.String("path", destination))
	return nil
}

// checkStaged fails unless dir holds at least one file named after object.
func checkStaged(dir, object string) error {
	files, err := composer.MatchFiles(dir, []string{"*"})
	if err != nil {
		return err
	}
	for _, f := range files {
		if strings.HasPrefix(filepath.Base(f), object) {
			return nil
		}
	}
	return errors.Newf(errors.ErrorTypeFile, "extraction of object %s staged no data file in %s", object, dir).
		WithDetail("object", object).
		WithDetail("dir", dir)
}

// ComposeStatement renders the extraction template of one object. Columns
// whose data type has an extractor transform use it as their expression;
// text columns are wrapped to strip line breaks when the settings ask for
// it.
func ComposeStatement(template string, meta *metadata.ObjectMetadata, settings pipeline.Settings,
	dialect core.SourceDialect, transforms *typemapping.Mapping, destination string) string {
	exprs := make([]string, 0, len(meta.Columns))
	for _, c := range meta.Columns {
		expr := dialect.QuoteColumn(c.ColumnName)
		if t, ok := transforms.Lookup(c.DataType); ok {
			expr = composer.Render(t, map[string]string{"column_name": c.ColumnName})
		}
		if settings.CleanupLineBreaks {
			expr = dialect.CleanupLineBreaks(expr, c.ColumnName, c.DataType)
		}
		exprs = append(exprs, expr)
	}

	values := dialect.ExtractValues(settings)
	values[core.KeySchemaName] = meta.SourceSchemaName
	values[core.KeyTableName] = meta.SourceObjectName
	values[core.KeyColumnList] = strings.Join(exprs, ",")
	values[core.KeyDestination] = destination
	return composer.Render(template, values)
}

func (o *Orchestrator) runFiles(ctx context.Context, fx core.FileExtractor) (int, error) {
	names := o.pipeline.DeclaredObjects()
	if len(names) == 0 {
		return 0, errors.Newf(errors.ErrorTypeConfig,
			"pipeline %s declares no data objects; %s sources need an object_spec per object",
			o.pipeline.Name, o.source.Kind()).WithDetail("key", "data_objects_spec")
	}
	// every object is validated before any file is touched
	objs, err := o.resolver.ResolveAll(names)
	if err != nil {
		return 0, err
	}

	for _, obj := range objs {
		if err := o.extractFiles(ctx, fx, obj); err != nil {
			return 0, err
		}
	}
	return len(objs), nil
}

func (o *Orchestrator) extractFiles(ctx context.Context, fx core.FileExtractor, obj *dataobject.Object) (err error) {
	name := obj.Name
	ctx = logger.ContextWith(ctx, logger.ObjectKey, name)
	ctx, span := observability.StartObject(ctx, metrics.PhaseExtract, name)
	defer func() {
		if err != nil {
			o.metrics.ObjectProcessed(metrics.PhaseExtract, metrics.OutcomeFailed)
		}
		observability.End(span, err)
	}()

	layout := o.pipeline.Layout
	dataDir := layout.DataDir(name)

	o.machine.Transition(ctx, StateCleaning, zap.String("object", name))
	if err := composer.ResetDir(layout.ObjectDir(name)); err != nil {
		return err
	}
	if err := composer.ResetDir(dataDir); err != nil {
		return err
	}

	o.machine.Transition(ctx, StateExtracting, zap.String("object", name))
	set := core.FileSet{Object: name, SourceDir: obj.SourceDir, FileNames: obj.FileNames}
	var copied []string
	err = runstate.Call(ctx, o.metrics, o.source.Kind(), "extract_files", func(ctx context.Context) error {
		var xerr error
		copied, xerr = fx.ExtractFiles(ctx, set, dataDir)
		return xerr
	})
	if err != nil {
		return err
	}
	unpacked, err := compression.DecompressAll(dataDir)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to decompress staged files").WithDetail("dir", dataDir)
	}
	o.logger.Info("files staged",
		zap.String("object", name), zap.Int("files", len(copied)), zap.Int("decompressed", len(unpacked)))

	o.machine.Transition(ctx, StateInferringMetadata, zap.String("object", name))
	meta, err := o.infer(obj, dataDir)
	if err != nil {
		return err
	}
	path, err := o.store.Save(meta)
	if err != nil {
		return err
	}

	o.metrics.ObjectProcessed(metrics.PhaseExtract, metrics.OutcomeDone)
	o.logger.Info("object metadata saved",
		zap.String("object", name), zap.Int("columns", len(meta.Columns)), zap.String("path", path))
	return nil
}

// infer samples the first staged file of obj.
func (o *Orchestrator) infer(obj *dataobject.Object, dataDir string) (*metadata.ObjectMetadata, error) {
	staged, err := composer.MatchFiles(dataDir, []string{"*"})
	if err != nil {
		return nil, err
	}
	if len(staged) == 0 {
		return nil, errors.Newf(errors.ErrorTypeDiscovery, "no files staged for object %q; nothing to infer a schema from", obj.Name).
			WithDetail("dir", dataDir)
	}

	delimiter, _ := utf8.DecodeRuneInString(obj.Settings.ColumnsDelimiter)
	if delimiter == utf8.RuneError {
		return nil, errors.Newf(errors.ErrorTypeConfig, "invalid columns_delimiter %q", obj.Settings.ColumnsDelimiter).
			WithDetail("object", obj.Name)
	}
	cols, err := o.sampler.Infer(staged[0], columnar.Options{
		Delimiter:  delimiter,
		LazyQuotes: obj.Settings.QuoteChar == pipeline.QuoteNone,
		SamplePath: filepath.Join(o.pipeline.Layout.MetadataDir(obj.Name), columnar.SampleFileName),
	})
	if err != nil {
		return nil, err
	}
	meta, err := metadata.ComposeFromColumnarSample(cols, obj.Name, o.resolver)
	if err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return meta, nil
}
