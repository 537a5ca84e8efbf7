package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stageflow/internal/extract"
	"github.com/ajitpratap0/stageflow/internal/load"
	"github.com/ajitpratap0/stageflow/pkg/connector/core"
	"github.com/ajitpratap0/stageflow/pkg/connector/registry"
	"github.com/ajitpratap0/stageflow/pkg/logger"
	"github.com/ajitpratap0/stageflow/pkg/metrics"
	"github.com/ajitpratap0/stageflow/pkg/observability"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

type runOptions struct {
	pipeline            string
	sourceOnly          bool
	targetOnly          bool
	objects             string
	preferAuthoritative bool
}

func newRunCommand(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a pipeline",
		Long: `Run the extract phase, the load phase, or both, of one pipeline.

Example:
  stageflow run -p orders_pg_to_bq
  stageflow run -p orders_pg_to_bq --target-only -o orders,customers`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.pipeline, "pipeline", "p", "", "Name of the pipeline to run (required)")
	cmd.Flags().BoolVar(&opts.sourceOnly, "source-only", false, "Run only the extract phase")
	cmd.Flags().BoolVar(&opts.targetOnly, "target-only", false, "Run only the load phase from existing staged data")
	cmd.Flags().StringVarP(&opts.objects, "objects", "o", "", "Comma separated data objects to restrict the run to")
	cmd.Flags().BoolVar(&opts.preferAuthoritative, "prefer-authoritative", false, "In prefer mode, load every staged object")
	_ = cmd.MarkFlagRequired("pipeline")
	cmd.MarkFlagsMutuallyExclusive("source-only", "target-only")
	return cmd
}

// run executes one pipeline. Errors are returned to main unlogged.
func (a *app) run(ctx context.Context, opts runOptions) (err error) {
	cfg := a.cfg
	p, err := pipeline.Load(opts.pipeline, pipeline.Options{
		PipelineDir: cfg.Workspace.PipelineDirPath,
		OutputDir:   cfg.Workspace.OutputDirPath,
		Categories:  registry.Category,
	})
	if err != nil {
		return err
	}
	if err := a.initLogger(cfg.LogOutputPaths(p.Name)); err != nil {
		return err
	}

	runID := uuid.NewString()
	ctx = logger.ContextWith(ctx, logger.RunIDKey, runID)
	// orchestrators add the pipeline field themselves
	runLog := logger.WithContext(ctx)
	ctx = logger.ContextWith(ctx, logger.PipelineKey, p.Name)
	log := runLog.With(zap.String("pipeline", p.Name))

	if !p.Enabled {
		log.Warn("pipeline is disabled, skipping run", zap.String("key", "pipeline.pipeline_attributes.is_enabled"))
		return nil
	}
	if objects := pipeline.ParseObjectList(opts.objects); len(objects) > 0 {
		p = p.Restrict(objects)
		log.Info("run restricted to objects", zap.Strings("objects", objects))
	}

	shutdown, err := observability.Init(ctx, observability.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceVersion: version,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Writer:         os.Stderr,
	})
	if err != nil {
		return err
	}
	collector := metrics.NewCollector(p.Name)
	defer func() {
		if serr := shutdown(context.Background()); serr != nil {
			log.Warn("failed to flush traces", zap.Error(serr))
		}
		if werr := collector.WriteTextfile(cfg.Metrics.TextfilePath); werr != nil {
			log.Warn("failed to write metrics", zap.Error(werr))
		}
	}()

	log.Info("run started",
		zap.String("source", p.Source.Kind),
		zap.String("target", p.Target.Kind),
		zap.Bool("source_only", opts.sourceOnly),
		zap.Bool("target_only", opts.targetOnly))

	if !opts.targetOnly {
		if err := runExtract(ctx, p, collector, runLog); err != nil {
			return err
		}
	}
	if !opts.sourceOnly {
		if err := runLoad(ctx, p, collector, runLog, opts.preferAuthoritative); err != nil {
			return err
		}
	}
	log.Info("run finished")
	return nil
}

func runExtract(ctx context.Context, p *pipeline.Pipeline, collector *metrics.Collector, log *zap.Logger) error {
	conn, err := registry.GetRegistry().Create(ctx, core.RoleSource, p.Source)
	if err != nil {
		return err
	}
	defer closeConnector(conn, log)

	o, err := extract.New(p, conn, extract.Options{Metrics: collector, Logger: log})
	if err != nil {
		return err
	}
	return o.Run(ctx)
}

func runLoad(ctx context.Context, p *pipeline.Pipeline, collector *metrics.Collector, log *zap.Logger, preferAuthoritative bool) error {
	conn, err := registry.GetRegistry().Create(ctx, core.RoleTarget, p.Target)
	if err != nil {
		return err
	}
	defer closeConnector(conn, log)

	o, err := load.New(p, conn, load.Options{Metrics: collector, Logger: log, PreferAuthoritative: preferAuthoritative})
	if err != nil {
		return err
	}
	summary, err := o.Run(ctx)
	if err != nil {
		return err
	}
	if len(summary.Skipped) > 0 {
		log.Warn("objects skipped during load", zap.Strings("objects", summary.Skipped))
	}
	return nil
}

func closeConnector(c core.Connector, log *zap.Logger) {
	if err := c.Close(); err != nil {
		log.Warn("failed to close connector", zap.String("connector", c.Kind()), zap.Error(err))
	}
}
