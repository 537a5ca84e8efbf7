package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/stageflow/pkg/connector/registry"
	"github.com/ajitpratap0/stageflow/pkg/dataobject"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/logger"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

func (a *app) loadPipeline(name string) (*pipeline.Pipeline, error) {
	return pipeline.Load(name, pipeline.Options{
		PipelineDir: a.cfg.Workspace.PipelineDirPath,
		OutputDir:   a.cfg.Workspace.OutputDirPath,
		Categories:  registry.Category,
	})
}

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the pipelines of the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Workspace.PipelineDirPath
			entries, err := os.ReadDir(dir)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeConfig, "failed to read pipeline directory").
					WithDetail("key", "workspace.pipeline_dir_path").WithDetail("path", dir)
			}
			for _, e := range entries {
				if !e.IsDir() {
					continue
				}
				if _, err := os.Stat(filepath.Join(dir, e.Name(), pipeline.FileName)); err != nil {
					continue
				}
				p, err := a.loadPipeline(e.Name())
				if err != nil {
					fmt.Fprintf(a.out, "  %-30s invalid: %v\n", e.Name(), err)
					continue
				}
				state := "enabled"
				if !p.Enabled {
					state = "disabled"
				}
				fmt.Fprintf(a.out, "  %-30s %-8s %s -> %s (%s, %d objects)\n",
					p.Name, state, p.Source.Kind, p.Target.Kind, p.Mode, len(p.Specs))
			}
			return nil
		},
	}
}

type objectView struct {
	ObjectName          string            `yaml:"object_name"`
	DestinationName     string            `yaml:"destination_object_name"`
	RecreateDestination bool              `yaml:"recreate_destination_object"`
	ExcludedColumns     []string          `yaml:"excluded_columns,omitempty"`
	SourceDir           string            `yaml:"object_source_dir,omitempty"`
	FileNames           []string          `yaml:"file_names,omitempty"`
	TargetFileDir       string            `yaml:"target_file_dir,omitempty"`
	FromSpec            bool              `yaml:"from_spec"`
	Settings            pipeline.Settings `yaml:"object_settings"`
}

type pipelineView struct {
	Name      string       `yaml:"pipeline_name"`
	Enabled   bool         `yaml:"is_enabled"`
	Source    string       `yaml:"source"`
	Target    string       `yaml:"target"`
	Mode      string       `yaml:"data_objects_spec_mode"`
	OutputDir string       `yaml:"output_dir"`
	Objects   []objectView `yaml:"objects"`
}

func newShowCommand(a *app) *cobra.Command {
	var name, objects string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration of every object of a pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadPipeline(name)
			if err != nil {
				return err
			}
			if list := pipeline.ParseObjectList(objects); len(list) > 0 {
				p = p.Restrict(list)
			}
			resolved, err := dataobject.NewResolver(p, logger.Get()).ResolveAll(p.DeclaredObjects())
			if err != nil {
				return err
			}

			view := pipelineView{
				Name:      p.Name,
				Enabled:   p.Enabled,
				Source:    p.Source.Kind,
				Target:    p.Target.Kind,
				Mode:      string(p.Mode),
				OutputDir: p.Layout.OutputDir,
				Objects:   make([]objectView, 0, len(resolved)),
			}
			for _, obj := range resolved {
				view.Objects = append(view.Objects, objectView{
					ObjectName:          obj.Name,
					DestinationName:     obj.Destination(),
					RecreateDestination: obj.RecreateDestination,
					ExcludedColumns:     obj.ExcludedColumns,
					SourceDir:           obj.SourceDir,
					FileNames:           obj.FileNames,
					TargetFileDir:       obj.TargetFileDir,
					FromSpec:            obj.FromSpec,
					Settings:            obj.Settings,
				})
			}

			enc := yaml.NewEncoder(a.out)
			enc.SetIndent(2)
			if err := enc.Encode(view); err != nil {
				return errors.Wrap(err, errors.ErrorTypeInternal, "failed to render pipeline")
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVarP(&name, "pipeline", "p", "", "Name of the pipeline (required)")
	cmd.Flags().StringVarP(&objects, "objects", "o", "", "Comma separated data objects to show")
	_ = cmd.MarkFlagRequired("pipeline")
	return cmd
}
