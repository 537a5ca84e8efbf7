package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stageflow/pkg/config"
	"github.com/ajitpratap0/stageflow/pkg/connector/core"
	"github.com/ajitpratap0/stageflow/pkg/connector/registry"
	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/logger"

	// Register the connectors
	_ "github.com/ajitpratap0/stageflow/pkg/connector/bigquery"
	_ "github.com/ajitpratap0/stageflow/pkg/connector/csv"
	_ "github.com/ajitpratap0/stageflow/pkg/connector/gcs"
	_ "github.com/ajitpratap0/stageflow/pkg/connector/mysql"
	_ "github.com/ajitpratap0/stageflow/pkg/connector/postgres"
	_ "github.com/ajitpratap0/stageflow/pkg/connector/s3"
	_ "github.com/ajitpratap0/stageflow/pkg/connector/snowflake"
)

var version = "0.1.0"

// app is the state shared by all commands.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	out        io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(&app{}).ExecuteContext(ctx)
	stop()
	if err != nil {
		// the single place a failed command is reported
		logger.Error("stageflow failed",
			zap.Error(err),
			zap.String("error_type", string(errors.TypeOf(err))),
			zap.Any("details", errors.DetailsOf(err)))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "stageflow",
		Short: "stageflow - batch extract and load between databases, files and object storage",
		Long: `stageflow copies data objects from a source to a target in two phases.
The extract phase discovers schemas and writes every object to a local staging tree,
the load phase creates the destination objects and loads the staged files into them.

Pipelines are YAML files under the workspace pipeline directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to the workspace configuration file (default: search for stageflow.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	root.AddCommand(
		newRunCommand(a),
		newListCommand(a),
		newShowCommand(a),
		newConnectorsCommand(a),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "stageflow v%s\n", version)
				fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
				fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			},
		},
	)
	return root
}

// init loads .env, the workspace configuration and the console logger.
func (a *app) init(cmd *cobra.Command) error {
	_ = godotenv.Load() // a missing .env is fine
	a.out = cmd.OutOrStdout()

	cfg, err := config.LoadWorkspace(a.configPath)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to load workspace configuration")
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg
	return a.initLogger([]string{"stderr"})
}

// initLogger replaces the global logger.
func (a *app) initLogger(outputs []string) error {
	for _, out := range outputs {
		if out == "stdout" || out == "stderr" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to create log directory").WithDetail("path", out)
		}
	}
	err := logger.Init(logger.Config{
		Level:       a.cfg.Logging.Level,
		Development: a.cfg.Logging.Development,
		Encoding:    a.cfg.Logging.Encoding,
		OutputPaths: outputs,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid logging configuration")
	}
	return nil
}

func newConnectorsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connectors",
		Short: "List registered connectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.GetRegistry()
			for _, kind := range reg.Kinds() {
				d, err := reg.Lookup(kind)
				if err != nil {
					return err
				}
				roles := ""
				if d.Supports(core.RoleSource) {
					roles += "source"
				}
				if d.Supports(core.RoleTarget) {
					if roles != "" {
						roles += ","
					}
					roles += "target"
				}
				fmt.Fprintf(a.out, "  %-10s %-9s %-14s %s\n", kind, d.Category, roles, d.Description)
			}
			return nil
		},
	}
}
