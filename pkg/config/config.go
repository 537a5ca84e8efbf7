// Package config holds the workspace configuration of stageflow: where
// pipeline definitions live, where staged output and run logs are written,
// and how logging, metrics and tracing behave.
//
// The workspace file is stageflow.yaml. It is searched in
// $STAGEFLOW_CONFIG_DIR, $HOME/.stageflow and the working directory, and
// every key can be overridden with a STAGEFLOW_ prefixed environment
// variable (STAGEFLOW_WORKSPACE_OUTPUT_DIR_PATH and so on).
//
// Example usage:
//
//	cfg, err := config.LoadWorkspace("")
//	if err != nil {
//	    return err
//	}
//	dir := cfg.PipelineDir("orders_pg_to_bq")
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix of environment overrides
	EnvPrefix = "STAGEFLOW"
	// ConfigDirEnv names the directory holding stageflow.yaml
	ConfigDirEnv = "STAGEFLOW_CONFIG_DIR"
	// ConfigName is the workspace config file name without extension
	ConfigName = "stageflow"
)

// Logging modes
const (
	LogModeConsole = "console"
	LogModeFile    = "file"
	LogModeBoth    = "both"
)

// Config is the workspace configuration.
type Config struct {
	Workspace WorkspaceConfig `mapstructure:"workspace" yaml:"workspace"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
}

// WorkspaceConfig locates pipeline definitions and run artifacts.
type WorkspaceConfig struct {
	// PipelineDirPath holds one directory per pipeline with pipeline.yaml
	// and any type mapping overrides
	PipelineDirPath string `mapstructure:"pipeline_dir_path" yaml:"pipeline_dir_path"`
	// OutputDirPath is the staging root; one directory per pipeline
	OutputDirPath string `mapstructure:"output_dir_path" yaml:"output_dir_path"`
	// LogsDirPath receives per-run log files when logging.mode includes file
	LogsDirPath string `mapstructure:"logs_dir_path" yaml:"logs_dir_path"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Mode        string `mapstructure:"mode" yaml:"mode"`
	Encoding    string `mapstructure:"encoding" yaml:"encoding"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// MetricsConfig controls run metrics.
type MetricsConfig struct {
	// TextfilePath, when set, receives the Prometheus registry after each run
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path"`
}

// TracingConfig controls phase tracing.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
	SamplingRate float64 `mapstructure:"sampling_rate" yaml:"sampling_rate"`
}

// NewConfig returns a configuration populated with defaults rooted at home.
func NewConfig(home string) *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			PipelineDirPath: filepath.Join(home, "pipelines"),
			OutputDirPath:   filepath.Join(home, "output"),
			LogsDirPath:     filepath.Join(home, "logs"),
		},
		Logging: LoggingConfig{
			Level:    "info",
			Mode:     LogModeConsole,
			Encoding: "console",
		},
		Tracing: TracingConfig{
			SamplingRate: 1.0,
		},
	}
}

// LoadWorkspace reads the workspace configuration. An explicit path wins
// over the search locations. A missing file is not an error; defaults and
// environment overrides still apply.
func LoadWorkspace(path string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	defaults := NewConfig(filepath.Join(home, ".stageflow"))

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("workspace.pipeline_dir_path", defaults.Workspace.PipelineDirPath)
	v.SetDefault("workspace.output_dir_path", defaults.Workspace.OutputDirPath)
	v.SetDefault("workspace.logs_dir_path", defaults.Workspace.LogsDirPath)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.mode", defaults.Logging.Mode)
	v.SetDefault("logging.encoding", defaults.Logging.Encoding)
	v.SetDefault("logging.development", false)
	v.SetDefault("metrics.textfile_path", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sampling_rate", defaults.Tracing.SamplingRate)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		if dir := os.Getenv(ConfigDirEnv); dir != "" {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(filepath.Join(home, ".stageflow"))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read workspace config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode workspace config: %w", err)
	}

	cfg.Workspace.PipelineDirPath = expandHome(cfg.Workspace.PipelineDirPath, home)
	cfg.Workspace.OutputDirPath = expandHome(cfg.Workspace.OutputDirPath, home)
	cfg.Workspace.LogsDirPath = expandHome(cfg.Workspace.LogsDirPath, home)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Workspace.PipelineDirPath == "" {
		return fmt.Errorf("workspace.pipeline_dir_path must be set")
	}
	if c.Workspace.OutputDirPath == "" {
		return fmt.Errorf("workspace.output_dir_path must be set")
	}
	switch c.Logging.Mode {
	case LogModeConsole:
	case LogModeFile, LogModeBoth:
		if c.Workspace.LogsDirPath == "" {
			return fmt.Errorf("workspace.logs_dir_path must be set when logging.mode is %s", c.Logging.Mode)
		}
	default:
		return fmt.Errorf("logging.mode must be one of console, file, both, got %q", c.Logging.Mode)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing.sampling_rate must be between 0 and 1")
	}
	return nil
}

// PipelineDir returns the directory holding the named pipeline's definition.
func (c *Config) PipelineDir(name string) string {
	return filepath.Join(c.Workspace.PipelineDirPath, name)
}

// OutputDir returns the staging root of the named pipeline.
func (c *Config) OutputDir(name string) string {
	return filepath.Join(c.Workspace.OutputDirPath, name)
}

// LogOutputPaths returns the zap output paths for a run of the named pipeline.
func (c *Config) LogOutputPaths(name string) []string {
	file := filepath.Join(c.Workspace.LogsDirPath, name+".log")
	switch c.Logging.Mode {
	case LogModeFile:
		return []string{file}
	case LogModeBoth:
		return []string{"stdout", file}
	default:
		return []string{"stdout"}
	}
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
